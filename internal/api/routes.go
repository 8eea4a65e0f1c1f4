package api

import "github.com/Luisfrighetto/Visao/internal/api/middleware"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/download/:filename", s.filesHandler.Download)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.healthHandler.HealthCheck)
		// multipart overhead on top of the file limit
		api.POST("/analyze", middleware.MaxBodySize(int64(s.config.MaxUploadMB+1)*1024*1024), s.analyzeHandler.Analyze)
		api.GET("/uploads", s.filesHandler.List)
		api.DELETE("/uploads/:filename", s.filesHandler.Delete)
		api.GET("/system/stats", s.systemHandler.GetStats)
		if s.previewHandler != nil {
			api.GET("/runs/:run_id/preview", s.previewHandler.Stream)
		}
	}
}
