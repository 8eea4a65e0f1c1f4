package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Luisfrighetto/Visao/internal/api/handlers"
	"github.com/Luisfrighetto/Visao/internal/api/middleware"
	"github.com/Luisfrighetto/Visao/internal/config"
	"github.com/Luisfrighetto/Visao/internal/services"
)

type Server struct {
	config    *config.Config
	router    *gin.Engine
	server    *http.Server
	container *services.ServiceContainer

	// cancelled on shutdown to stop the background model load
	ctx    context.Context
	cancel context.CancelFunc

	healthHandler  *handlers.HealthHandler
	analyzeHandler *handlers.AnalyzeHandler
	filesHandler   *handlers.FilesHandler
	systemHandler  *handlers.SystemHandler
	previewHandler *handlers.PreviewHandler
}

func NewServer(cfg *config.Config) (*Server, error) {
	container, err := services.NewServiceContainer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create services: %w", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	var broker handlers.Broker
	if container.Messaging != nil {
		broker = container.Messaging
	}

	maxUpload := int64(cfg.MaxUploadMB) * 1024 * 1024
	analyze := handlers.NewAnalyzeHandler(container.Engine, container.Detector, container.Artifacts, cfg.DefaultConfidence, maxUpload)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		router:         router,
		container:      container,
		healthHandler:  handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, container.Detector, container.Artifacts, broker),
		analyzeHandler: analyze,
		filesHandler:   handlers.NewFilesHandler(container.Artifacts),
		systemHandler:  handlers.NewSystemHandler(cfg.WorkerID, analyze),
	}
	if container.Preview != nil {
		s.previewHandler = handlers.NewPreviewHandler(container.Preview)
	}
	s.Setup()
	return s, nil
}

func (s *Server) Setup() {
	s.setupMiddleware()

	s.setupRoutes()

	s.setupSwagger()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

// Start kicks off model loading and serves until Shutdown
func (s *Server) Start() error {
	s.container.Start(s.ctx)

	log.Info().Int("port", s.config.Port).Msg("Starting analyzer API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping analyzer API")
	s.cancel()

	err := s.server.Shutdown(ctx)
	if cerr := s.container.Shutdown(ctx); err == nil {
		err = cerr
	}
	return err
}

func (s *Server) Handler() http.Handler {
	return s.router
}
