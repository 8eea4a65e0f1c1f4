package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Luisfrighetto/Visao/internal/logging"
	"github.com/Luisfrighetto/Visao/internal/models"
	"github.com/Luisfrighetto/Visao/internal/pipeline"
	"github.com/Luisfrighetto/Visao/internal/services/artifacts"
	"github.com/Luisfrighetto/Visao/internal/services/detection"
)

// Analyzer runs one analysis to completion
type Analyzer interface {
	Run(ctx context.Context, req pipeline.Request) (*models.OutputArtifact, error)
}

type AnalyzeHandler struct {
	analyzer          Analyzer
	detector          Readiness
	store             *artifacts.Store
	defaultConfidence float64
	maxUploadBytes    int64
	active            atomic.Int64
}

func NewAnalyzeHandler(analyzer Analyzer, detector Readiness, store *artifacts.Store, defaultConfidence float64, maxUploadBytes int64) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer:          analyzer,
		detector:          detector,
		store:             store,
		defaultConfidence: defaultConfidence,
		maxUploadBytes:    maxUploadBytes,
	}
}

type AnalyzeResponse struct {
	Success          bool                 `json:"success" example:"true"`
	Message          string               `json:"message" example:"Analysis completed successfully"`
	RunID            string               `json:"run_id" example:"4f7c8a1e-2b9d-4c55-9e61-0d8f3a2b7c10"`
	VideoFile        string               `json:"video_file" example:"processed_final_1a2b3c4d_1700000000.mp4"`
	StatsFile        string               `json:"stats_file" example:"processed_final_1a2b3c4d_1700000000.json"`
	Statistics       models.RunStatistics `json:"statistics"`
	OriginalFilename string               `json:"original_filename" example:"final.mp4"`
	FileSizeMB       float64              `json:"file_size_mb" example:"12.5"`
	ProcessingTime   float64              `json:"processing_time" example:"42.7"`
}

// Active is the number of analyses currently running
func (h *AnalyzeHandler) Active() int64 {
	return h.active.Load()
}

// @Summary Analyze a video
// @Description Upload a match video, detect players and the ball on every frame and return the annotated video and statistics
// @Tags analysis
// @Accept multipart/form-data
// @Produce json
// @Param video formData file true "Video file (mp4, avi, mov, mkv, webm)"
// @Param confidence formData number false "Detection confidence threshold in (0, 1], default 0.5"
// @Param run_id formData string false "Client chosen run ID (UUID) for progress and preview subscriptions"
// @Success 200 {object} AnalyzeResponse
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/analyze [post]
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	header, err := c.FormFile("video")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}
	if err != nil || header.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		return
	}
	if !artifacts.AllowedFile(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Unsupported format. Use: %s", strings.Join(artifacts.AllowedExtensions, ", ")),
		})
		return
	}

	confidence := h.defaultConfidence
	if raw := strings.TrimSpace(c.PostForm("confidence")); raw != "" {
		confidence, err = strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(confidence) || confidence <= 0 || confidence > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "confidence must be a number in (0, 1]"})
			return
		}
	}

	runID := uuid.NewString()
	if raw := strings.TrimSpace(c.PostForm("run_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_id must be a UUID"})
			return
		}
		runID = id.String()
	}

	if status, msg := unavailable(h.detector.Snapshot()); status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	defer file.Close()

	inputPath, size, err := h.store.SaveUpload(header.Filename, file, h.maxUploadBytes)
	if err != nil {
		switch {
		case errors.Is(err, artifacts.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		case errors.Is(err, artifacts.ErrUnsupportedFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logging.Error(c).Err(err).Msg("Failed to save upload")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save upload"})
		}
		return
	}

	c.Set(logging.CtxRunID, runID)
	logging.Info(c).
		Str("file", header.Filename).
		Int64("size_bytes", size).
		Float64("confidence", confidence).
		Msg("Starting analysis")

	h.active.Add(1)
	artifact, err := h.analyzer.Run(c.Request.Context(), pipeline.Request{
		RunID:      runID,
		InputPath:  inputPath,
		Confidence: confidence,
	})
	h.active.Add(-1)
	if err != nil {
		h.store.Remove(inputPath)
		status := runStatus(err)
		logging.Error(c).Err(err).Int("status", status).Msg("Analysis failed")
		c.JSON(status, gin.H{"error": err.Error(), "run_id": runID})
		return
	}

	logging.Info(c).
		Str("video_file", filepath.Base(artifact.VideoPath)).
		Int("frames", artifact.Statistics.FramesProcessed).
		Msg("Analysis completed")

	c.JSON(http.StatusOK, AnalyzeResponse{
		Success:          true,
		Message:          "Analysis completed successfully",
		RunID:            runID,
		VideoFile:        filepath.Base(artifact.VideoPath),
		StatsFile:        filepath.Base(artifact.StatsPath),
		Statistics:       artifact.Statistics,
		OriginalFilename: header.Filename,
		FileSizeMB:       math.Round(float64(size)/(1024*1024)*100) / 100,
		ProcessingTime:   artifact.Statistics.ElapsedSeconds,
	})
}

// unavailable maps a readiness snapshot to an HTTP refusal, 0 when ready
func unavailable(snap detection.Snapshot) (int, string) {
	switch snap.State {
	case detection.StateReady:
		return 0, ""
	case detection.StateLoading:
		return http.StatusServiceUnavailable, "Model is still loading. Try again in a few seconds."
	case detection.StateFailed:
		return http.StatusInternalServerError, fmt.Sprintf("Model failed to load: %s", snap.Reason)
	default:
		return http.StatusServiceUnavailable, "Model not available. Try again in a few seconds."
	}
}

func runStatus(err error) int {
	var notReady *detection.UnavailableError
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &notReady):
		if notReady.Retryable() {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	case errors.Is(err, pipeline.ErrDetectorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
