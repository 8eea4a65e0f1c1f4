package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Luisfrighetto/Visao/internal/services/artifacts"
	"github.com/Luisfrighetto/Visao/internal/services/detection"
)

// Readiness reports whether the detection model can serve analyses
type Readiness interface {
	Snapshot() detection.Snapshot
}

// Broker reports the progress broker connection, nil when NATS is disabled
type Broker interface {
	IsConnected() bool
}

type HealthHandler struct {
	WorkerID string
	Version  string
	detector Readiness
	store    *artifacts.Store
	broker   Broker
}

func NewHealthHandler(workerID, version string, detector Readiness, store *artifacts.Store, broker Broker) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, detector: detector, store: store, broker: broker}
}

type HealthResponse struct {
	Status        string          `json:"status" example:"healthy"`
	WorkerID      string          `json:"worker_id" example:"analyzer-1"`
	ModelState    detection.State `json:"model_state" swaggertype:"string" example:"ready"`
	ModelLoaded   bool            `json:"model_loaded" example:"true"`
	ModelLoading  bool            `json:"model_loading" example:"false"`
	ModelError    string          `json:"model_error,omitempty"`
	NatsConnected bool            `json:"nats_connected" example:"false"`
	UploadFolder  string          `json:"upload_folder" example:"/srv/visao/uploads"`
	ResultsFolder string          `json:"results_folder" example:"/srv/visao/results"`
	UploadCount   int             `json:"upload_count" example:"3"`
	ResultCount   int             `json:"result_count" example:"2"`
	Timestamp     int64           `json:"timestamp" example:"1700000000"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"analyzer-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Service status, model readiness and storage counters
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /api/health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	snap := h.detector.Snapshot()
	uploads, results := h.store.Counts()

	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		WorkerID:      h.WorkerID,
		ModelState:    snap.State,
		ModelLoaded:   snap.State == detection.StateReady,
		ModelLoading:  snap.State == detection.StateLoading,
		ModelError:    snap.Reason,
		NatsConnected: h.broker != nil && h.broker.IsConnected(),
		UploadFolder:  absPath(h.store.UploadDir()),
		ResultsFolder: absPath(h.store.ResultsDir()),
		UploadCount:   uploads,
		ResultCount:   results,
		Timestamp:     time.Now().Unix(),
	})
}

// @Summary Worker information
// @Description Basic analyzer information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"video_analysis",
			"player_ball_detection",
			"annotated_output",
		},
	})
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
