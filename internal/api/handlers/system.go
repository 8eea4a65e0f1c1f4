package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// ActiveRuns reports how many analyses are in flight
type ActiveRuns interface {
	Active() int64
}

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID string
	started  time.Time
	runs     ActiveRuns
}

func NewSystemHandler(workerID string, runs ActiveRuns) *SystemHandler {
	return &SystemHandler{
		WorkerID: workerID,
		started:  time.Now(),
		runs:     runs,
	}
}

// @Summary Get system stats
// @Description Process statistics and the number of analyses in progress
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"worker_id":      h.WorkerID,
			"uptime_seconds": int64(time.Since(h.started).Seconds()),
			"active_runs":    h.runs.Active(),
			"memory_mb":      m.Alloc / 1024 / 1024,
			"cpu_cores":      runtime.NumCPU(),
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
		},
		"timestamp": time.Now().Unix(),
	})
}
