package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Luisfrighetto/Visao/internal/services/publisher/mjpeg"
)

type PreviewHandler struct {
	publisher *mjpeg.Publisher
}

func NewPreviewHandler(publisher *mjpeg.Publisher) *PreviewHandler {
	return &PreviewHandler{publisher: publisher}
}

// @Summary Live preview of an analysis
// @Description MJPEG stream of the annotated frames of a running analysis. Pass the same run_id to POST /api/analyze to watch it.
// @Tags analysis
// @Produce multipart/x-mixed-replace
// @Param run_id path string true "Run ID (UUID)"
// @Success 200 {file} file
// @Failure 400 {object} map[string]string
// @Router /api/runs/{run_id}/preview [get]
func (h *PreviewHandler) Stream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run_id must be a UUID"})
		return
	}
	h.publisher.StreamMJPEGHTTP(c.Writer, c.Request, id.String())
}
