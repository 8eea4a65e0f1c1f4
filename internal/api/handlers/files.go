package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Luisfrighetto/Visao/internal/logging"
	"github.com/Luisfrighetto/Visao/internal/services/artifacts"
)

type FilesHandler struct {
	store *artifacts.Store
}

func NewFilesHandler(store *artifacts.Store) *FilesHandler {
	return &FilesHandler{store: store}
}

type FilesResponse struct {
	Files []artifacts.File `json:"files"`
}

// @Summary Download a file
// @Description Download a processed video, its statistics or an upload. Results are searched first.
// @Tags files
// @Produce application/octet-stream
// @Param filename path string true "File name"
// @Success 200 {file} file
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /download/{filename} [get]
func (h *FilesHandler) Download(c *gin.Context) {
	name := c.Param("filename")
	path, _, err := h.store.Resolve(name)
	if err != nil {
		h.fileError(c, name, err)
		return
	}

	c.Header("Content-Type", artifacts.ContentType(name))
	c.FileAttachment(path, name)
}

// @Summary List files
// @Description List uploads and results available for download
// @Tags files
// @Produce json
// @Success 200 {object} FilesResponse
// @Failure 500 {object} map[string]string
// @Router /api/uploads [get]
func (h *FilesHandler) List(c *gin.Context) {
	files, err := h.store.List()
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list files")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list files"})
		return
	}
	if files == nil {
		files = []artifacts.File{}
	}
	c.JSON(http.StatusOK, FilesResponse{Files: files})
}

// @Summary Delete a file
// @Description Remove a result or an upload by name
// @Tags files
// @Produce json
// @Param filename path string true "File name"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/uploads/{filename} [delete]
func (h *FilesHandler) Delete(c *gin.Context) {
	name := c.Param("filename")
	if _, err := h.store.Delete(name); err != nil {
		h.fileError(c, name, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("File %s removed", name)})
}

func (h *FilesHandler) fileError(c *gin.Context, name string, err error) {
	switch {
	case errors.Is(err, artifacts.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file name"})
	case errors.Is(err, artifacts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
	default:
		logging.Error(c).Err(err).Str("file", name).Msg("File operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
