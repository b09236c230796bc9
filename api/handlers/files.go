package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/uminmay/collaborative-ai-editor/internal/relay"
)

// FileStore is the file access the HTTP API needs.
type FileStore interface {
	Read(path string) (string, error)
	Delete(path string) error
}

// DeletionNotifier tells connected editors that a file is gone.
type DeletionNotifier interface {
	NotifyDeleted(path string)
}

// FileHandler handles HTTP requests for raw file access.
type FileHandler struct {
	files    FileStore
	notifier DeletionNotifier
	log      *slog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(files FileStore, notifier DeletionNotifier, logger *slog.Logger) *FileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandler{
		files:    files,
		notifier: notifier,
		log:      logger.With("component", "files"),
	}
}

// FileResponse represents a file in API responses.
type FileResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Get handles GET /api/files/*path - returns the file content.
func (h *FileHandler) Get(c *gin.Context) {
	path := filePath(c)
	content, err := h.files.Read(path)
	if err != nil {
		h.sendFileError(c, path, err)
		return
	}
	c.JSON(http.StatusOK, FileResponse{Path: path, Content: content})
}

// Delete handles DELETE /api/files/*path - removes the file and tells its
// editors it was deleted.
func (h *FileHandler) Delete(c *gin.Context) {
	path := filePath(c)
	if err := h.files.Delete(path); err != nil {
		h.sendFileError(c, path, err)
		return
	}
	h.log.Info("file deleted", "path", path)
	if h.notifier != nil {
		h.notifier.NotifyDeleted(path)
	}
	c.Status(http.StatusNoContent)
}

func (h *FileHandler) sendFileError(c *gin.Context, path string, err error) {
	switch {
	case errors.Is(err, relay.ErrInvalidPath):
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid path")
	case errors.Is(err, os.ErrNotExist):
		sendError(c, http.StatusNotFound, "FILE_NOT_FOUND", "File "+path+" not found")
	default:
		h.log.Error("file access failed", "path", path, "error", err)
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to access file: "+err.Error())
	}
}

// filePath returns the wildcard path without its leading slash.
func filePath(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}

// RegisterRoutes registers the file handler routes on a Gin router group.
func (h *FileHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/files/*path", h.Get)
	rg.DELETE("/files/*path", h.Delete)
}
