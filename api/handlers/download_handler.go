package handlers

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/app"
	"github.com/yourusername/media-dl-go/internal/domain"
)

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	orchestrator *app.Orchestrator
	registry     *app.ArtifactRegistry
	responseMode string
	logger       *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(orchestrator *app.Orchestrator, registry *app.ArtifactRegistry, responseMode string, logger *zap.Logger) *DownloadHandler {
	if responseMode == "" {
		responseMode = domain.ResponseModeStream
	}
	return &DownloadHandler{
		orchestrator: orchestrator,
		registry:     registry,
		responseMode: responseMode,
		logger:       logger,
	}
}

// DownloadBody is the body of POST /api/download/:platform
type DownloadBody struct {
	URL    string `json:"url" binding:"required"`
	Format string `json:"format" binding:"required"`
}

// DownloadSummary is the single-object response of the json mode
type DownloadSummary struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
}

// Download handles POST /api/download/:platform
func (h *DownloadHandler) Download(c *gin.Context) {
	const op = "handler.download"

	var body DownloadBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, domain.BadRequest(op, "url and format are required"))
		return
	}
	kind, err := domain.ParseOutputKind(body.Format)
	if err != nil {
		respondError(c, domain.BadRequest(op, "format must be audio or video"))
		return
	}

	req := domain.DownloadRequest{SourceURL: body.URL, OutputKind: kind}
	handle, err := h.orchestrator.Submit(c.Request.Context(), req, domain.ParsePlatform(c.Param("platform")))
	if err != nil {
		respondError(c, err)
		return
	}

	if h.responseMode == domain.ResponseModeJSON {
		h.respondSummary(c, handle)
		return
	}
	h.streamProgress(c, handle)
}

func (h *DownloadHandler) respondSummary(c *gin.Context, handle *app.JobHandle) {
	result, err := handle.Wait()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DownloadSummary{
		FileName:    result.Artifact.FileName,
		DownloadURL: result.DownloadURL,
	})
}

// streamProgress writes one JSON event per line. A job that fails before
// its first event gets a plain error response instead.
func (h *DownloadHandler) streamProgress(c *gin.Context, handle *app.JobHandle) {
	first, ok := <-handle.Events()
	if !ok || first.Status == domain.ProgressFailed {
		_, err := handle.Wait()
		if err == nil {
			err = domain.NewError(domain.KindInternal, "handler.stream", nil)
		}
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	writable := true
	write := func(ev domain.ProgressEvent) {
		if !writable {
			return
		}
		if err := enc.Encode(ev); err != nil {
			writable = false
			h.logger.Debug("Progress stream closed by client", zap.String("id", handle.Job().ID), zap.Error(err))
			return
		}
		c.Writer.Flush()
	}

	write(first)
	for ev := range handle.Events() {
		write(ev)
	}

	if _, err := handle.Wait(); err != nil {
		_ = c.Error(err)
	}
}

// Artifact handles GET /api/download/artifact/:token
func (h *DownloadHandler) Artifact(c *gin.Context) {
	delivery, err := h.registry.TakeOnce(c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer delivery.Close()

	artifact := delivery.Artifact
	h.logger.Info("Serving artifact",
		zap.String("file", artifact.FileName),
		zap.Int64("size", artifact.Size))

	c.DataFromReader(http.StatusOK, delivery.Size(), artifact.ContentType, delivery, map[string]string{
		"Content-Disposition": contentDisposition(artifact.FileName),
		"Cache-Control":       "no-store",
	})
}

func contentDisposition(fileName string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return "attachment"
}
