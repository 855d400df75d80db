package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// TaskService defines the pipeline behavior consumed by the handler.
type TaskService interface {
	Submit(ctx context.Context, files []pipeline.UploadedFile) (string, error)
	Analyze(ctx context.Context, taskID string, k int) ([]models.Chunk, error)
	Status(taskID string) (models.StatusResponse, error)
	Results(taskID string) (models.ResultsResponse, error)
	List() []models.TaskSummary
	Delete(taskID string) error
}

// Options tunes request limits and defaults.
type Options struct {
	MaxUploadBytes   int64
	DefaultChunkSize int
	EventInterval    time.Duration
}

// TaskHandler manages task HTTP interactions.
type TaskHandler struct {
	service TaskService
	opts    Options
}

// NewTaskHandler builds the handler.
func NewTaskHandler(svc TaskService, opts Options) *TaskHandler {
	if opts.DefaultChunkSize < 1 {
		opts.DefaultChunkSize = 5
	}
	if opts.EventInterval <= 0 {
		opts.EventInterval = time.Second
	}
	return &TaskHandler{service: svc, opts: opts}
}

// Upload accepts one or more PDFs in the multipart field "files".
func (h *TaskHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid multipart payload")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		abort(c, http.StatusBadRequest, "missing files")
		return
	}

	uploads := make([]pipeline.UploadedFile, 0, len(headers))
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		if !pipeline.IsPDFName(fh.Filename) {
			abort(c, http.StatusBadRequest, fmt.Sprintf("only PDF files are accepted: %s", fh.Filename))
			return
		}
		if h.opts.MaxUploadBytes > 0 && fh.Size > h.opts.MaxUploadBytes {
			abort(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds the %d MB limit", fh.Filename, h.opts.MaxUploadBytes>>20))
			return
		}
		data, err := readUpload(fh)
		if err != nil {
			slog.Error("Failed to read upload.", "filename", fh.Filename, "error", err)
			abort(c, http.StatusBadRequest, fmt.Sprintf("could not read %s", fh.Filename))
			return
		}
		uploads = append(uploads, pipeline.UploadedFile{Filename: fh.Filename, Data: data})
		names = append(names, fh.Filename)
	}

	taskID, err := h.service.Submit(c.Request.Context(), uploads)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, models.UploadResponse{
		TaskID:  taskID,
		Message: "files accepted, OCR started",
		Files:   names,
	})
}

// Analyze chunks a finished OCR task and starts analysis.
func (h *TaskHandler) Analyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			abort(c, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	k := h.opts.DefaultChunkSize
	if req.KPages != nil {
		k = *req.KPages
	}

	taskID := c.Param("id")
	chunks, err := h.service.Analyze(c.Request.Context(), taskID, k)
	if err != nil {
		writeError(c, err)
		return
	}

	refs := make([]models.ChunkRef, 0, len(chunks))
	for _, ch := range chunks {
		refs = append(refs, models.ChunkRef{ChunkID: ch.ID, DocumentID: ch.DocumentID, SourcePages: ch.SourcePages})
	}
	c.JSON(http.StatusAccepted, models.AnalyzeResponse{
		TaskID:      taskID,
		ChunkSize:   k,
		ChunksCount: len(refs),
		Chunks:      refs,
	})
}

// Status reports task progress.
func (h *TaskHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Results returns OCR text and analysis output.
func (h *TaskHandler) Results(c *gin.Context) {
	results, err := h.service.Results(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// List returns all known tasks.
func (h *TaskHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.List())
}

// Delete forgets a task.
func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Events streams status snapshots as server-sent events until the task
// reaches a phase with no background work.
func (h *TaskHandler) Events(c *gin.Context) {
	taskID := c.Param("id")
	status, err := h.service.Status(taskID)
	if err != nil {
		writeError(c, err)
		return
	}

	ticker := time.NewTicker(h.opts.EventInterval)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	var lastSent time.Time
	for {
		if !status.UpdatedAt.Equal(lastSent) {
			c.SSEvent("status", status)
			c.Writer.Flush()
			lastSent = status.UpdatedAt
		}
		if status.Phase.Terminal() {
			return
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		status, err = h.service.Status(taskID)
		if err != nil {
			c.SSEvent("error", models.ErrorResponse{Error: err.Error()})
			c.Writer.Flush()
			return
		}
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeError maps pipeline errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	var phaseErr *pipeline.PhaseError
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		abort(c, http.StatusNotFound, err.Error())
	case errors.As(err, &phaseErr):
		abort(c, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrInvalidChunkSize), errors.Is(err, pipeline.ErrNoDocuments):
		abort(c, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Request failed.", "path", c.FullPath(), "error", err)
		abort(c, http.StatusInternalServerError, "internal error")
	}
}

func abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, models.ErrorResponse{Error: msg})
}
