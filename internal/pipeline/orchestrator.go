package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

// Config bounds the fan-out of the background steps.
type Config struct {
	OCRConcurrency      int
	AnalysisConcurrency int
	Retry               RetryPolicy
}

// DefaultConfig matches the page fan-out used for split page uploads.
func DefaultConfig() Config {
	return Config{
		OCRConcurrency:      10,
		AnalysisConcurrency: 4,
		Retry:               DefaultRetryPolicy(),
	}
}

// Orchestrator drives tasks through render, OCR, chunking and analysis.
type Orchestrator struct {
	store      *TaskStore
	renderer   PageRenderer
	ocr        OCRClient
	workflow   WorkflowClient
	publishers []Publisher
	cfg        Config
	now        func() time.Time

	running sync.WaitGroup
}

// NewOrchestrator wires the pipeline collaborators around a store.
func NewOrchestrator(store *TaskStore, renderer PageRenderer, ocr OCRClient, workflow WorkflowClient, cfg Config, publishers ...Publisher) *Orchestrator {
	if cfg.OCRConcurrency < 1 {
		cfg.OCRConcurrency = 1
	}
	if cfg.AnalysisConcurrency < 1 {
		cfg.AnalysisConcurrency = 1
	}
	return &Orchestrator{
		store:      store,
		renderer:   renderer,
		ocr:        ocr,
		workflow:   workflow,
		publishers: publishers,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Submit registers a batch and starts rendering and OCR in the background.
// The returned id is usable immediately; the work itself outlives ctx.
func (o *Orchestrator) Submit(ctx context.Context, files []UploadedFile) (string, error) {
	if len(files) == 0 {
		return "", ErrNoDocuments
	}

	task := o.store.Create()
	task, err := o.store.Update(task.ID, func(t *models.Task) error {
		for _, f := range files {
			t.Documents = append(t.Documents, models.Document{
				ID:       uuid.NewString(),
				Filename: f.Filename,
				Checksum: checksum(f.Data),
				Status:   models.DocumentPending,
				Pages:    []models.Page{},
			})
		}
		return advance(t, models.PhaseOCRRunning, "submit", models.PhaseCreated)
	})
	if err != nil {
		return "", fmt.Errorf("failed to register task: %w", err)
	}

	slog.Info("Task submitted.", "taskId", task.ID, "documents", len(files))

	o.running.Add(1)
	go func() {
		defer o.running.Done()
		bg := context.WithoutCancel(ctx)
		o.publish(bg, slog.With("taskId", task.ID), task)
		o.runOCR(bg, task.ID, files)
	}()
	return task.ID, nil
}

// Analyze chunks the OCR output with k pages per chunk and starts analysis in
// the background. It fails with a *PhaseError unless OCR has completed, and in
// that case no chunk is created.
func (o *Orchestrator) Analyze(ctx context.Context, taskID string, k int) ([]models.Chunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, k)
	}

	task, err := o.store.Update(taskID, func(t *models.Task) error {
		if t.Phase != models.PhaseOCRDone {
			return &PhaseError{Op: "analyze", Want: models.PhaseOCRDone, Got: t.Phase}
		}
		chunks, err := MergeTask(*t, k)
		if err != nil {
			return err
		}
		t.Chunks = chunks
		t.ChunkSize = k
		return advance(t, models.PhaseAnalysisRunning, "analyze", models.PhaseOCRDone)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Analysis dispatched.", "taskId", taskID, "chunkSize", k, "chunks", len(task.Chunks))

	o.running.Add(1)
	go func() {
		defer o.running.Done()
		o.runAnalysis(context.WithoutCancel(ctx), task)
	}()
	return task.Chunks, nil
}

// Status returns the polling view of a task.
func (o *Orchestrator) Status(taskID string) (models.StatusResponse, error) {
	t, err := o.store.Get(taskID)
	if err != nil {
		return models.StatusResponse{}, err
	}
	return models.NewStatusResponse(t), nil
}

// Results returns the OCR and analysis output gathered so far.
func (o *Orchestrator) Results(taskID string) (models.ResultsResponse, error) {
	t, err := o.store.Get(taskID)
	if err != nil {
		return models.ResultsResponse{}, err
	}
	return models.NewResultsResponse(t), nil
}

// List summarizes every known task, newest first.
func (o *Orchestrator) List() []models.TaskSummary {
	tasks := o.store.List()
	out := make([]models.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, models.NewTaskSummary(t))
	}
	return out
}

// Delete forgets a task. Background work still running for it stops
// recording results.
func (o *Orchestrator) Delete(taskID string) error {
	return o.store.Delete(taskID)
}

// Drain blocks until every background run has finished or ctx is done.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) runOCR(ctx context.Context, taskID string, files []UploadedFile) {
	logCtx := slog.With("taskId", taskID)
	logCtx.Info("Starting render and OCR.", "documents", len(files))

	var docs errgroup.Group
	var pages errgroup.Group
	pages.SetLimit(o.cfg.OCRConcurrency)

	for i, f := range files {
		docIndex, file := i, f
		docs.Go(func() error {
			images, ok := o.renderDocument(ctx, logCtx, taskID, docIndex, file)
			if !ok {
				return nil
			}
			for j, img := range images {
				pageIndex, page := j, img
				page.Index = pageIndex
				pages.Go(func() error {
					o.recognizePage(ctx, logCtx, taskID, docIndex, page)
					return nil
				})
			}
			return nil
		})
	}
	// Every pages.Go call happens inside a docs goroutine, so docs must be
	// joined before pages.
	_ = docs.Wait()
	_ = pages.Wait()

	task, err := o.store.Update(taskID, func(t *models.Task) error {
		if t.PageTotals().Done == 0 {
			t.Error = "no page could be recognized"
			return advance(t, models.PhaseFailed, "ocr join", models.PhaseOCRRunning)
		}
		return advance(t, models.PhaseOCRDone, "ocr join", models.PhaseOCRRunning)
	})
	if err != nil {
		logCtx.Error("Failed to record OCR completion.", "error", err)
		return
	}
	totals := task.PageTotals()
	logCtx.Info("OCR finished.", "phase", task.Phase, "pagesDone", totals.Done, "pagesFailed", totals.Failed)
	o.publish(ctx, logCtx, task)
}

// renderDocument renders one document and records its pages. It reports
// false when there is nothing to OCR.
func (o *Orchestrator) renderDocument(ctx context.Context, logCtx *slog.Logger, taskID string, docIndex int, file UploadedFile) ([]PageImage, bool) {
	logCtx = logCtx.With("document", file.Filename)
	if _, err := o.store.Update(taskID, func(t *models.Task) error {
		t.Documents[docIndex].Status = models.DocumentRendering
		return nil
	}); err != nil {
		logCtx.Error("Failed to mark document as rendering.", "error", err)
		return nil, false
	}

	images, renderErr := o.renderer.Render(ctx, file.Filename, file.Data)
	if renderErr == nil && len(images) == 0 {
		renderErr = &RenderError{Filename: file.Filename, Err: errors.New("document has no pages")}
	}

	_, err := o.store.Update(taskID, func(t *models.Task) error {
		doc := &t.Documents[docIndex]
		if renderErr != nil {
			doc.Status = models.DocumentFailed
			doc.Error = renderErr.Error()
			var re *RenderError
			if errors.As(renderErr, &re) && re.PageCount > 0 {
				doc.PageCount = re.PageCount
				doc.Pages = make([]models.Page, re.PageCount)
				completed := o.now().UTC()
				for i := range doc.Pages {
					doc.Pages[i] = models.Page{
						Index:       i,
						OCRStatus:   models.StatusFailed,
						Error:       doc.Error,
						CompletedAt: &completed,
					}
				}
			}
			return nil
		}
		doc.Status = models.DocumentRendered
		doc.PageCount = len(images)
		doc.Pages = make([]models.Page, len(images))
		for i := range doc.Pages {
			doc.Pages[i] = models.Page{Index: i, OCRStatus: models.StatusPending}
		}
		return nil
	})
	if err != nil {
		logCtx.Error("Failed to record render result.", "error", err)
		return nil, false
	}
	if renderErr != nil {
		logCtx.Warn("Document failed to render.", "error", renderErr)
		return nil, false
	}
	logCtx.Info("Document rendered.", "pageCount", len(images))
	return images, true
}

func (o *Orchestrator) recognizePage(ctx context.Context, logCtx *slog.Logger, taskID string, docIndex int, page PageImage) {
	logCtx = logCtx.With("documentIndex", docIndex, "page", page.Index)
	if _, err := o.store.Update(taskID, func(t *models.Task) error {
		t.Documents[docIndex].Pages[page.Index].OCRStatus = models.StatusRunning
		return nil
	}); err != nil {
		logCtx.Error("Failed to mark page as running.", "error", err)
		return
	}

	var text string
	attempts, callErr := o.cfg.Retry.Do(ctx, StageOCR, func(ctx context.Context) error {
		var err error
		text, err = o.ocr.Recognize(ctx, page)
		return err
	})

	if _, err := o.store.Update(taskID, func(t *models.Task) error {
		p := &t.Documents[docIndex].Pages[page.Index]
		completed := o.now().UTC()
		p.Attempts = attempts
		p.CompletedAt = &completed
		if callErr != nil {
			p.OCRStatus = models.StatusFailed
			p.Error = callErr.Error()
			return nil
		}
		p.OCRStatus = models.StatusDone
		p.Text = text
		return nil
	}); err != nil {
		logCtx.Error("Failed to record OCR result.", "error", err)
		return
	}
	if callErr != nil {
		logCtx.Warn("Page OCR failed.", "attempts", attempts, "error", callErr)
	}
}

func (o *Orchestrator) runAnalysis(ctx context.Context, task models.Task) {
	logCtx := slog.With("taskId", task.ID)
	o.publish(ctx, logCtx, task)

	filenames := make(map[string]string, len(task.Documents))
	for _, d := range task.Documents {
		filenames[d.ID] = d.Filename
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.AnalysisConcurrency)
	for i, c := range task.Chunks {
		chunkIndex, chunk := i, c
		g.Go(func() error {
			o.analyzeChunk(ctx, logCtx, task.ID, chunkIndex, AnalysisRequest{
				TaskID:      task.ID,
				DocumentID:  chunk.DocumentID,
				Filename:    filenames[chunk.DocumentID],
				ChunkID:     chunk.ID,
				SourcePages: chunk.SourcePages,
				Text:        chunk.CombinedText,
			})
			return nil
		})
	}
	_ = g.Wait()

	final, err := o.store.Update(task.ID, func(t *models.Task) error {
		if t.ChunkTotals().Done == 0 {
			t.Error = "no chunk could be analyzed"
			return advance(t, models.PhaseFailed, "analysis join", models.PhaseAnalysisRunning)
		}
		return advance(t, models.PhaseAnalysisDone, "analysis join", models.PhaseAnalysisRunning)
	})
	if err != nil {
		logCtx.Error("Failed to record analysis completion.", "error", err)
		return
	}
	totals := final.ChunkTotals()
	logCtx.Info("Analysis finished.", "phase", final.Phase, "chunksDone", totals.Done, "chunksFailed", totals.Failed)
	o.publish(ctx, logCtx, final)
}

func (o *Orchestrator) analyzeChunk(ctx context.Context, logCtx *slog.Logger, taskID string, chunkIndex int, req AnalysisRequest) {
	logCtx = logCtx.With("chunkId", req.ChunkID)
	if _, err := o.store.Update(taskID, func(t *models.Task) error {
		t.Chunks[chunkIndex].AnalysisStatus = models.StatusRunning
		return nil
	}); err != nil {
		logCtx.Error("Failed to mark chunk as running.", "error", err)
		return
	}

	var analysis string
	attempts, callErr := o.cfg.Retry.Do(ctx, StageAnalysis, func(ctx context.Context) error {
		var err error
		analysis, err = o.workflow.Analyze(ctx, req)
		return err
	})

	if _, err := o.store.Update(taskID, func(t *models.Task) error {
		c := &t.Chunks[chunkIndex]
		completed := o.now().UTC()
		c.Attempts = attempts
		c.CompletedAt = &completed
		if callErr != nil {
			c.AnalysisStatus = models.StatusFailed
			c.Error = callErr.Error()
			return nil
		}
		c.AnalysisStatus = models.StatusDone
		c.AnalysisText = analysis
		return nil
	}); err != nil {
		logCtx.Error("Failed to record analysis result.", "error", err)
		return
	}
	if callErr != nil {
		logCtx.Warn("Chunk analysis failed.", "attempts", attempts, "error", callErr)
	}
}

func (o *Orchestrator) publish(ctx context.Context, logCtx *slog.Logger, task models.Task) {
	for _, p := range o.publishers {
		if err := p.Publish(ctx, task); err != nil {
			logCtx.Error("Failed to publish task snapshot.", "phase", task.Phase, "error", err)
		}
	}
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
