package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/gin-gonic/gin"

	"github.com/Lllllllleong/pdfanalysisflow/internal/config"
	"github.com/Lllllllleong/pdfanalysisflow/internal/gcp"
	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
	"github.com/Lllllllleong/pdfanalysisflow/internal/server/handler"
	"github.com/Lllllllleong/pdfanalysisflow/internal/server/router"
	"github.com/Lllllllleong/pdfanalysisflow/internal/services"
)

// App is the wired process: the HTTP engine and the orchestrator behind it.
type App struct {
	Engine       *gin.Engine
	Orchestrator *pipeline.Orchestrator
	// Ingestor is set when storage events are enabled. It shares the
	// app's storage client.
	Ingestor *services.StorageIngestor

	closers []func() error
}

// New builds every collaborator selected by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &App{}
	if err := a.build(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	var vertexClient *gcp.VertexClient
	if cfg.UsesVertex() {
		vc, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.VertexOCRModel, cfg.VertexAnalysisModel)
		if err != nil {
			return fmt.Errorf("failed to create vertex client: %w", err)
		}
		a.closers = append(a.closers, vc.Close)
		vertexClient = vc
	}

	var storageClient *storage.Client
	if cfg.ResultsBucket != "" || cfg.StorageEvents {
		sc, err := gcp.NewStorageClient(ctx)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sc.Close)
		storageClient = sc
	}

	renderer := newRenderer(cfg)
	ocr, err := newOCR(cfg, vertexClient)
	if err != nil {
		return err
	}
	workflow, err := a.newWorkflow(ctx, cfg, vertexClient)
	if err != nil {
		return err
	}
	publishers, err := a.newPublishers(ctx, cfg, storageClient)
	if err != nil {
		return err
	}

	a.Orchestrator = pipeline.NewOrchestrator(pipeline.NewTaskStore(), renderer, ocr, workflow, cfg.Pipeline(), publishers...)

	var storageEvents http.Handler
	if cfg.StorageEvents {
		a.Ingestor = services.NewStorageIngestor(storageClient, a.Orchestrator, cfg.MaxUploadBytes())
		storageEvents, err = handler.NewStorageEventHandler(ctx, a.Ingestor)
		if err != nil {
			return err
		}
	}

	tasks := handler.NewTaskHandler(a.Orchestrator, handler.Options{
		MaxUploadBytes:   cfg.MaxUploadBytes(),
		DefaultChunkSize: cfg.DefaultChunkSize,
	})
	a.Engine = router.New(tasks, storageEvents)

	slog.Info("Pipeline initialized.",
		"renderer", cfg.Renderer,
		"ocrProvider", cfg.OCRProvider,
		"workflowProvider", cfg.WorkflowProvider,
		"publishers", len(publishers),
		"storageEvents", cfg.StorageEvents,
	)
	return nil
}

func newRenderer(cfg *config.Config) pipeline.PageRenderer {
	if cfg.Renderer == config.RendererMuPDF {
		return services.NewMuPDFRenderer(cfg.RenderDPI)
	}
	return services.NewPDFSplitRenderer("")
}

func newOCR(cfg *config.Config, vc *gcp.VertexClient) (pipeline.OCRClient, error) {
	switch cfg.OCRProvider {
	case config.OCRXfyun:
		return services.NewXfyunOCR(services.XfyunOCRConfig{
			AppID:     cfg.XfyunAppID,
			APIKey:    cfg.XfyunAPIKey,
			APISecret: cfg.XfyunAPISecret,
			URL:       cfg.XfyunOCRURL,
		}, nil)
	case config.OCRTesseract:
		return services.NewTesseractOCR(cfg.TesseractLanguages), nil
	default:
		return services.NewVertexOCR(vc), nil
	}
}

func (a *App) newWorkflow(ctx context.Context, cfg *config.Config, vc *gcp.VertexClient) (pipeline.WorkflowClient, error) {
	switch cfg.WorkflowProvider {
	case config.WorkflowXingchen:
		return services.NewXingchenAnalyzer(services.XingchenConfig{
			APIKey:    cfg.XingchenAPIKey,
			APISecret: cfg.XingchenAPISecret,
			FlowID:    cfg.XingchenFlowID,
			URL:       cfg.XingchenURL,
			Prompt:    cfg.AnalysisPrompt,
		}, nil)
	case config.WorkflowCloudWorkflows:
		client, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return services.NewCloudWorkflowAnalyzer(client, services.CloudWorkflowConfig{
			ProjectID:        cfg.ProjectID,
			WorkflowLocation: cfg.WorkflowLocation,
			WorkflowID:       cfg.WorkflowID,
			PollInterval:     cfg.WorkflowPollInterval,
		})
	case config.WorkflowOpenAI:
		return services.NewOpenAIAnalyzer(services.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Prompt:  cfg.AnalysisPrompt,
		})
	default:
		return services.NewVertexAnalyzer(vc, cfg.AnalysisPrompt), nil
	}
}

func (a *App) newPublishers(ctx context.Context, cfg *config.Config, sc *storage.Client) ([]pipeline.Publisher, error) {
	var publishers []pipeline.Publisher
	if cfg.FirestoreCollection != "" {
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		publishers = append(publishers, services.NewFirestorePublisher(client, cfg.FirestoreCollection))
	}
	if cfg.ResultsBucket != "" {
		publishers = append(publishers, services.NewGCSPublisher(sc, cfg.ResultsBucket))
	}
	return publishers, nil
}

// Close releases the cloud clients in reverse creation order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
