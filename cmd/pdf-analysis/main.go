package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/gin-gonic/gin"

	"github.com/Lllllllleong/pdfanalysisflow/internal/app"
	"github.com/Lllllllleong/pdfanalysisflow/internal/config"
	"github.com/Lllllllleong/pdfanalysisflow/internal/gcp"
	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

var (
	appInstance *app.App
	once        sync.Once
	initErr     error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// The whole API is served by one HTTP function; bucket uploads arrive
	// through the CloudEvent function.
	functions.HTTP("PDFAnalysis", handleHTTP)
	functions.CloudEvent("IngestPDF", ingestPDF)
}

func main() {
	port := gcp.GetEnv("PORT", "8080")
	if err := funcframework.Start(port); err != nil {
		slog.Error("Function framework stopped.", "error", err)
		os.Exit(1)
	}
}

func initialize() {
	once.Do(func() {
		gin.SetMode(gin.ReleaseMode)
		ctx := context.Background()

		cfg, err := config.Load(gcp.GetEnv("CONFIG_FILE", ""))
		if err != nil {
			initErr = err
			return
		}
		// IngestPDF is always registered, so the ingestor is always needed.
		cfg.StorageEvents = true
		appInstance, initErr = app.New(ctx, cfg)
	})
}

// handleHTTP is the HTTP function entry point.
func handleHTTP(w http.ResponseWriter, r *http.Request) {
	initialize()
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	appInstance.Engine.ServeHTTP(w, r)
}

// ingestPDF is the CloudEvent entry point for Cloud Storage uploads.
func ingestPDF(ctx context.Context, e cloudevents.Event) error {
	initialize()
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.StorageEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	taskID, err := appInstance.Ingestor.Ingest(ctx, gcsEvent)
	if err != nil || taskID == "" {
		return err
	}

	// Instances lose CPU once the event is acknowledged, so OCR finishes here.
	if err := appInstance.Orchestrator.Drain(ctx); err != nil {
		slog.Warn("OCR still running when the event deadline passed.", "taskId", taskID, "error", err)
	}
	return nil
}
