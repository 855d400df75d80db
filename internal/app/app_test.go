package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Lllllllleong/pdfanalysisflow/internal/config"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Renderer = config.RendererMuPDF
	cfg.OCRProvider = config.OCRTesseract
	cfg.WorkflowProvider = config.WorkflowXingchen
	cfg.XingchenAPIKey, cfg.XingchenAPISecret, cfg.XingchenFlowID = "key", "secret", "flow"
	return cfg
}

func TestNew_OfflineProviders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := New(context.Background(), offlineConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	w := httptest.NewRecorder()
	a.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 got %d", w.Code)
	}

	w = httptest.NewRecorder()
	a.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/unknown/status", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 got %d", w.Code)
	}

	if err := a.Orchestrator.Drain(context.Background()); err != nil {
		t.Errorf("Drain() error = %v", err)
	}
	if a.Ingestor != nil {
		t.Error("Ingestor built without storage events")
	}
}

func TestNew_StorageEventsShareOneIngestor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	// The emulator host makes the storage client skip credentials; nothing is dialed.
	t.Setenv("STORAGE_EMULATOR_HOST", "localhost:9199")
	cfg := offlineConfig(t)
	cfg.ProjectID = "test-project"
	cfg.StorageEvents = true

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Ingestor == nil {
		t.Fatal("Ingestor is nil with storage events enabled")
	}
	if len(a.closers) != 1 {
		t.Errorf("got %d clients to close, want the single storage client", len(a.closers))
	}

	w := httptest.NewRecorder()
	a.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/events/storage", nil))
	if w.Code == http.StatusNotFound {
		t.Error("storage event route is not mounted")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Renderer = config.RendererPDFCPU
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("New() accepted tesseract with the pdfcpu renderer")
	}
}
