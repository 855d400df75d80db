package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

type fakeIngestor struct {
	events []models.StorageEvent
	err    error
}

func (f *fakeIngestor) Ingest(_ context.Context, e models.StorageEvent) (string, error) {
	f.events = append(f.events, e)
	return "task-1", f.err
}

func newStorageEventRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bucket":"uploads","name":"in/report.pdf","contentType":"application/pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ce-specversion", "1.0")
	req.Header.Set("ce-type", "google.cloud.storage.object.v1.finalized")
	req.Header.Set("ce-source", "//storage.googleapis.com/projects/_/buckets/uploads")
	req.Header.Set("ce-id", "evt-1")
	return req
}

func TestStorageEventHandler_Ingests(t *testing.T) {
	ingestor := &fakeIngestor{}
	h, err := NewStorageEventHandler(context.Background(), ingestor)
	if err != nil {
		t.Fatalf("NewStorageEventHandler() error = %v", err)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newStorageEventRequest())

	if w.Code >= 300 {
		t.Fatalf("expected success got %d: %s", w.Code, w.Body.String())
	}
	if len(ingestor.events) != 1 || ingestor.events[0].Bucket != "uploads" || ingestor.events[0].Name != "in/report.pdf" {
		t.Errorf("ingested events = %+v", ingestor.events)
	}
}

func TestStorageEventHandler_IngestFailure(t *testing.T) {
	ingestor := &fakeIngestor{err: errors.New("download failed")}
	h, err := NewStorageEventHandler(context.Background(), ingestor)
	if err != nil {
		t.Fatalf("NewStorageEventHandler() error = %v", err)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newStorageEventRequest())

	if w.Code < 400 {
		t.Errorf("expected an error status got %d", w.Code)
	}
}
