package services

import (
	"strings"
	"testing"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

func publishTask() models.Task {
	return models.Task{
		ID:    "task-1",
		Phase: models.PhaseOCRDone,
		Documents: []models.Document{
			{ID: "doc-a", Filename: "a.pdf", Status: models.DocumentRendered, PageCount: 2, Pages: []models.Page{
				{Index: 0, OCRStatus: models.StatusDone, Text: "first"},
				{Index: 1, OCRStatus: models.StatusFailed, Error: "unreadable"},
			}},
			{ID: "doc-b", Filename: "b.pdf", Status: models.DocumentFailed, Error: "not a pdf"},
		},
	}
}

func TestTaskArtifactsAfterOCR(t *testing.T) {
	artifacts, err := taskArtifacts(publishTask())
	if err != nil {
		t.Fatalf("taskArtifacts() error = %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2: %v", len(artifacts), artifacts)
	}
	if _, ok := artifacts["task-1/results-ocr_done.json"]; !ok {
		t.Error("missing results snapshot")
	}
	ocr := artifacts["task-1/ocr/0-doc-a.md"]
	if !strings.Contains(ocr, "==== a.pdf page 1 ====\nfirst") || !strings.Contains(ocr, "[OCR failed: unreadable]") {
		t.Errorf("ocr artifact = %q", ocr)
	}
}

func TestTaskArtifactsAfterAnalysis(t *testing.T) {
	task := publishTask()
	task.Phase = models.PhaseAnalysisDone
	task.Chunks = []models.Chunk{
		{ID: "0-0", DocumentID: "doc-a", AnalysisStatus: models.StatusDone, AnalysisText: "alpha"},
		{ID: "0-1", DocumentID: "doc-a", AnalysisStatus: models.StatusFailed, Error: "refused"},
		{ID: "0-2", DocumentID: "doc-a", AnalysisStatus: models.StatusDone, AnalysisText: "gamma"},
	}

	artifacts, err := taskArtifacts(task)
	if err != nil {
		t.Fatalf("taskArtifacts() error = %v", err)
	}
	if _, ok := artifacts["task-1/analysis/0-1.md"]; ok {
		t.Error("failed chunk should not be written")
	}
	if artifacts["task-1/analysis/0-0.md"] != "alpha" {
		t.Errorf("chunk 0-0 = %q", artifacts["task-1/analysis/0-0.md"])
	}
	if got := artifacts["task-1/analysis/master.md"]; got != "alpha\n\n---\n\ngamma" {
		t.Errorf("master = %q", got)
	}
	if _, ok := artifacts["task-1/results-analysis_done.json"]; !ok {
		t.Error("missing results snapshot")
	}
}

func TestNewTaskStatusDoc(t *testing.T) {
	doc := newTaskStatusDoc(publishTask())
	if doc.Pages.Total != 2 || doc.Pages.Done != 1 || doc.Pages.Failed != 1 {
		t.Errorf("pages = %+v", doc.Pages)
	}
	if len(doc.Documents) != 2 || doc.Documents[1].Error != "not a pdf" {
		t.Errorf("documents = %+v", doc.Documents)
	}
}

func TestTaskArtifactsWhileOCRRunning(t *testing.T) {
	task := models.Task{
		ID:        "task-1",
		Phase:     models.PhaseOCRRunning,
		Documents: []models.Document{{ID: "doc-a", Filename: "a.pdf", Status: models.DocumentPending, Pages: []models.Page{}}},
	}
	artifacts, err := taskArtifacts(task)
	if err != nil {
		t.Fatalf("taskArtifacts() error = %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("got %d artifacts, want only the results snapshot: %v", len(artifacts), artifacts)
	}
	if _, ok := artifacts["task-1/results-ocr_running.json"]; !ok {
		t.Errorf("artifacts = %v", artifacts)
	}
}
