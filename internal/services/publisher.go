package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/pdfanalysisflow/internal/gcp"
	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// FirestorePublisher mirrors task status into a Firestore collection so
// other systems can follow progress without polling the API.
type FirestorePublisher struct {
	client     *firestore.Client
	collection string
}

// NewFirestorePublisher writes status documents keyed by task id.
func NewFirestorePublisher(client *firestore.Client, collection string) *FirestorePublisher {
	return &FirestorePublisher{client: client, collection: collection}
}

type documentStatusDoc struct {
	DocumentID string                `firestore:"documentId"`
	Filename   string                `firestore:"filename"`
	FileHash   string                `firestore:"fileHash"`
	Status     models.DocumentStatus `firestore:"status"`
	PageCount  int                   `firestore:"pageCount"`
	Error      string                `firestore:"errorDetails,omitempty"`
}

type taskStatusDoc struct {
	TaskID    string              `firestore:"taskId"`
	Status    models.Phase        `firestore:"status"`
	ChunkSize int                 `firestore:"chunkSize,omitempty"`
	Pages     models.StatusCounts `firestore:"pages"`
	Chunks    models.StatusCounts `firestore:"chunks"`
	Documents []documentStatusDoc `firestore:"documents"`
	Error     string              `firestore:"errorDetails,omitempty"`
	CreatedAt time.Time           `firestore:"createdAt"`
	UpdatedAt time.Time           `firestore:"updatedAt"`
}

func newTaskStatusDoc(t models.Task) taskStatusDoc {
	doc := taskStatusDoc{
		TaskID:    t.ID,
		Status:    t.Phase,
		ChunkSize: t.ChunkSize,
		Pages:     t.PageTotals(),
		Chunks:    t.ChunkTotals(),
		Documents: make([]documentStatusDoc, 0, len(t.Documents)),
		Error:     t.Error,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	for _, d := range t.Documents {
		doc.Documents = append(doc.Documents, documentStatusDoc{
			DocumentID: d.ID,
			Filename:   d.Filename,
			FileHash:   d.Checksum,
			Status:     d.Status,
			PageCount:  d.PageCount,
			Error:      d.Error,
		})
	}
	return doc
}

// Publish implements pipeline.Publisher.
func (p *FirestorePublisher) Publish(ctx context.Context, task models.Task) error {
	if err := gcp.UpsertDocument(ctx, p.client, p.collection, task.ID, newTaskStatusDoc(task)); err != nil {
		return fmt.Errorf("failed to mirror task status: %w", err)
	}
	slog.Info("Task status mirrored to Firestore.", "taskId", task.ID, "status", task.Phase)
	return nil
}

// GCSPublisher writes OCR text, analysis output and a results snapshot to a
// bucket. Objects are write-once, so a repeated publish is harmless.
type GCSPublisher struct {
	bucket     *storage.BucketHandle
	bucketName string
}

// NewGCSPublisher writes artifacts under <taskId>/ in bucketName.
func NewGCSPublisher(client *storage.Client, bucketName string) *GCSPublisher {
	return &GCSPublisher{bucket: client.Bucket(bucketName), bucketName: bucketName}
}

// Publish implements pipeline.Publisher.
func (p *GCSPublisher) Publish(ctx context.Context, task models.Task) error {
	logCtx := slog.With("taskId", task.ID, "bucket", p.bucketName)
	artifacts, err := taskArtifacts(task)
	if err != nil {
		return err
	}
	for name, content := range artifacts {
		if err := gcp.SaveToGCSAtomically(ctx, p.bucket, name, content); err != nil {
			return fmt.Errorf("failed to save %s: %w", name, err)
		}
	}
	logCtx.Info("Task artifacts saved.", "objects", len(artifacts), "phase", task.Phase)
	return nil
}

// taskArtifacts maps object names to contents for the current phase of t.
func taskArtifacts(t models.Task) (map[string]string, error) {
	out := make(map[string]string)

	results, err := json.MarshalIndent(models.NewResultsResponse(t), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	out[fmt.Sprintf("%s/results-%s.json", t.ID, strings.ToLower(string(t.Phase)))] = string(results)

	if len(t.Chunks) == 0 {
		for i, d := range t.Documents {
			if len(d.Pages) == 0 {
				continue
			}
			merged, err := pipeline.MergeChunks(d, i, len(d.Pages))
			if err != nil {
				return nil, err
			}
			out[fmt.Sprintf("%s/ocr/%d-%s.md", t.ID, i, d.ID)] = merged[0].CombinedText
		}
		return out, nil
	}

	var master []string
	for _, c := range t.Chunks {
		if c.AnalysisStatus != models.StatusDone {
			continue
		}
		out[fmt.Sprintf("%s/analysis/%s.md", t.ID, c.ID)] = c.AnalysisText
		master = append(master, c.AnalysisText)
	}
	if len(master) > 0 {
		out[fmt.Sprintf("%s/analysis/master.md", t.ID)] = strings.Join(master, "\n\n---\n\n")
	}
	return out, nil
}
