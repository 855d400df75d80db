package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/pdfanalysisflow/internal/gcp"
	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// Submitter starts a task for a batch of PDFs.
type Submitter interface {
	Submit(ctx context.Context, files []pipeline.UploadedFile) (string, error)
}

// StorageIngestor turns Cloud Storage object events into one-document tasks.
type StorageIngestor struct {
	storageClient *storage.Client
	submitter     Submitter
	maxBytes      int64
}

// NewStorageIngestor creates an ingestor that refuses objects above maxBytes.
func NewStorageIngestor(client *storage.Client, submitter Submitter, maxBytes int64) *StorageIngestor {
	return &StorageIngestor{storageClient: client, submitter: submitter, maxBytes: maxBytes}
}

// Ingest downloads the object of e and submits it. Objects that are not PDFs
// are skipped with an empty task id.
func (i *StorageIngestor) Ingest(ctx context.Context, e models.StorageEvent) (string, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !pipeline.IsPDFName(e.Name) {
		logCtx.Info("Object is not a PDF. Skipping.")
		return "", nil
	}
	logCtx.Info("Processing new GCS object.")

	data, err := gcp.ReadGCSObject(ctx, i.storageClient, e.Bucket, e.Name, i.maxBytes)
	if err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return "", err
	}

	taskID, err := i.submitter.Submit(ctx, []pipeline.UploadedFile{{Filename: path.Base(e.Name), Data: data}})
	if err != nil {
		return "", fmt.Errorf("failed to submit gs://%s/%s: %w", e.Bucket, e.Name, err)
	}
	logCtx.Info("Object submitted for OCR.", "taskId", taskID)
	return taskID, nil
}
