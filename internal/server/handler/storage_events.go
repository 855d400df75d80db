package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

// Ingestor submits the object named by a storage event.
type Ingestor interface {
	Ingest(ctx context.Context, e models.StorageEvent) (string, error)
}

// NewStorageEventHandler receives Cloud Storage CloudEvents over HTTP and
// hands them to the ingestor.
func NewStorageEventHandler(ctx context.Context, ingestor Ingestor) (http.Handler, error) {
	p, err := cloudevents.NewHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents protocol: %w", err)
	}
	h, err := cloudevents.NewHTTPReceiveHandler(ctx, p, func(ctx context.Context, event cloudevents.Event) error {
		var data models.StorageEvent
		if err := event.DataAs(&data); err != nil {
			slog.Error("Failed to parse storage event data.", "eventId", event.ID(), "error", err)
			return fmt.Errorf("event.DataAs: %w", err)
		}
		if _, err := ingestor.Ingest(ctx, data); err != nil {
			slog.Error("Failed to ingest storage object.", "eventId", event.ID(), "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents handler: %w", err)
	}
	return h, nil
}
