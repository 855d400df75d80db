package pipeline

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

var (
	// ErrNotFound is returned for an unknown task id.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidChunkSize is returned when K < 1.
	ErrInvalidChunkSize = errors.New("chunk size must be at least 1")
	// ErrNoDocuments is returned when a batch carries no files.
	ErrNoDocuments = errors.New("at least one document is required")
)

// Stage names the external call a CallError came from.
type Stage string

const (
	StageOCR      Stage = "ocr"
	StageAnalysis Stage = "analysis"
)

// CallError classifies a failed external call as retryable or terminal.
type CallError struct {
	Stage     Stage
	Transient bool
	Err       error
}

func (e *CallError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s %s error: %v", kind, e.Stage, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(stage Stage, err error) error {
	return &CallError{Stage: stage, Transient: true, Err: err}
}

// Permanent marks err as terminal for the unit.
func Permanent(stage Stage, err error) error {
	return &CallError{Stage: stage, Err: err}
}

// IsTransient reports whether err is a retryable CallError. Unclassified
// errors are permanent.
func IsTransient(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Transient
}

// RenderError means a PDF could not be turned into pages. PageCount is set
// when the page count was read before the failure.
type RenderError struct {
	Filename  string
	PageCount int
	Err       error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Filename, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PhaseError rejects an operation requested out of state-machine order.
type PhaseError struct {
	Op   string
	Want models.Phase
	Got  models.Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s requires phase %s, task is %s", e.Op, e.Want, e.Got)
}
