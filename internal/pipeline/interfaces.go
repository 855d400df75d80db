package pipeline

import (
	"context"
	"path"
	"strings"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

// UploadedFile is one PDF of a submitted batch.
type UploadedFile struct {
	Filename string
	Data     []byte
}

// PageImage is one rendered page handed to OCR. Data is either a raster image
// or a single-page PDF, as told by MIMEType.
type PageImage struct {
	Index    int
	Data     []byte
	MIMEType string
}

// PageRenderer turns a PDF into its ordered pages. Failures are reported as
// *RenderError.
type PageRenderer interface {
	Render(ctx context.Context, filename string, pdf []byte) ([]PageImage, error)
}

// OCRClient recognizes the text of one page. Errors should be classified with
// Transient or Permanent; anything else is treated as permanent.
type OCRClient interface {
	Recognize(ctx context.Context, page PageImage) (string, error)
}

// AnalysisRequest is the unit sent to the workflow service.
type AnalysisRequest struct {
	TaskID      string
	DocumentID  string
	Filename    string
	ChunkID     string
	SourcePages []int
	Text        string
}

// WorkflowClient analyzes one chunk of text.
type WorkflowClient interface {
	Analyze(ctx context.Context, req AnalysisRequest) (string, error)
}

// Publisher receives a task snapshot whenever a phase starts or completes.
type Publisher interface {
	Publish(ctx context.Context, task models.Task) error
}

// IsPDFName reports whether a file or object name has a .pdf extension.
func IsPDFName(name string) bool {
	return strings.EqualFold(path.Ext(name), ".pdf")
}
