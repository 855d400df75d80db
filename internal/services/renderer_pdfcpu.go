package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

const mimePDF = "application/pdf"

// PDFSplitRenderer validates and optimizes a PDF with pdfcpu and splits it
// into single-page PDFs. Its pages suit OCR providers that accept PDF input.
type PDFSplitRenderer struct {
	tempDir string
}

// NewPDFSplitRenderer creates a renderer working under tempDir, or the system
// temp directory when tempDir is empty.
func NewPDFSplitRenderer(tempDir string) *PDFSplitRenderer {
	return &PDFSplitRenderer{tempDir: tempDir}
}

// Render implements pipeline.PageRenderer.
func (r *PDFSplitRenderer) Render(ctx context.Context, filename string, pdf []byte) ([]pipeline.PageImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &pipeline.RenderError{Filename: filename, Err: err}
	}
	logCtx := slog.With("document", filename)

	workDir, err := os.MkdirTemp(r.tempDir, "pdf-render-*")
	if err != nil {
		return nil, &pipeline.RenderError{Filename: filename, Err: fmt.Errorf("failed to create temp dir: %w", err)}
	}
	defer os.RemoveAll(workDir)

	sourcePath := filepath.Join(workDir, "source.pdf")
	if err := os.WriteFile(sourcePath, pdf, 0o600); err != nil {
		return nil, &pipeline.RenderError{Filename: filename, Err: fmt.Errorf("failed to write source pdf: %w", err)}
	}

	optimizedPath := filepath.Join(workDir, "optimized.pdf")
	if err := optimizePDF(sourcePath, optimizedPath); err != nil {
		return nil, &pipeline.RenderError{Filename: filename, Err: fmt.Errorf("failed to validate/optimize PDF: %w", err)}
	}
	pageCount, err := api.PageCountFile(optimizedPath)
	if err != nil {
		return nil, &pipeline.RenderError{Filename: filename, Err: fmt.Errorf("failed to get page count: %w", err)}
	}
	if err := api.SplitFile(optimizedPath, workDir, 1, nil); err != nil {
		return nil, &pipeline.RenderError{Filename: filename, PageCount: pageCount, Err: fmt.Errorf("failed to split PDF: %w", err)}
	}

	pages := make([]pipeline.PageImage, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		data, err := os.ReadFile(filepath.Join(workDir, fmt.Sprintf("optimized_%d.pdf", i)))
		if err != nil {
			return nil, &pipeline.RenderError{Filename: filename, PageCount: pageCount, Err: fmt.Errorf("failed to read split page %d: %w", i, err)}
		}
		pages = append(pages, pipeline.PageImage{Index: i - 1, Data: data, MIMEType: mimePDF})
	}
	logCtx.Info("PDF optimized and split.", "pageCount", pageCount)
	return pages, nil
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
