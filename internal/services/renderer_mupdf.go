package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gen2brain/go-fitz"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

const (
	mimePNG    = "image/png"
	DefaultDPI = 144
)

// MuPDFRenderer rasterizes every page of a PDF to PNG with MuPDF.
type MuPDFRenderer struct {
	dpi float64
}

// NewMuPDFRenderer creates a rasterizer at the given resolution.
func NewMuPDFRenderer(dpi int) *MuPDFRenderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &MuPDFRenderer{dpi: float64(dpi)}
}

// Render implements pipeline.PageRenderer.
func (r *MuPDFRenderer) Render(ctx context.Context, filename string, pdf []byte) ([]pipeline.PageImage, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, &pipeline.RenderError{Filename: filename, Err: fmt.Errorf("failed to open PDF: %w", err)}
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := make([]pipeline.PageImage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &pipeline.RenderError{Filename: filename, PageCount: pageCount, Err: err}
		}
		png, err := doc.ImagePNG(i, r.dpi)
		if err != nil {
			return nil, &pipeline.RenderError{Filename: filename, PageCount: pageCount, Err: fmt.Errorf("failed to rasterize page %d: %w", i+1, err)}
		}
		pages = append(pages, pipeline.PageImage{Index: i, Data: png, MIMEType: mimePNG})
	}
	slog.Info("PDF rasterized.", "document", filename, "pageCount", pageCount, "dpi", r.dpi)
	return pages, nil
}
