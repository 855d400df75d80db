package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// TesseractOCR recognizes raster pages locally. Each call uses its own
// client, so calls may run concurrently.
type TesseractOCR struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseractOCR creates a recognizer for languages given as "eng+chi_sim".
func NewTesseractOCR(languages string) *TesseractOCR {
	var langs []string
	for _, l := range strings.Split(languages, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return &TesseractOCR{languages: langs, clientFactory: gosseract.NewClient}
}

// Recognize implements pipeline.OCRClient. Tesseract failures do not go away
// on retry, so every error is permanent.
func (t *TesseractOCR) Recognize(ctx context.Context, page pipeline.PageImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, err)
	}
	if page.MIMEType == mimePDF {
		return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("tesseract needs a raster image, got %s", page.MIMEType))
	}

	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(page.Data); err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("set image: %w", err))
	}
	if len(t.languages) > 0 {
		if err := c.SetLanguage(t.languages...); err != nil {
			return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("set languages: %w", err))
		}
	}
	text, err := c.Text()
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("recognize text: %w", err))
	}
	return strings.TrimSpace(text), nil
}
