package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/pdfanalysisflow/internal/gcp"
	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// contentGenerator is the part of *genai.GenerativeModel the pipeline uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexOCR transcribes pages with a Gemini model. It accepts both
// single-page PDFs and raster images.
type VertexOCR struct {
	model contentGenerator
}

// NewVertexOCR uses the OCR model of the client.
func NewVertexOCR(client *gcp.VertexClient) *VertexOCR {
	return &VertexOCR{model: client.OCRModel}
}

// Recognize implements pipeline.OCRClient.
func (o *VertexOCR) Recognize(ctx context.Context, page pipeline.PageImage) (string, error) {
	resp, err := o.model.GenerateContent(ctx,
		genai.Blob{MIMEType: page.MIMEType, Data: page.Data},
		genai.Text(gcp.OCRUserPrompt),
	)
	if err != nil {
		return "", classify(pipeline.StageOCR, fmt.Errorf("failed to generate content from gemini: %w", err))
	}

	text := extractText(resp, slog.With("page", page.Index))
	if err := checkRefusal(pipeline.StageOCR, text); err != nil {
		return "", err
	}
	return text, nil
}

// extractText concatenates the text parts of the first candidate and strips
// a surrounding code fence.
func extractText(resp *genai.GenerateContentResponse, logCtx *slog.Logger) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var b strings.Builder
	var textPartsFound int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			textPartsFound++
		}
	}
	if textPartsFound > 1 {
		logCtx.Warn("Gemini response contained several text parts; they have been concatenated.", "parts", textPartsFound)
	}

	content := strings.TrimSpace(b.String())
	content = strings.TrimPrefix(content, "```markdown")
	content = strings.TrimPrefix(content, "```text")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
