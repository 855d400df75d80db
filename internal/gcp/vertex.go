package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are a precise OCR engine. Your task is to transcribe all text visible on a single document page. Accuracy and completeness are of utmost importance."
const OCRUserPrompt = `You will be provided with one page of a PDF document.

Transcribe every piece of text on the page in natural reading order:

Text: Reproduce paragraphs, headings and lists exactly as written, in the original language.
Tables: Reproduce tables row by row, separating cells with " | ".
Images: Ignore images unless they contain legible text, in which case transcribe that text.
Do not translate, summarize or correct the text.

Return ONLY the transcribed text. If the page contains no text, return an empty response.`

// --- Analysis Model Prompts ---
const AnalysisSystemPrompt = "You are a careful document analyst. You receive consecutive pages of text recognized from a PDF and produce a faithful, structured analysis of their content."
const AnalysisUserPrompt = `The following text was recognized from consecutive pages of a PDF document. Each page starts with a header line of the form "==== <file> page <n> ====". Pages marked "[OCR failed: ...]" or "[no text recognized]" have no usable text.

Analyze the pages and report:
1.  **Summary**: What these pages are about.
2.  **Key facts**: Names, figures, dates and obligations stated in the text.
3.  **Gaps**: Which pages could not be read and whether that affects the analysis.

Only use information present in the text. Do not invent content for unreadable pages.`

// VertexClient holds the pre-configured generative models of the pipeline.
type VertexClient struct {
	OCRModel      *genai.GenerativeModel
	AnalysisModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a client holding the OCR and analysis models.
func NewVertexClient(ctx context.Context, projectID, region, ocrModelName, analysisModelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the OCR model ---
	ocrModel := baseClient.GenerativeModel(ocrModelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	ocrModel.SafetySettings = permissiveSafety()

	// --- Configure the analysis model ---
	analysisModel := baseClient.GenerativeModel(analysisModelName)
	analysisModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(AnalysisSystemPrompt)},
	}
	analysisModel.SafetySettings = permissiveSafety()

	return &VertexClient{
		OCRModel:      ocrModel,
		AnalysisModel: analysisModel,
		baseClient:    baseClient,
	}, nil
}

// Documents are transcribed verbatim, so content filters must not drop pages.
func permissiveSafety() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
