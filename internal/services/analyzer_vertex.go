package services

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/pdfanalysisflow/internal/gcp"
	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// VertexAnalyzer analyzes chunks with the Gemini analysis model.
type VertexAnalyzer struct {
	model  contentGenerator
	prompt string
}

// NewVertexAnalyzer uses the analysis model of the client. An empty prompt
// selects the built-in analysis instructions.
func NewVertexAnalyzer(client *gcp.VertexClient, prompt string) *VertexAnalyzer {
	if prompt == "" {
		prompt = gcp.AnalysisUserPrompt
	}
	return &VertexAnalyzer{model: client.AnalysisModel, prompt: prompt}
}

// Analyze implements pipeline.WorkflowClient.
func (a *VertexAnalyzer) Analyze(ctx context.Context, req pipeline.AnalysisRequest) (string, error) {
	logCtx := slog.With("taskId", req.TaskID, "chunkId", req.ChunkID)

	resp, err := a.model.GenerateContent(ctx, genai.Text(a.prompt), genai.Text(req.Text))
	if err != nil {
		return "", classify(pipeline.StageAnalysis, fmt.Errorf("failed to generate analysis from gemini: %w", err))
	}

	analysis := extractText(resp, logCtx)
	if err := checkRefusal(pipeline.StageAnalysis, analysis); err != nil {
		logCtx.Error("Analysis refused.", "error", err)
		return "", err
	}
	if analysis == "" {
		logCtx.Warn("No analysis extracted from response.")
	}
	return analysis, nil
}
