package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/Lllllllleong/pdfanalysisflow/internal/gcp"
	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// OpenAIConfig selects an OpenAI compatible chat endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string
}

// OpenAIAnalyzer analyzes chunks with a chat completion model.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
	prompt string
}

// NewOpenAIAnalyzer creates a chat completion analyzer.
func NewOpenAIAnalyzer(config OpenAIConfig) (*OpenAIAnalyzer, error) {
	if config.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY must be set")
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.Prompt == "" {
		config.Prompt = gcp.AnalysisUserPrompt
	}
	return &OpenAIAnalyzer{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
		prompt: config.Prompt,
	}, nil
}

// Analyze implements pipeline.WorkflowClient.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req pipeline.AnalysisRequest) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: gcp.AnalysisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: a.prompt + "\n\n" + req.Text},
		},
	})
	if err != nil {
		return "", classify(pipeline.StageAnalysis, fmt.Errorf("chat completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", pipeline.Permanent(pipeline.StageAnalysis, errors.New("no response generated"))
	}

	analysis := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := checkRefusal(pipeline.StageAnalysis, analysis); err != nil {
		return "", err
	}
	return analysis, nil
}
