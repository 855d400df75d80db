package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

const (
	// DefaultXingchenURL is the iFlytek Xingchen workflow chat endpoint.
	DefaultXingchenURL = "https://xingchen-api.xf-yun.com/workflow/v1/chat/completions"
	// DefaultAnalysisPrompt is sent as the user input alongside each chunk.
	DefaultAnalysisPrompt = "请分析以下PDF内容"
)

// XingchenConfig identifies a deployed Xingchen workflow.
type XingchenConfig struct {
	APIKey    string
	APISecret string
	FlowID    string
	URL       string
	Prompt    string
}

// XingchenAnalyzer streams a chunk through an iFlytek Xingchen workflow and
// collects the streamed answer.
type XingchenAnalyzer struct {
	config     XingchenConfig
	httpClient *http.Client
}

// NewXingchenAnalyzer creates a workflow client. A nil httpClient gets the
// two minute timeout the workflow API needs for long answers.
func NewXingchenAnalyzer(config XingchenConfig, httpClient *http.Client) (*XingchenAnalyzer, error) {
	if config.APIKey == "" || config.APISecret == "" || config.FlowID == "" {
		return nil, errors.New("XINGCHEN_API_KEY, XINGCHEN_API_SECRET and XINGCHEN_FLOW_ID must be set")
	}
	if config.URL == "" {
		config.URL = DefaultXingchenURL
	}
	if config.Prompt == "" {
		config.Prompt = DefaultAnalysisPrompt
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &XingchenAnalyzer{config: config, httpClient: httpClient}, nil
}

type xingchenRequest struct {
	FlowID     string             `json:"flow_id"`
	UID        string             `json:"uid"`
	Parameters xingchenParameters `json:"parameters"`
	Ext        map[string]string  `json:"ext,omitempty"`
	Stream     bool               `json:"stream"`
}

type xingchenParameters struct {
	AgentUserInput string   `json:"AGENT_USER_INPUT"`
	PDFList        []string `json:"pdf_list"`
}

type xingchenFrame struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Analyze implements pipeline.WorkflowClient.
func (a *XingchenAnalyzer) Analyze(ctx context.Context, req pipeline.AnalysisRequest) (string, error) {
	payload, err := json.Marshal(xingchenRequest{
		FlowID: a.config.FlowID,
		UID:    req.TaskID,
		Parameters: xingchenParameters{
			AgentUserInput: a.config.Prompt,
			PDFList:        []string{req.Text},
		},
		Ext:    map[string]string{"caller": "workflow"},
		Stream: true,
	})
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageAnalysis, fmt.Errorf("failed to marshal workflow payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(payload))
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageAnalysis, fmt.Errorf("failed to build workflow request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s:%s", a.config.APIKey, a.config.APISecret))

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", classify(pipeline.StageAnalysis, fmt.Errorf("workflow request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", httpStatusError(pipeline.StageAnalysis, "xingchen workflow", resp.StatusCode, string(body))
	}

	text, err := readXingchenStream(resp.Body, slog.With("taskId", req.TaskID, "chunkId", req.ChunkID))
	if err != nil {
		return "", err
	}
	return text, nil
}

// readXingchenStream concatenates the delta contents of every "data: " line.
// Lines that are not JSON are skipped.
func readXingchenStream(r io.Reader, logCtx *slog.Logger) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var frame xingchenFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			logCtx.Warn("Skipping undecodable stream frame.", "frame", data, "error", err)
			continue
		}
		if frame.Code != 0 {
			return "", pipeline.Permanent(pipeline.StageAnalysis, fmt.Errorf("xingchen workflow error %d: %s", frame.Code, frame.Message))
		}
		if len(frame.Choices) > 0 {
			out.WriteString(frame.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", pipeline.Transient(pipeline.StageAnalysis, fmt.Errorf("workflow stream interrupted: %w", err))
	}
	return strings.TrimSpace(out.String()), nil
}
