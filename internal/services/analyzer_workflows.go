package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// executionsAPI is the part of the Workflows Executions client in use.
type executionsAPI interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
	GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// CloudWorkflowConfig names the deployed workflow that analyzes a chunk.
type CloudWorkflowConfig struct {
	ProjectID        string
	WorkflowLocation string
	WorkflowID       string
	PollInterval     time.Duration
}

// CloudWorkflowAnalyzer runs one Cloud Workflows execution per chunk and
// waits for its result.
type CloudWorkflowAnalyzer struct {
	executions executionsAPI
	config     CloudWorkflowConfig
}

// NewCloudWorkflowAnalyzer wraps an executions client.
func NewCloudWorkflowAnalyzer(client executionsAPI, config CloudWorkflowConfig) (*CloudWorkflowAnalyzer, error) {
	if config.ProjectID == "" || config.WorkflowID == "" {
		return nil, errors.New("PROJECT_ID and WORKFLOW_ID must be set for the cloudworkflows provider")
	}
	if config.WorkflowLocation == "" {
		config.WorkflowLocation = "us-central1"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &CloudWorkflowAnalyzer{executions: client, config: config}, nil
}

type workflowArgument struct {
	TaskID      string `json:"taskId"`
	DocumentID  string `json:"documentId"`
	Filename    string `json:"filename"`
	ChunkID     string `json:"chunkId"`
	SourcePages []int  `json:"sourcePages"`
	Text        string `json:"text"`
}

// Analyze implements pipeline.WorkflowClient.
func (a *CloudWorkflowAnalyzer) Analyze(ctx context.Context, req pipeline.AnalysisRequest) (string, error) {
	logCtx := slog.With("taskId", req.TaskID, "chunkId", req.ChunkID)

	payloadBytes, err := json.Marshal(workflowArgument{
		TaskID:      req.TaskID,
		DocumentID:  req.DocumentID,
		Filename:    req.Filename,
		ChunkID:     req.ChunkID,
		SourcePages: req.SourcePages,
		Text:        req.Text,
	})
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageAnalysis, fmt.Errorf("failed to marshal workflow payload: %w", err))
	}

	exec, err := a.executions.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", a.config.ProjectID, a.config.WorkflowLocation, a.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	})
	if err != nil {
		return "", classify(pipeline.StageAnalysis, fmt.Errorf("failed to trigger workflow execution: %w", err))
	}
	logCtx.Info("Workflow execution started.", "execution", exec.GetName())

	for {
		switch exec.GetState() {
		case executionspb.Execution_SUCCEEDED:
			return parseWorkflowResult(exec.GetResult()), nil
		case executionspb.Execution_FAILED, executionspb.Execution_CANCELLED:
			return "", pipeline.Permanent(pipeline.StageAnalysis, fmt.Errorf("workflow execution %s ended %s: %s", exec.GetName(), exec.GetState(), exec.GetError().GetPayload()))
		}

		if err := gax.Sleep(ctx, a.config.PollInterval); err != nil {
			return "", pipeline.Permanent(pipeline.StageAnalysis, fmt.Errorf("stopped waiting for workflow execution: %w", err))
		}
		exec, err = a.executions.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: exec.GetName()})
		if err != nil {
			return "", classify(pipeline.StageAnalysis, fmt.Errorf("failed to poll workflow execution: %w", err))
		}
	}
}

// parseWorkflowResult accepts a JSON string, an object with an "analysis"
// field, or anything else verbatim.
func parseWorkflowResult(result string) string {
	var s string
	if err := json.Unmarshal([]byte(result), &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Analysis *string `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(result), &obj); err == nil && obj.Analysis != nil {
		return strings.TrimSpace(*obj.Analysis)
	}
	return strings.TrimSpace(result)
}
