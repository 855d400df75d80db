package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

type fakeExecutions struct {
	createErr error
	created   *executionspb.CreateExecutionRequest
	states    []*executionspb.Execution
	polls     int
}

func (f *fakeExecutions) CreateExecution(_ context.Context, req *executionspb.CreateExecutionRequest, _ ...gax.CallOption) (*executionspb.Execution, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = req
	return &executionspb.Execution{Name: "executions/1", State: executionspb.Execution_ACTIVE}, nil
}

func (f *fakeExecutions) GetExecution(_ context.Context, req *executionspb.GetExecutionRequest, _ ...gax.CallOption) (*executionspb.Execution, error) {
	exec := f.states[f.polls]
	if f.polls < len(f.states)-1 {
		f.polls++
	}
	return exec, nil
}

func newTestWorkflowAnalyzer(t *testing.T, fake *fakeExecutions) *CloudWorkflowAnalyzer {
	t.Helper()
	a, err := NewCloudWorkflowAnalyzer(fake, CloudWorkflowConfig{
		ProjectID:    "proj",
		WorkflowID:   "analyze-chunk",
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewCloudWorkflowAnalyzer() error = %v", err)
	}
	return a
}

func TestCloudWorkflowAnalyzer_PollsUntilSucceeded(t *testing.T) {
	fake := &fakeExecutions{states: []*executionspb.Execution{
		{Name: "executions/1", State: executionspb.Execution_ACTIVE},
		{Name: "executions/1", State: executionspb.Execution_SUCCEEDED, Result: `{"analysis":" Key findings "}`},
	}}
	a := newTestWorkflowAnalyzer(t, fake)

	text, err := a.Analyze(context.Background(), pipeline.AnalysisRequest{
		TaskID: "task-1", DocumentID: "doc-1", Filename: "a.pdf", ChunkID: "0-1", SourcePages: []int{4, 5}, Text: "body",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if text != "Key findings" {
		t.Errorf("text = %q", text)
	}
	if fake.created.GetParent() != "projects/proj/locations/us-central1/workflows/analyze-chunk" {
		t.Errorf("parent = %q", fake.created.GetParent())
	}

	var arg workflowArgument
	if err := json.Unmarshal([]byte(fake.created.GetExecution().GetArgument()), &arg); err != nil {
		t.Fatalf("argument is not JSON: %v", err)
	}
	if arg.ChunkID != "0-1" || arg.Text != "body" || len(arg.SourcePages) != 2 {
		t.Errorf("argument = %+v", arg)
	}
}

func TestCloudWorkflowAnalyzer_FailedExecutionIsPermanent(t *testing.T) {
	fake := &fakeExecutions{states: []*executionspb.Execution{
		{Name: "executions/1", State: executionspb.Execution_FAILED, Error: &executionspb.Execution_Error{Payload: "boom"}},
	}}
	a := newTestWorkflowAnalyzer(t, fake)

	_, err := a.Analyze(context.Background(), pipeline.AnalysisRequest{TaskID: "t", ChunkID: "0-0"})
	if err == nil || pipeline.IsTransient(err) {
		t.Errorf("Analyze() error = %v, want permanent", err)
	}
}

func TestCloudWorkflowAnalyzer_UnavailableIsTransient(t *testing.T) {
	a := newTestWorkflowAnalyzer(t, &fakeExecutions{createErr: status.Error(codes.Unavailable, "try later")})

	_, err := a.Analyze(context.Background(), pipeline.AnalysisRequest{TaskID: "t", ChunkID: "0-0"})
	if !pipeline.IsTransient(err) {
		t.Errorf("Analyze() error = %v, want transient", err)
	}
}

func TestParseWorkflowResult(t *testing.T) {
	tests := []struct{ in, want string }{
		{`"quoted answer"`, "quoted answer"},
		{`{"analysis":"from object"}`, "from object"},
		{`{"other":1}`, `{"other":1}`},
		{" plain text ", "plain text"},
	}
	for _, tt := range tests {
		if got := parseWorkflowResult(tt.in); got != tt.want {
			t.Errorf("parseWorkflowResult(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
