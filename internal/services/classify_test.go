package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "grpc unavailable", err: status.Error(codes.Unavailable, "down"), transient: true},
		{name: "grpc resource exhausted wrapped", err: fmt.Errorf("call: %w", status.Error(codes.ResourceExhausted, "quota")), transient: true},
		{name: "grpc invalid argument", err: status.Error(codes.InvalidArgument, "bad"), transient: false},
		{name: "googleapi 503", err: &googleapi.Error{Code: 503}, transient: true},
		{name: "googleapi 429", err: &googleapi.Error{Code: 429}, transient: true},
		{name: "googleapi 403", err: &googleapi.Error{Code: 403}, transient: false},
		{name: "openai rate limit", err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, transient: true},
		{name: "openai bad request", err: &openai.APIError{HTTPStatusCode: 400, Message: "bad"}, transient: false},
		{name: "openai request error 502", err: &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("gateway")}, transient: true},
		{name: "network error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, transient: true},
		{name: "deadline", err: context.DeadlineExceeded, transient: true},
		{name: "canceled", err: context.Canceled, transient: false},
		{name: "plain", err: errors.New("boom"), transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(pipeline.StageOCR, tt.err)
			if pipeline.IsTransient(got) != tt.transient {
				t.Errorf("IsTransient(classify(%v)) = %v, want %v", tt.err, !tt.transient, tt.transient)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error lost its cause: %v", got)
			}
		})
	}
}

func TestClassifyKeepsExistingClassification(t *testing.T) {
	permanent := pipeline.Permanent(pipeline.StageAnalysis, status.Error(codes.Unavailable, "down"))
	if got := classify(pipeline.StageAnalysis, permanent); got != permanent {
		t.Errorf("classify() re-wrapped an already classified error: %v", got)
	}
	if classify(pipeline.StageOCR, nil) != nil {
		t.Error("classify(nil) != nil")
	}
}

func TestHTTPStatusError(t *testing.T) {
	if !pipeline.IsTransient(httpStatusError(pipeline.StageOCR, "p", 500, "oops")) {
		t.Error("500 should be transient")
	}
	if !pipeline.IsTransient(httpStatusError(pipeline.StageOCR, "p", 408, "")) {
		t.Error("408 should be transient")
	}
	if pipeline.IsTransient(httpStatusError(pipeline.StageOCR, "p", 401, "no")) {
		t.Error("401 should be permanent")
	}
}

func TestCheckRefusal(t *testing.T) {
	if err := checkRefusal(pipeline.StageOCR, "Invoice 42, total 10 EUR"); err != nil {
		t.Errorf("checkRefusal() on normal text = %v", err)
	}
	err := checkRefusal(pipeline.StageOCR, "I am unable to help with that.")
	if err == nil || pipeline.IsTransient(err) {
		t.Errorf("checkRefusal() on refusal = %v, want permanent error", err)
	}
}
