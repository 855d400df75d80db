package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// refusalPhrases mark a model answer that refused the task instead of doing it.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// classify tags a provider error as transient or permanent for the retry
// policy. Already classified errors pass through unchanged.
func classify(stage pipeline.Stage, err error) error {
	if err == nil {
		return nil
	}
	var ce *pipeline.CallError
	if errors.As(err, &ce) {
		return err
	}
	if isTransient(err) {
		return pipeline.Transient(stage, err)
	}
	return pipeline.Permanent(stage, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retryableStatus(gerr.Code)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		}
	}
	return false
}

// retryableStatus reports whether an HTTP status code is worth retrying.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// httpStatusError classifies a non-2xx response from a plain HTTP provider.
func httpStatusError(stage pipeline.Stage, provider string, code int, body string) error {
	err := fmt.Errorf("%s returned status %d: %s", provider, code, strings.TrimSpace(body))
	if retryableStatus(code) {
		return pipeline.Transient(stage, err)
	}
	return pipeline.Permanent(stage, err)
}

// checkRefusal fails permanently when a model answer is a refusal.
func checkRefusal(stage pipeline.Stage, text string) error {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return pipeline.Permanent(stage, fmt.Errorf("model response indicates refusal: %q", phrase))
		}
	}
	return nil
}
