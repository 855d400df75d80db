package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

func TestOpenAIAnalyzer_Analyze(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  A short summary. "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	a, err := NewOpenAIAnalyzer(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Prompt: "Summarize:"})
	if err != nil {
		t.Fatalf("NewOpenAIAnalyzer() error = %v", err)
	}
	text, err := a.Analyze(context.Background(), pipeline.AnalysisRequest{TaskID: "t", ChunkID: "0-0", Text: "page text"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if text != "A short summary." {
		t.Errorf("text = %q", text)
	}
	if got.Model != openai.GPT4oMini || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if got.Messages[1].Content != "Summarize:\n\npage text" {
		t.Errorf("user message = %q", got.Messages[1].Content)
	}
}

func TestOpenAIAnalyzer_RateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"requests"}}`)
	}))
	defer srv.Close()

	a, err := NewOpenAIAnalyzer(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIAnalyzer() error = %v", err)
	}
	_, err = a.Analyze(context.Background(), pipeline.AnalysisRequest{TaskID: "t", ChunkID: "0-0", Text: "x"})
	if !pipeline.IsTransient(err) {
		t.Errorf("Analyze() error = %v, want transient", err)
	}
}
