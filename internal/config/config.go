package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// Renderers, OCR providers and workflow providers selectable by name.
const (
	RendererPDFCPU = "pdfcpu"
	RendererMuPDF  = "mupdf"

	OCRVertex    = "vertex"
	OCRXfyun     = "xfyun"
	OCRTesseract = "tesseract"

	WorkflowVertex         = "vertex"
	WorkflowXingchen       = "xingchen"
	WorkflowCloudWorkflows = "cloudworkflows"
	WorkflowOpenAI         = "openai"
)

// Config is the process configuration. Every key can be set in the YAML file
// or overridden by the environment variable of the same name in upper case.
type Config struct {
	Port             string `mapstructure:"port"`
	GinMode          string `mapstructure:"gin_mode"`
	MaxUploadMB      int64  `mapstructure:"max_upload_mb"`
	DefaultChunkSize int    `mapstructure:"default_chunk_size"`

	OCRConcurrency      int           `mapstructure:"ocr_concurrency"`
	AnalysisConcurrency int           `mapstructure:"analysis_concurrency"`
	RetryMaxAttempts    int           `mapstructure:"retry_max_attempts"`
	RetryInitialBackoff time.Duration `mapstructure:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `mapstructure:"retry_max_backoff"`
	RetryMultiplier     float64       `mapstructure:"retry_multiplier"`

	Renderer         string `mapstructure:"renderer"`
	RenderDPI        int    `mapstructure:"render_dpi"`
	OCRProvider      string `mapstructure:"ocr_provider"`
	WorkflowProvider string `mapstructure:"workflow_provider"`

	ProjectID           string `mapstructure:"project_id"`
	VertexAIRegion      string `mapstructure:"vertex_ai_region"`
	VertexOCRModel      string `mapstructure:"vertex_ocr_model"`
	VertexAnalysisModel string `mapstructure:"vertex_analysis_model"`

	XfyunAppID     string `mapstructure:"xfyun_app_id"`
	XfyunAPIKey    string `mapstructure:"xfyun_api_key"`
	XfyunAPISecret string `mapstructure:"xfyun_api_secret"`
	XfyunOCRURL    string `mapstructure:"xfyun_ocr_url"`

	XingchenAPIKey    string `mapstructure:"xingchen_api_key"`
	XingchenAPISecret string `mapstructure:"xingchen_api_secret"`
	XingchenFlowID    string `mapstructure:"xingchen_flow_id"`
	XingchenURL       string `mapstructure:"xingchen_url"`
	AnalysisPrompt    string `mapstructure:"analysis_prompt"`

	WorkflowID           string        `mapstructure:"workflow_id"`
	WorkflowLocation     string        `mapstructure:"workflow_location"`
	WorkflowPollInterval time.Duration `mapstructure:"workflow_poll_interval"`

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	OpenAIModel   string `mapstructure:"openai_model"`

	TesseractLanguages string `mapstructure:"tesseract_languages"`

	FirestoreCollection string `mapstructure:"firestore_collection"`
	ResultsBucket       string `mapstructure:"results_bucket"`
	StorageEvents       bool   `mapstructure:"storage_events"`
}

var defaults = map[string]any{
	"port":                   "8080",
	"gin_mode":               "debug",
	"max_upload_mb":          50,
	"default_chunk_size":     5,
	"ocr_concurrency":        10,
	"analysis_concurrency":   4,
	"retry_max_attempts":     4,
	"retry_initial_backoff":  "1s",
	"retry_max_backoff":      "30s",
	"retry_multiplier":       2.0,
	"renderer":               RendererPDFCPU,
	"render_dpi":             144,
	"ocr_provider":           OCRVertex,
	"workflow_provider":      WorkflowVertex,
	"project_id":             "",
	"vertex_ai_region":       "us-central1",
	"vertex_ocr_model":       "gemini-1.5-pro",
	"vertex_analysis_model":  "gemini-1.5-pro",
	"xfyun_app_id":           "",
	"xfyun_api_key":          "",
	"xfyun_api_secret":       "",
	"xfyun_ocr_url":          "",
	"xingchen_api_key":       "",
	"xingchen_api_secret":    "",
	"xingchen_flow_id":       "",
	"xingchen_url":           "",
	"analysis_prompt":        "",
	"workflow_id":            "",
	"workflow_location":      "us-central1",
	"workflow_poll_interval": "2s",
	"openai_api_key":         "",
	"openai_base_url":        "",
	"openai_model":           "",
	"tesseract_languages":    "eng+chi_sim",
	"firestore_collection":   "",
	"results_bucket":         "",
	"storage_events":         false,
}

// Load reads configPath when it is not empty, then applies the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every inconsistency at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Port != "", "PORT must be set")
	check(c.MaxUploadMB > 0, "MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	check(c.DefaultChunkSize >= 1, "DEFAULT_CHUNK_SIZE must be at least 1, got %d", c.DefaultChunkSize)
	check(c.OCRConcurrency >= 1, "OCR_CONCURRENCY must be at least 1, got %d", c.OCRConcurrency)
	check(c.AnalysisConcurrency >= 1, "ANALYSIS_CONCURRENCY must be at least 1, got %d", c.AnalysisConcurrency)
	check(c.RetryMaxAttempts >= 1, "RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	check(c.RetryMultiplier >= 1, "RETRY_MULTIPLIER must be at least 1, got %v", c.RetryMultiplier)

	check(oneOf(c.Renderer, RendererPDFCPU, RendererMuPDF), "RENDERER %q is not one of pdfcpu, mupdf", c.Renderer)
	check(oneOf(c.OCRProvider, OCRVertex, OCRXfyun, OCRTesseract), "OCR_PROVIDER %q is not one of vertex, xfyun, tesseract", c.OCRProvider)
	check(oneOf(c.WorkflowProvider, WorkflowVertex, WorkflowXingchen, WorkflowCloudWorkflows, WorkflowOpenAI),
		"WORKFLOW_PROVIDER %q is not one of vertex, xingchen, cloudworkflows, openai", c.WorkflowProvider)

	// pdfcpu yields single-page PDFs, which only Gemini reads.
	check(c.Renderer != RendererPDFCPU || c.OCRProvider == OCRVertex,
		"OCR_PROVIDER %s needs page images: set RENDERER=mupdf", c.OCRProvider)

	if c.NeedsProject() {
		check(c.ProjectID != "", "PROJECT_ID must be set for the configured Google Cloud services")
	}
	if c.OCRProvider == OCRXfyun {
		check(c.XfyunAppID != "" && c.XfyunAPIKey != "" && c.XfyunAPISecret != "",
			"XFYUN_APP_ID, XFYUN_API_KEY and XFYUN_API_SECRET must be set for OCR_PROVIDER=xfyun")
	}
	switch c.WorkflowProvider {
	case WorkflowXingchen:
		check(c.XingchenAPIKey != "" && c.XingchenAPISecret != "" && c.XingchenFlowID != "",
			"XINGCHEN_API_KEY, XINGCHEN_API_SECRET and XINGCHEN_FLOW_ID must be set for WORKFLOW_PROVIDER=xingchen")
	case WorkflowCloudWorkflows:
		check(c.WorkflowID != "", "WORKFLOW_ID must be set for WORKFLOW_PROVIDER=cloudworkflows")
	case WorkflowOpenAI:
		check(c.OpenAIAPIKey != "", "OPENAI_API_KEY must be set for WORKFLOW_PROVIDER=openai")
	}
	return errors.Join(errs...)
}

// NeedsProject reports whether any configured component talks to Google Cloud.
func (c *Config) NeedsProject() bool {
	return c.UsesVertex() ||
		c.WorkflowProvider == WorkflowCloudWorkflows ||
		c.FirestoreCollection != "" ||
		c.ResultsBucket != "" ||
		c.StorageEvents
}

// UsesVertex reports whether a Gemini model is needed.
func (c *Config) UsesVertex() bool {
	return c.OCRProvider == OCRVertex || c.WorkflowProvider == WorkflowVertex
}

// MaxUploadBytes is the per-file upload limit.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Pipeline returns the orchestrator settings.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		OCRConcurrency:      c.OCRConcurrency,
		AnalysisConcurrency: c.AnalysisConcurrency,
		Retry: pipeline.RetryPolicy{
			MaxAttempts:    c.RetryMaxAttempts,
			InitialBackoff: c.RetryInitialBackoff,
			MaxBackoff:     c.RetryMaxBackoff,
			Multiplier:     c.RetryMultiplier,
		},
	}
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
