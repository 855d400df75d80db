package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

// DefaultXfyunOCRURL is the iFlytek general text recognition endpoint.
const DefaultXfyunOCRURL = "https://api.xf-yun.com/v1/private/sf8e6aca1"

const xfyunServiceID = "sf8e6aca1"

// XfyunOCRConfig holds the iFlytek open platform credentials.
type XfyunOCRConfig struct {
	AppID     string
	APIKey    string
	APISecret string
	URL       string
}

// XfyunOCR calls the iFlytek general OCR API with raster page images.
type XfyunOCR struct {
	config     XfyunOCRConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewXfyunOCR creates a client. A nil httpClient gets a two minute timeout.
func NewXfyunOCR(config XfyunOCRConfig, httpClient *http.Client) (*XfyunOCR, error) {
	if config.AppID == "" || config.APIKey == "" || config.APISecret == "" {
		return nil, errors.New("XFYUN_APP_ID, XFYUN_API_KEY and XFYUN_API_SECRET must be set")
	}
	if config.URL == "" {
		config.URL = DefaultXfyunOCRURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &XfyunOCR{config: config, httpClient: httpClient, now: time.Now}, nil
}

type xfyunRequest struct {
	Header struct {
		AppID  string `json:"app_id"`
		Status int    `json:"status"`
	} `json:"header"`
	Parameter map[string]xfyunParameter `json:"parameter"`
	Payload   map[string]xfyunImage     `json:"payload"`
}

type xfyunParameter struct {
	Category string `json:"category"`
	Result   struct {
		Encoding string `json:"encoding"`
		Compress string `json:"compress"`
		Format   string `json:"format"`
	} `json:"result"`
}

type xfyunImage struct {
	Encoding string `json:"encoding"`
	Image    string `json:"image"`
	Status   int    `json:"status"`
}

type xfyunResponse struct {
	Header struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		SID     string `json:"sid"`
	} `json:"header"`
	Payload struct {
		Result struct {
			Text string `json:"text"`
		} `json:"result"`
	} `json:"payload"`
}

type xfyunDocument struct {
	Pages []struct {
		Lines []struct {
			Words []struct {
				Content string `json:"content"`
			} `json:"words"`
		} `json:"lines"`
	} `json:"pages"`
}

// Recognize implements pipeline.OCRClient.
func (o *XfyunOCR) Recognize(ctx context.Context, page pipeline.PageImage) (string, error) {
	encoding, err := imageEncoding(page.MIMEType)
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, err)
	}

	body, err := json.Marshal(o.newRequest(encoding, page.Data))
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("failed to marshal OCR request: %w", err))
	}
	signed, err := o.signedURL(http.MethodPost)
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signed, bytes.NewReader(body))
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("failed to build OCR request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("app_id", o.config.AppID)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", classify(pipeline.StageOCR, fmt.Errorf("OCR request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pipeline.Transient(pipeline.StageOCR, fmt.Errorf("failed to read OCR response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", httpStatusError(pipeline.StageOCR, "xfyun ocr", resp.StatusCode, string(raw))
	}

	var result xfyunResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("failed to decode OCR response: %w", err))
	}
	if result.Header.Code != 0 {
		return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("xfyun ocr error %d: %s (sid %s)", result.Header.Code, result.Header.Message, result.Header.SID))
	}
	if result.Payload.Result.Text == "" {
		return "", nil
	}

	decoded, err := base64.StdEncoding.DecodeString(result.Payload.Result.Text)
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageOCR, fmt.Errorf("failed to decode OCR text: %w", err))
	}
	return parseXfyunText(decoded), nil
}

func (o *XfyunOCR) newRequest(encoding string, image []byte) xfyunRequest {
	var req xfyunRequest
	req.Header.AppID = o.config.AppID
	req.Header.Status = 3

	var param xfyunParameter
	param.Category = "ch_en_public_cloud"
	param.Result.Encoding = "utf8"
	param.Result.Compress = "raw"
	param.Result.Format = "json"
	req.Parameter = map[string]xfyunParameter{xfyunServiceID: param}

	req.Payload = map[string]xfyunImage{
		xfyunServiceID + "_data_1": {
			Encoding: encoding,
			Image:    base64.StdEncoding.EncodeToString(image),
			Status:   3,
		},
	}
	return req
}

// signedURL appends the HMAC-SHA256 authorization of the request line to
// the endpoint URL.
func (o *XfyunOCR) signedURL(method string) (string, error) {
	u, err := url.Parse(o.config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid OCR url %q: %w", o.config.URL, err)
	}
	date := o.now().UTC().Format(http.TimeFormat)

	origin := fmt.Sprintf("host: %s\ndate: %s\n%s %s HTTP/1.1", u.Host, date, method, u.EscapedPath())
	mac := hmac.New(sha256.New, []byte(o.config.APISecret))
	mac.Write([]byte(origin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authorization := fmt.Sprintf(`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`, o.config.APIKey, signature)

	q := url.Values{}
	q.Set("host", u.Host)
	q.Set("date", date)
	q.Set("authorization", base64.StdEncoding.EncodeToString([]byte(authorization)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseXfyunText turns the decoded result into one line of text per
// recognized line. Non-JSON results are returned trimmed.
func parseXfyunText(decoded []byte) string {
	var doc xfyunDocument
	if err := json.Unmarshal(decoded, &doc); err != nil {
		return strings.TrimSpace(string(decoded))
	}
	var lines []string
	for _, p := range doc.Pages {
		for _, l := range p.Lines {
			var b strings.Builder
			for _, w := range l.Words {
				b.WriteString(w.Content)
			}
			if line := strings.TrimSpace(b.String()); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func imageEncoding(mimeType string) (string, error) {
	switch mimeType {
	case mimePNG:
		return "png", nil
	case "image/jpeg":
		return "jpg", nil
	case "image/bmp":
		return "bmp", nil
	}
	return "", fmt.Errorf("xfyun ocr needs a raster image, got %s", mimeType)
}
