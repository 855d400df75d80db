package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/pdfanalysisflow/internal/pipeline"
)

var xfyunTestTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newTestXfyun(t *testing.T, handler http.HandlerFunc) (*XfyunOCR, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	o, err := NewXfyunOCR(XfyunOCRConfig{
		AppID:     "app",
		APIKey:    "key",
		APISecret: "secret",
		URL:       srv.URL + "/v1/private/sf8e6aca1",
	}, srv.Client())
	if err != nil {
		t.Fatalf("NewXfyunOCR() error = %v", err)
	}
	o.now = func() time.Time { return xfyunTestTime }
	return o, srv
}

func xfyunResult(t *testing.T, doc string) string {
	t.Helper()
	return fmt.Sprintf(`{"header":{"code":0,"message":"success","sid":"s1"},"payload":{"result":{"text":%q}}}`,
		base64.StdEncoding.EncodeToString([]byte(doc)))
}

func TestXfyunOCR_Recognize(t *testing.T) {
	var gotQuery url.Values
	var gotBody xfyunRequest
	var gotHost string
	o, _ := newTestXfyun(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotHost = r.Host
		if r.Header.Get("app_id") != "app" {
			t.Errorf("app_id header = %q", r.Header.Get("app_id"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		doc := `{"pages":[{"lines":[{"words":[{"content":"Hello"},{"content":" world"}]},{"words":[{"content":"  "}]},{"words":[{"content":"第二行"}]}]}]}`
		fmt.Fprint(w, xfyunResult(t, doc))
	})

	text, err := o.Recognize(context.Background(), pipeline.PageImage{Index: 0, Data: []byte("png-bytes"), MIMEType: mimePNG})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "Hello world\n第二行" {
		t.Errorf("text = %q", text)
	}

	image := gotBody.Payload["sf8e6aca1_data_1"]
	if image.Encoding != "png" || image.Image != base64.StdEncoding.EncodeToString([]byte("png-bytes")) || image.Status != 3 {
		t.Errorf("payload image = %+v", image)
	}
	if gotBody.Header.AppID != "app" || gotBody.Parameter["sf8e6aca1"].Category != "ch_en_public_cloud" {
		t.Errorf("request = %+v", gotBody)
	}

	date := xfyunTestTime.Format(http.TimeFormat)
	if gotQuery.Get("date") != date || gotQuery.Get("host") != gotHost {
		t.Errorf("query = %v", gotQuery)
	}
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(fmt.Sprintf("host: %s\ndate: %s\nPOST /v1/private/sf8e6aca1 HTTP/1.1", gotHost, date)))
	wantSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	auth, err := base64.StdEncoding.DecodeString(gotQuery.Get("authorization"))
	if err != nil {
		t.Fatalf("authorization not base64: %v", err)
	}
	want := fmt.Sprintf(`api_key="key", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`, wantSig)
	if string(auth) != want {
		t.Errorf("authorization = %s\nwant %s", auth, want)
	}
}

func TestXfyunOCR_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: "busy", transient: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"HMAC signature does not match"}`, transient: false},
		{name: "api error code", status: http.StatusOK, body: `{"header":{"code":10163,"message":"invalid image","sid":"s"}}`, transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestXfyun(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := o.Recognize(context.Background(), pipeline.PageImage{Data: []byte("x"), MIMEType: mimePNG})
			if err == nil {
				t.Fatal("Recognize() succeeded")
			}
			if pipeline.IsTransient(err) != tt.transient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, !tt.transient, tt.transient)
			}
		})
	}
}

func TestXfyunOCR_RejectsPDFPages(t *testing.T) {
	o, _ := newTestXfyun(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := o.Recognize(context.Background(), pipeline.PageImage{Data: []byte("%PDF"), MIMEType: mimePDF})
	if err == nil || pipeline.IsTransient(err) || !strings.Contains(err.Error(), "raster image") {
		t.Errorf("Recognize() error = %v", err)
	}
}

func TestNewXfyunOCR_RequiresCredentials(t *testing.T) {
	if _, err := NewXfyunOCR(XfyunOCRConfig{AppID: "a"}, nil); err == nil {
		t.Error("NewXfyunOCR() accepted missing credentials")
	}
}

func TestParseXfyunTextPlain(t *testing.T) {
	if got := parseXfyunText([]byte("  plain text \n")); got != "plain text" {
		t.Errorf("parseXfyunText() = %q", got)
	}
}
