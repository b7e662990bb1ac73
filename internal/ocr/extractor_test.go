package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	pdfHeader = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
)

type visionServer struct {
	calls    atomic.Int32
	lastPath atomic.Value
	status   int
	body     any
}

func (v *visionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.calls.Add(1)
	v.lastPath.Store(r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	if v.status != 0 {
		w.WriteHeader(v.status)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"unavailable"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(v.body)
}

func newTestExtractor(t *testing.T, v *visionServer, cfg Config) *Extractor {
	t.Helper()
	srv := httptest.NewServer(v)
	t.Cleanup(srv.Close)

	e, err := NewExtractor(context.Background(), cfg, option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return e
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
	}{
		{name: "declared wins", data: pngHeader, declared: "image/jpeg", want: "image/jpeg"},
		{name: "parameters stripped", data: nil, declared: "Text/Plain; charset=utf-8", want: "text/plain"},
		{name: "empty sniffed", data: pngHeader, declared: "", want: "image/png"},
		{name: "octet-stream sniffed", data: pdfHeader, declared: "application/octet-stream", want: "application/pdf"},
		{name: "text sniffed", data: []byte("hello world"), declared: "", want: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMimeType(tt.data, tt.declared))
		})
	}
}

func TestExtract_Image(t *testing.T) {
	v := &visionServer{body: map[string]any{
		"responses": []map[string]any{{
			"fullTextAnnotation": map[string]any{"text": "  Invoice #123 Total $50\n"},
		}},
	}}
	e := newTestExtractor(t, v, Config{})

	text := e.Extract(context.Background(), pngHeader, "image/png")
	assert.Equal(t, "Invoice #123 Total $50", text)
	assert.Equal(t, "/v1/images:annotate", v.lastPath.Load())
}

func TestExtract_ImageFallsBackToTextAnnotations(t *testing.T) {
	v := &visionServer{body: map[string]any{
		"responses": []map[string]any{{
			"textAnnotations": []map[string]any{{"description": "NDA between parties"}},
		}},
	}}
	e := newTestExtractor(t, v, Config{})

	assert.Equal(t, "NDA between parties", e.Extract(context.Background(), pngHeader, ""))
}

func TestExtract_PDFJoinsPages(t *testing.T) {
	v := &visionServer{body: map[string]any{
		"responses": []map[string]any{{
			"responses": []map[string]any{
				{"fullTextAnnotation": map[string]any{"text": "page one"}},
				{},
				{"fullTextAnnotation": map[string]any{"text": "page two"}},
			},
		}},
	}}
	e := newTestExtractor(t, v, Config{MaxPages: 2})

	assert.Equal(t, "page one\npage two", e.Extract(context.Background(), pdfHeader, "application/pdf"))
	assert.Equal(t, "/v1/files:annotate", v.lastPath.Load())
	assert.Equal(t, []int64{1, 2}, e.pages)
}

func TestExtract_TextWithoutServiceCall(t *testing.T) {
	v := &visionServer{}
	e := newTestExtractor(t, v, Config{})

	assert.Equal(t, "a,b\n1,2", e.Extract(context.Background(), []byte("a,b\n1,2\n"), "text/csv"))
	assert.Equal(t, int32(0), v.calls.Load())
}

func TestExtract_FailOpen(t *testing.T) {
	tests := []struct {
		name string
		v    *visionServer
		data []byte
		mime string
	}{
		{name: "service error", v: &visionServer{status: http.StatusServiceUnavailable}, data: pngHeader, mime: "image/png"},
		{name: "annotation error", v: &visionServer{body: map[string]any{
			"responses": []map[string]any{{"error": map[string]any{"code": 3, "message": "bad image"}}},
		}}, data: pngHeader, mime: "image/png"},
		{name: "file error", v: &visionServer{body: map[string]any{
			"responses": []map[string]any{{"error": map[string]any{"code": 3, "message": "bad pdf"}}},
		}}, data: pdfHeader, mime: "application/pdf"},
		{name: "no annotation", v: &visionServer{body: map[string]any{"responses": []map[string]any{{}}}}, data: pngHeader, mime: "image/png"},
		{name: "unsupported type", v: &visionServer{}, data: []byte("PK\x03\x04"), mime: "application/zip"},
		{name: "empty data", v: &visionServer{}, data: nil, mime: "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(t, tt.v, Config{})
			assert.Equal(t, "", e.Extract(context.Background(), tt.data, tt.mime))
		})
	}
}

func TestExtract_Truncates(t *testing.T) {
	e := newTestExtractor(t, &visionServer{}, Config{MaxTextBytes: 5})
	assert.Equal(t, "héll", e.Extract(context.Background(), []byte("héllo wörld"), "text/plain"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; cutting inside it drops the whole rune
	assert.Equal(t, "h", truncate("hé", 2))
	assert.Equal(t, strings.Repeat("x", 4), truncate(strings.Repeat("x", 8), 4))
}
