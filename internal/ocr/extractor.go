package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/logging"
)

const (
	// DefaultMaxTextBytes caps the text returned for one attachment
	DefaultMaxTextBytes = 100_000

	// DefaultMaxPages is the number of leading pages read from multi-page documents
	DefaultMaxPages = 5

	featureDocumentText = "DOCUMENT_TEXT_DETECTION"
	octetStream         = "application/octet-stream"
)

// route describes how a mime type is turned into text
type route int

const (
	routeUnsupported route = iota
	routeText
	routeImage
	routeFile
)

var routes = map[string]route{
	"text/plain":               routeText,
	"text/csv":                 routeText,
	"text/markdown":            routeText,
	"image/jpeg":               routeImage,
	"image/png":                routeImage,
	"image/bmp":                routeImage,
	"image/webp":               routeImage,
	"image/x-icon":             routeImage,
	"image/vnd.microsoft.icon": routeImage,
	"application/pdf":          routeFile,
	"image/tiff":               routeFile,
	"image/gif":                routeFile,
}

// Config configures an Extractor
type Config struct {
	// APIKey authenticates against Vision. Empty uses application default credentials.
	APIKey string

	// MaxTextBytes caps returned text (default DefaultMaxTextBytes)
	MaxTextBytes int

	// MaxPages is the number of pages read from PDF/TIFF/GIF documents (default DefaultMaxPages)
	MaxPages int

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Extractor turns attachment bytes into text using Google Cloud Vision
type Extractor struct {
	svc      *vision.Service
	maxBytes int
	pages    []int64
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// NewExtractor creates an Extractor. Extra client options (e.g.
// option.WithHTTPClient, option.WithEndpoint) are appended after the
// credential option derived from cfg.
func NewExtractor(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Extractor, error) {
	if cfg.APIKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	}

	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vision service: %w", err)
	}

	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = DefaultMaxTextBytes
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pages := make([]int64, cfg.MaxPages)
	for i := range pages {
		pages[i] = int64(i + 1)
	}

	return &Extractor{
		svc:      svc,
		maxBytes: cfg.MaxTextBytes,
		pages:    pages,
		metrics:  cfg.Metrics,
		logger:   logging.WithStage(cfg.Logger, "ocr"),
	}, nil
}

// DetectMimeType returns the media type of data, without parameters. The
// declared type is trusted unless it is empty or application/octet-stream.
func DetectMimeType(data []byte, declared string) string {
	declared = normalize(declared)
	if declared != "" && declared != octetStream {
		return declared
	}
	return normalize(mimetype.Detect(data).String())
}

func normalize(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// Extract returns the text content of data, or "" when nothing could be read.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) string {
	if len(data) == 0 {
		return ""
	}

	mimeType = DetectMimeType(data, mimeType)

	var (
		text string
		err  error
	)
	switch routes[mimeType] {
	case routeText:
		text = strings.ToValidUTF8(string(data), "")
	case routeImage:
		text, err = e.annotateImage(ctx, data)
	case routeFile:
		text, err = e.annotateFile(ctx, data, mimeType)
	default:
		e.logger.Debug("unsupported attachment type for text extraction", slog.String("mime_type", mimeType))
		return ""
	}

	if err != nil {
		e.logger.Warn("text extraction failed", slog.String("mime_type", mimeType), logging.Err(err))
		return ""
	}

	return truncate(strings.TrimSpace(text), e.maxBytes)
}

func (e *Extractor) annotateImage(ctx context.Context, data []byte) (text string, err error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceVision, instrumentation.OperationAnnotate)
	defer span.End()
	defer e.record(ctx, time.Now(), &err)

	resp, err := e.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(data)},
			Features: []*vision.Feature{{Type: featureDocumentText}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("images:annotate: %w", err)
	}

	if len(resp.Responses) == 0 {
		return "", nil
	}
	return imageText(resp.Responses[0])
}

func (e *Extractor) annotateFile(ctx context.Context, data []byte, mimeType string) (text string, err error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceVision, instrumentation.OperationAnnotate)
	defer span.End()
	defer e.record(ctx, time.Now(), &err)

	resp, err := e.svc.Files.Annotate(&vision.BatchAnnotateFilesRequest{
		Requests: []*vision.AnnotateFileRequest{{
			InputConfig: &vision.InputConfig{
				Content:  base64.StdEncoding.EncodeToString(data),
				MimeType: mimeType,
			},
			Features: []*vision.Feature{{Type: featureDocumentText}},
			Pages:    e.pages,
		}},
	}).Context(ctx).Do()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("files:annotate: %w", err)
	}

	if len(resp.Responses) == 0 {
		return "", nil
	}
	file := resp.Responses[0]
	if file.Error != nil {
		return "", fmt.Errorf("files:annotate: %s (code %d)", file.Error.Message, file.Error.Code)
	}

	var pages []string
	for _, page := range file.Responses {
		t, err := imageText(page)
		if err != nil {
			return "", err
		}
		if t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n"), nil
}

func (e *Extractor) record(ctx context.Context, start time.Time, err *error) {
	status := instrumentation.StatusSuccess
	if *err != nil {
		status = instrumentation.StatusError
	}
	e.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceVision, instrumentation.OperationAnnotate, status, time.Since(start))
}

// imageText picks the best available text from one annotation response
func imageText(resp *vision.AnnotateImageResponse) (string, error) {
	if resp == nil {
		return "", nil
	}
	if resp.Error != nil {
		return "", fmt.Errorf("annotation error: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	if resp.FullTextAnnotation != nil && resp.FullTextAnnotation.Text != "" {
		return resp.FullTextAnnotation.Text, nil
	}
	if len(resp.TextAnnotations) > 0 {
		return resp.TextAnnotations[0].Description, nil
	}
	return "", nil
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
