package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/teemow/attachsort/internal/category"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/logging"
)

// DefaultMaxInputBytes bounds the text sent for classification
const DefaultMaxInputBytes = 8000

// Completer answers a system instruction plus user text with free-form text
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config configures a Classifier
type Config struct {
	// MaxInputBytes truncates the text before it is sent (default DefaultMaxInputBytes)
	MaxInputBytes int

	// RatePerSecond limits completion calls. Zero disables limiting.
	RatePerSecond float64

	// Burst is the limiter burst size (default 1)
	Burst int

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Classifier maps document text onto the category taxonomy
type Classifier struct {
	completer Completer
	maxBytes  int
	limiter   *rate.Limiter
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// New creates a Classifier backed by completer
func New(completer Completer, cfg Config) *Classifier {
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = DefaultMaxInputBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Classifier{
		completer: completer,
		maxBytes:  cfg.MaxInputBytes,
		limiter:   limiter,
		metrics:   cfg.Metrics,
		logger:    logging.WithStage(cfg.Logger, "classify"),
	}
}

// SystemPrompt is the fixed instruction sent with every request
func SystemPrompt() string {
	names := make([]string, 0, len(category.Assignable()))
	for _, c := range category.Assignable() {
		names = append(names, c.String())
	}
	return fmt.Sprintf("Classify this document into one of the following categories: %s. "+
		"Reply with the category name only.", strings.Join(names, ", "))
}

// Classify returns the category for text. It never fails.
func (c *Classifier) Classify(ctx context.Context, text string) category.Category {
	text = strings.TrimSpace(text)
	if text == "" || c.completer == nil {
		c.metrics.RecordClassification(ctx, category.Uncategorized.String(), instrumentation.ClassifyResultSkipped)
		return category.Uncategorized
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fallback(ctx, fmt.Errorf("rate limiter: %w", err))
		}
	}

	label, err := c.completer.Complete(ctx, SystemPrompt(), truncate(text, c.maxBytes))
	if err != nil {
		return c.fallback(ctx, err)
	}

	cat, err := category.Parse(label)
	if err != nil {
		return c.fallback(ctx, err)
	}

	c.metrics.RecordClassification(ctx, cat.String(), instrumentation.ClassifyResultLabel)
	c.logger.Debug("document classified", logging.Category(cat.String()))
	return cat
}

func (c *Classifier) fallback(ctx context.Context, err error) category.Category {
	if errors.Is(err, category.ErrUnknownLabel) {
		c.logger.Warn("classifier returned a label outside the taxonomy", logging.Err(err))
	} else {
		c.logger.Warn("classification failed, using fallback category", logging.Err(err))
	}
	c.metrics.RecordClassification(ctx, category.Uncategorized.String(), instrumentation.ClassifyResultFallback)
	return category.Uncategorized
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
