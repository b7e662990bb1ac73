package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/attachsort/internal/classify"
	"github.com/teemow/attachsort/internal/dedup"
	"github.com/teemow/attachsort/internal/google"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/ocr"
	"github.com/teemow/attachsort/internal/pipeline"
	"github.com/teemow/attachsort/internal/retry"
	"github.com/teemow/attachsort/internal/server"
)

// envFallback applies the value of env to flag when the flag was not set on
// the command line and env is non-empty.
func envFallback(cmd *cobra.Command, flag, env string, set func(string) error) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	if err := set(v); err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	return nil
}

func setString(target *string) func(string) error {
	return func(v string) error {
		*target = v
		return nil
	}
}

func setInt(target *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*target = n
		return nil
	}
}

func setInt64(target *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*target = n
		return nil
	}
}

func setFloat(target *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*target = f
		return nil
	}
}

func setBool(target *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*target = b
		return nil
	}
}

func setDuration(target *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*target = d
		return nil
	}
}

// parseCommaSeparatedList splits a comma-separated string into a slice of trimmed, non-empty values
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// pipelineOptions are the settings shared by serve and sort
type pipelineOptions struct {
	credentialsFile string

	openAIKey     string
	openAIModel   string
	openAIBaseURL string
	classifyRate  float64

	visionAPIKey string
	ocrDisabled  bool

	redisURL    string
	redisPrefix string
	dedupTTL    time.Duration

	concurrency int
	maxMessages int64
	runTimeout  time.Duration
	rootFolder  string
}

func (o *pipelineOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.credentialsFile, "credentials-file", google.DefaultCredentialsFile, "Google OAuth client file (installed or web). Can also use GOOGLE_CREDENTIALS_FILE env var.")
	f.StringVar(&o.openAIKey, "openai-api-key", "", "OpenAI API key. Without it every attachment is filed as Uncategorized. Can also use OPENAI_API_KEY env var.")
	f.StringVar(&o.openAIModel, "openai-model", classify.DefaultModel, "Chat model used for classification. Can also use OPENAI_MODEL env var.")
	f.StringVar(&o.openAIBaseURL, "openai-base-url", "", "Override the OpenAI API endpoint. Can also use OPENAI_BASE_URL env var.")
	f.Float64Var(&o.classifyRate, "classify-rate", 0, "Maximum classification requests per second, 0 for no limit. Can also use CLASSIFY_RATE env var.")
	f.StringVar(&o.visionAPIKey, "vision-api-key", "", "Google Cloud Vision API key. Empty uses application default credentials. Can also use VISION_API_KEY env var.")
	f.BoolVar(&o.ocrDisabled, "ocr-disabled", false, "Skip text extraction; attachments are classified without text. Can also use OCR_DISABLED env var.")
	f.StringVar(&o.redisURL, "redis-url", "", "Redis URL for the dedup index (e.g. redis://localhost:6379/0). Empty keeps hashes in memory. Can also use REDIS_URL env var.")
	f.StringVar(&o.redisPrefix, "redis-key-prefix", dedup.DefaultKeyPrefix, "Prefix for dedup keys in Redis. Can also use REDIS_KEY_PREFIX env var.")
	f.DurationVar(&o.dedupTTL, "dedup-ttl", 0, "Forget uploaded hashes after this long, 0 keeps them forever (Redis only). Can also use DEDUP_TTL env var.")
	f.IntVar(&o.concurrency, "concurrency", pipeline.DefaultConcurrency, "Attachments processed in parallel. Can also use PIPELINE_CONCURRENCY env var.")
	f.Int64Var(&o.maxMessages, "max-messages", pipeline.DefaultMaxMessages, "Maximum messages scanned per run. Can also use MAX_MESSAGES env var.")
	f.DurationVar(&o.runTimeout, "run-timeout", 5*time.Minute, "Deadline for one run; unfinished attachments are reported as incomplete. Can also use RUN_TIMEOUT env var.")
	f.StringVar(&o.rootFolder, "root-folder-id", "", "Drive folder that holds the category folders. Empty uses My Drive. Can also use DRIVE_ROOT_FOLDER_ID env var.")
}

func (o *pipelineOptions) loadEnv(cmd *cobra.Command) error {
	fallbacks := []struct {
		flag string
		env  string
		set  func(string) error
	}{
		{"credentials-file", "GOOGLE_CREDENTIALS_FILE", setString(&o.credentialsFile)},
		{"openai-api-key", "OPENAI_API_KEY", setString(&o.openAIKey)},
		{"openai-model", "OPENAI_MODEL", setString(&o.openAIModel)},
		{"openai-base-url", "OPENAI_BASE_URL", setString(&o.openAIBaseURL)},
		{"classify-rate", "CLASSIFY_RATE", setFloat(&o.classifyRate)},
		{"vision-api-key", "VISION_API_KEY", setString(&o.visionAPIKey)},
		{"ocr-disabled", "OCR_DISABLED", setBool(&o.ocrDisabled)},
		{"redis-url", "REDIS_URL", setString(&o.redisURL)},
		{"redis-key-prefix", "REDIS_KEY_PREFIX", setString(&o.redisPrefix)},
		{"dedup-ttl", "DEDUP_TTL", setDuration(&o.dedupTTL)},
		{"concurrency", "PIPELINE_CONCURRENCY", setInt(&o.concurrency)},
		{"max-messages", "MAX_MESSAGES", setInt64(&o.maxMessages)},
		{"run-timeout", "RUN_TIMEOUT", setDuration(&o.runTimeout)},
		{"root-folder-id", "DRIVE_ROOT_FOLDER_ID", setString(&o.rootFolder)},
	}
	for _, fb := range fallbacks {
		if err := envFallback(cmd, fb.flag, fb.env, fb.set); err != nil {
			return err
		}
	}

	if o.concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", o.concurrency)
	}
	if o.maxMessages <= 0 {
		return fmt.Errorf("max messages must be positive, got %d", o.maxMessages)
	}
	return nil
}

// pipelineStack is the process-wide part of the pipeline
type pipelineStack struct {
	factory *pipeline.Factory

	// checks are readiness checks for external stores
	checks map[string]server.CheckFunc

	closers []func() error
}

func (s *pipelineStack) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildPipeline creates the dedup index, text extractor and classifier and
// binds them into a Factory. OCR and classification degrade to no text and
// Uncategorized when their backends are not configured.
func (o *pipelineOptions) buildPipeline(ctx context.Context, provider *instrumentation.Provider, trigger string, logger *slog.Logger) (*pipelineStack, error) {
	metrics := provider.Metrics()
	stack := &pipelineStack{checks: make(map[string]server.CheckFunc)}

	var index dedup.Index
	if o.redisURL != "" {
		redisIndex, err := dedup.NewRedisIndex(ctx, dedup.RedisConfig{
			URL:       o.redisURL,
			KeyPrefix: o.redisPrefix,
			TTL:       o.dedupTTL,
		})
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, redisIndex.Close)
		stack.checks["redis"] = redisIndex.Ping
		index = redisIndex
		logger.Info("Using Redis dedup index", "prefix", o.redisPrefix)
	} else {
		index = dedup.NewMemoryIndex()
		logger.Info("Using in-memory dedup index; hashes are lost on restart")
	}

	stack.factory = &pipeline.Factory{
		Dedup: index,
		Config: pipeline.Config{
			Concurrency:  o.concurrency,
			MaxMessages:  o.maxMessages,
			RootFolderID: o.rootFolder,
			RunTimeout:   o.runTimeout,
			Retry:        retry.DefaultPolicy(),
			Trigger:      trigger,
			Metrics:      metrics,
			Audit:        instrumentation.NewAuditLogger(logger, provider.Config().AuditLogging),
			Logger:       logger,
		},
	}

	if o.ocrDisabled {
		logger.Info("Text extraction disabled")
	} else {
		extractor, err := ocr.NewExtractor(ctx, ocr.Config{
			APIKey:  o.visionAPIKey,
			Metrics: metrics,
			Logger:  logger,
		})
		if err != nil {
			// classification still runs, on empty text
			logger.Warn("Text extraction unavailable", "error", err)
		} else {
			stack.factory.OCR = extractor
		}
	}

	if o.openAIKey == "" {
		logger.Warn("No OpenAI API key configured; attachments will be filed as Uncategorized")
	} else {
		completer, err := classify.NewOpenAICompleter(classify.OpenAIConfig{
			APIKey:  o.openAIKey,
			BaseURL: o.openAIBaseURL,
			Model:   o.openAIModel,
		})
		if err != nil {
			return nil, closeOnError(err, stack)
		}
		stack.factory.Classifier = classify.New(completer, classify.Config{
			RatePerSecond: o.classifyRate,
			Metrics:       metrics,
			Logger:        logger,
		})
		logger.Info("Classifier configured", "model", completer.Model())
	}

	return stack, nil
}

func closeOnError(err error, stack *pipelineStack) error {
	if cerr := stack.Close(); cerr != nil {
		return fmt.Errorf("%w (cleanup: %v)", err, cerr)
	}
	return err
}
