package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/attachsort/internal/dedup"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/pipeline"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single value", input: "https://app.example.com", expected: []string{"https://app.example.com"}},
		{
			name:     "values with spaces around comma",
			input:    "http://localhost:3000, https://app.example.com",
			expected: []string{"http://localhost:3000", "https://app.example.com"},
		},
		{
			name:     "trailing and consecutive commas",
			input:    "a,,b,",
			expected: []string{"a", "b"},
		},
		{name: "only commas and spaces", input: ",  , , ", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseCommaSeparatedList(tt.input))
		})
	}
}

func newTestPipelineCmd(t *testing.T) (*cobra.Command, *pipelineOptions) {
	t.Helper()
	opts := &pipelineOptions{}
	cmd := &cobra.Command{Use: "test"}
	opts.addFlags(cmd)
	return cmd, opts
}

func TestPipelineOptions_LoadEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cmd, opts := newTestPipelineCmd(t)
		require.NoError(t, opts.loadEnv(cmd))

		assert.Equal(t, "credentials.json", opts.credentialsFile)
		assert.Equal(t, pipeline.DefaultConcurrency, opts.concurrency)
		assert.EqualValues(t, pipeline.DefaultMaxMessages, opts.maxMessages)
		assert.Equal(t, dedup.DefaultKeyPrefix, opts.redisPrefix)
		assert.Empty(t, opts.redisURL)
	})

	t.Run("env fills unset flags", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("PIPELINE_CONCURRENCY", "8")
		t.Setenv("RUN_TIMEOUT", "90s")
		t.Setenv("OCR_DISABLED", "true")
		t.Setenv("DRIVE_ROOT_FOLDER_ID", "root-123")

		cmd, opts := newTestPipelineCmd(t)
		require.NoError(t, opts.loadEnv(cmd))

		assert.Equal(t, "sk-test", opts.openAIKey)
		assert.Equal(t, 8, opts.concurrency)
		assert.Equal(t, 90*time.Second, opts.runTimeout)
		assert.True(t, opts.ocrDisabled)
		assert.Equal(t, "root-123", opts.rootFolder)
	})

	t.Run("explicit flag wins over env", func(t *testing.T) {
		t.Setenv("PIPELINE_CONCURRENCY", "8")

		cmd, opts := newTestPipelineCmd(t)
		require.NoError(t, cmd.Flags().Set("concurrency", "2"))
		require.NoError(t, opts.loadEnv(cmd))

		assert.Equal(t, 2, opts.concurrency)
	})

	t.Run("malformed env value", func(t *testing.T) {
		t.Setenv("MAX_MESSAGES", "lots")

		cmd, opts := newTestPipelineCmd(t)
		err := opts.loadEnv(cmd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MAX_MESSAGES")
	})

	t.Run("non-positive concurrency", func(t *testing.T) {
		cmd, opts := newTestPipelineCmd(t)
		require.NoError(t, cmd.Flags().Set("concurrency", "0"))
		assert.Error(t, opts.loadEnv(cmd))
	})
}

func disabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	cfg := instrumentation.DefaultConfig()
	cfg.Enabled = false
	provider, err := instrumentation.NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	return provider
}

func TestBuildPipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("memory index without backends", func(t *testing.T) {
		opts := &pipelineOptions{concurrency: 2, maxMessages: 5, ocrDisabled: true}

		stack, err := opts.buildPipeline(ctx, disabledProvider(t), "cli", discardLogger())
		require.NoError(t, err)
		defer stack.Close()

		assert.IsType(t, &dedup.MemoryIndex{}, stack.factory.Dedup)
		assert.Nil(t, stack.factory.OCR)
		assert.Nil(t, stack.factory.Classifier)
		assert.Empty(t, stack.checks)
		assert.Equal(t, "cli", stack.factory.Config.Trigger)
		assert.Equal(t, 2, stack.factory.Config.Concurrency)
	})

	t.Run("redis index with readiness check", func(t *testing.T) {
		mr := miniredis.RunT(t)
		opts := &pipelineOptions{
			concurrency: 1,
			maxMessages: 1,
			ocrDisabled: true,
			redisURL:    "redis://" + mr.Addr(),
			openAIKey:   "sk-test",
			openAIModel: "gpt-4o-mini",
		}

		stack, err := opts.buildPipeline(ctx, disabledProvider(t), "http", discardLogger())
		require.NoError(t, err)

		assert.IsType(t, &dedup.RedisIndex{}, stack.factory.Dedup)
		assert.NotNil(t, stack.factory.Classifier)
		require.Contains(t, stack.checks, "redis")
		assert.NoError(t, stack.checks["redis"](ctx))

		require.NoError(t, stack.Close())
	})

	t.Run("unreachable redis", func(t *testing.T) {
		opts := &pipelineOptions{concurrency: 1, maxMessages: 1, redisURL: "redis://127.0.0.1:1"}

		_, err := opts.buildPipeline(ctx, disabledProvider(t), "http", discardLogger())
		assert.Error(t, err)
	})
}
