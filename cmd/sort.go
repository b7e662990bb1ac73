package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/attachsort/internal/gmail"
	"github.com/teemow/attachsort/internal/google"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/logging"
	"github.com/teemow/attachsort/internal/pipeline"
)

// sortOutput is printed by the sort command
type sortOutput struct {
	Message string `json:"message"`
	*pipeline.Report
}

func newSortCmd() *cobra.Command {
	var (
		opts      pipelineOptions
		account   string
		tokenDir  string
		startDate string
		endDate   string
	)

	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Run the attachment pipeline once for a stored account",
		Long: `Scan the mailbox of a stored account for attachments in the given date
range, file each new attachment into its category folder on Google Drive and
print the run report as JSON.

Run "attachsort login" first to store a token for the account.`,
		Example: `  attachsort sort --start-date 2024-01-01 --end-date 2024-01-31
  attachsort sort --account work --start-date 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.loadEnv(cmd); err != nil {
				return err
			}
			dr, err := pipeline.ParseDateRange(startDate, endDate)
			if err != nil {
				return err
			}
			store, err := tokenStore(tokenDir)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runSort(ctx, cmd.OutOrStdout(), &opts, store, account, dr)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&account, "account", google.DefaultAccount, "Stored account to run for (see login)")
	cmd.Flags().StringVar(&tokenDir, "token-dir", "", "Directory for stored tokens (default: the user cache directory)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "Only messages on or after this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "Only messages before this date (YYYY-MM-DD or RFC 3339)")

	return cmd
}

func runSort(ctx context.Context, out io.Writer, opts *pipelineOptions, store *google.FileTokenProvider, account string, dr gmail.DateRange) error {
	logger := logging.WithAccount(slog.Default(), account)

	if !store.HasTokenForAccount(account) {
		return fmt.Errorf("no token stored for account %q, run: attachsort login --account %s", account, account)
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	// nothing scrapes a one-shot process
	if instrConfig.MetricsExporter == instrumentation.ExporterPrometheus {
		instrConfig.Enabled = false
	}
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Error during instrumentation shutdown", "error", err)
		}
	}()

	// the redirect is unused without a consent step
	conf, err := google.LoadConfig(opts.credentialsFile, "http://127.0.0.1/")
	if err != nil {
		return err
	}
	ts, err := store.TokenSource(ctx, conf, account)
	if err != nil {
		return err
	}

	stack, err := opts.buildPipeline(ctx, provider, "cli", logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("Error closing pipeline stores", "error", err)
		}
	}()

	runner, err := stack.factory.ForClient(ctx, google.NewHTTPClient(ctx, ts))
	if err != nil {
		return err
	}
	report, err := runner.Run(ctx, dr)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sortOutput{Message: report.Message(), Report: report})
}
