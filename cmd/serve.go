package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/attachsort/internal/google"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/server"
)

// serveOptions configures the HTTP API
type serveOptions struct {
	pipeline pipelineOptions

	httpAddr       string
	redirectURL    string
	frontendURL    string
	allowedOrigins string
	sessionTimeout time.Duration
	maxUploadBytes int64

	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the attachsort HTTP API",
		Long: `Run the HTTP API used by the browser front-end.

Users sign in with Google through /auth and /oauth2callback. Their tokens stay
in the server-side session; the browser only holds a session cookie.
/fetch-attachments runs the pipeline for the signed-in mailbox.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.loadEnv(cmd); err != nil {
				return err
			}
			return runServe(opts)
		},
	}

	opts.pipeline.addFlags(cmd)
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", server.DefaultAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&opts.redirectURL, "redirect-url", "http://localhost:5000/oauth2callback", "OAuth redirect URL, must route to /oauth2callback and use HTTPS unless on loopback. Can also use GOOGLE_REDIRECT_URL env var.")
	cmd.Flags().StringVar(&opts.frontendURL, "frontend-url", "http://localhost:3000", "Where the browser is sent after signing in. Can also use FRONTEND_URL env var.")
	cmd.Flags().StringVar(&opts.allowedOrigins, "allowed-origins", "http://localhost:3000", "Comma-separated CORS origins allowed to call the API. Can also use ALLOWED_ORIGINS env var.")
	cmd.Flags().DurationVar(&opts.sessionTimeout, "session-timeout", server.DefaultSessionTimeout, "Idle session lifetime. Can also use SESSION_TIMEOUT env var.")
	cmd.Flags().Int64Var(&opts.maxUploadBytes, "max-upload-bytes", 0, "Maximum POST /upload body size, 0 uses the Gmail attachment limit. Can also use MAX_UPLOAD_BYTES env var.")

	// Metrics server configuration
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func (o *serveOptions) loadEnv(cmd *cobra.Command) error {
	if err := o.pipeline.loadEnv(cmd); err != nil {
		return err
	}
	fallbacks := []struct {
		flag string
		env  string
		set  func(string) error
	}{
		{"http-addr", "HTTP_ADDR", setString(&o.httpAddr)},
		{"redirect-url", "GOOGLE_REDIRECT_URL", setString(&o.redirectURL)},
		{"frontend-url", "FRONTEND_URL", setString(&o.frontendURL)},
		{"allowed-origins", "ALLOWED_ORIGINS", setString(&o.allowedOrigins)},
		{"session-timeout", "SESSION_TIMEOUT", setDuration(&o.sessionTimeout)},
		{"max-upload-bytes", "MAX_UPLOAD_BYTES", setInt64(&o.maxUploadBytes)},
		{"metrics-enabled", "METRICS_ENABLED", setBool(&o.metricsEnabled)},
		{"metrics-addr", "METRICS_ADDR", setString(&o.metricsAddr)},
	}
	for _, fb := range fallbacks {
		if err := envFallback(cmd, fb.flag, fb.env, fb.set); err != nil {
			return err
		}
	}
	return nil
}

func runServe(opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("Error during instrumentation shutdown", "error", err)
		}
	}()

	oauthConfig, err := google.LoadConfig(opts.pipeline.credentialsFile, opts.redirectURL)
	if err != nil {
		return err
	}

	stack, err := opts.pipeline.buildPipeline(shutdownCtx, provider, "http", logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("Error closing pipeline stores", "error", err)
		}
	}()

	srv, err := server.New(shutdownCtx, server.Config{
		OAuth:           oauthConfig,
		Pipeline:        stack.factory,
		FrontendURL:     opts.frontendURL,
		AllowedOrigins:  parseCommaSeparatedList(opts.allowedOrigins),
		SessionTimeout:  opts.sessionTimeout,
		MaxUploadBytes:  opts.maxUploadBytes,
		ReadinessChecks: stack.checks,
		Metrics:         provider.Metrics(),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 2)

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if opts.metricsEnabled && provider.Enabled() && !provider.HasPrometheusExporter() {
		logger.Info("Metrics server not started, exporter is not prometheus",
			"exporter", provider.Config().MetricsExporter)
	} else if opts.metricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metricsAddr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		logger.Info("Metrics server started", "addr", metricsServer.Addr())
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", opts.httpAddr, "redirect_url", opts.redirectURL)
		if err := srv.Start(opts.httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		logger.Error("Server failed", "error", runErr)
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
