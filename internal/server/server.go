package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/cors"
	"golang.org/x/oauth2"

	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/pipeline"
)

// DefaultAddr is the listen address of the API server
const DefaultAddr = ":5000"

// PipelineFactory builds per-request pipeline collaborators from an
// authorized HTTP client. *pipeline.Factory implements it.
type PipelineFactory interface {
	ForClient(ctx context.Context, httpClient *http.Client) (*pipeline.Runner, error)
	Storage(ctx context.Context, httpClient *http.Client) (pipeline.Storage, error)
}

// Config configures the API server
type Config struct {
	// OAuth is the Google OAuth client. Its RedirectURL must point at /oauth2callback.
	OAuth *oauth2.Config

	Pipeline PipelineFactory

	// FrontendURL is where /oauth2callback sends the browser (default "/")
	FrontendURL string

	// AllowedOrigins are the CORS origins allowed to call the API with credentials
	AllowedOrigins []string

	// SessionTimeout expires idle sessions (default DefaultSessionTimeout)
	SessionTimeout time.Duration

	// MaxUploadBytes bounds POST /upload bodies
	MaxUploadBytes int64

	// ReadinessChecks are reported by /readyz
	ReadinessChecks map[string]CheckFunc

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Server is the HTTP API of attachsort
type Server struct {
	config   Config
	sc       *ServerContext
	sessions *SessionManager
	health   *HealthChecker
	logger   *slog.Logger

	httpServer *http.Server
}

// New validates config and creates a Server. The server context is
// cancelled by Shutdown.
func New(ctx context.Context, config Config) (*Server, error) {
	if config.OAuth == nil {
		return nil, fmt.Errorf("OAuth configuration is required")
	}
	if config.Pipeline == nil {
		return nil, fmt.Errorf("pipeline factory is required")
	}
	if err := validateHTTPSRequirement(config.OAuth.RedirectURL); err != nil {
		return nil, fmt.Errorf("invalid OAuth redirect URL: %w", err)
	}
	if config.FrontendURL == "" {
		config.FrontendURL = "/"
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	redirect, _ := url.Parse(config.OAuth.RedirectURL)

	sc := NewServerContext(ctx)
	s := &Server{
		config: config,
		sc:     sc,
		health: NewHealthChecker(sc),
		logger: config.Logger,
	}
	s.sessions = NewSessionManager(SessionConfig{
		Timeout:       config.SessionTimeout,
		SecureCookies: redirect.Scheme == "https",
		Logger:        config.Logger,
		OnExpire: func(n int) {
			for range n {
				config.Metrics.DecrementActiveSessions(sc.Context())
			}
		},
	})
	for name, check := range config.ReadinessChecks {
		s.health.AddCheck(name, check)
	}
	return s, nil
}

// Handler returns the API handler with CORS, metrics and request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /check-auth", s.handleCheckAuth)
	mux.HandleFunc("GET /auth", s.handleAuth)
	mux.HandleFunc("GET /oauth2callback", s.handleOAuthCallback)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /fetch-attachments", s.handleFetchAttachments)
	mux.HandleFunc("POST /upload", s.handleUpload)

	s.health.RegisterHealthEndpoints(mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return s.instrument(c.Handler(mux))
}

// Start serves on addr until Shutdown is called. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return s.sc.Context() },
	}

	s.logger.Info("starting API server", slog.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown marks the server not ready, drains in-flight requests and stops
// the session cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.sc.Shutdown()
	s.sessions.Stop()
	return err
}

// statusRecorder captures the response status for metrics and logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		s.config.Metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, duration)
		s.logger.Debug("request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", duration))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	var validation *pipeline.ValidationError
	switch {
	case errors.Is(err, pipeline.ErrUnauthenticated):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
