package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/teemow/attachsort/internal/google"
	"github.com/teemow/attachsort/internal/instrumentation"
	"github.com/teemow/attachsort/internal/logging"
)

type checkAuthResponse struct {
	Authenticated bool `json:"authenticated"`
}

type authResponse struct {
	AuthURL string `json:"authUrl"`
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	_, token := s.sessions.Token(r)
	writeJSON(w, http.StatusOK, checkAuthResponse{Authenticated: usableToken(token)})
}

// handleLogout drops the session and its token. Logging out without a
// session is not an error.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := s.sessions.sessionID(r); id != "" {
		if s.sessions.RemoveSession(id) {
			s.config.Metrics.DecrementActiveSessions(r.Context())
		}
		s.logger.Info("session logged out")
	}
	s.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, checkAuthResponse{Authenticated: false})
}

// handleAuth starts the consent flow. The state bound to the session is
// checked again by the callback.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	id := s.sessions.Ensure(w, r)
	state := s.sessions.BeginAuth(id, email)

	s.logger.Info("starting OAuth flow", logging.UserHash(email))
	writeJSON(w, http.StatusOK, authResponse{AuthURL: google.AuthCodeURL(s.config.OAuth, state, email)})
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if oauthErr := q.Get("error"); oauthErr != "" {
		s.authFailed(w, r, http.StatusBadRequest, "authorization was denied", fmt.Errorf("provider returned %s", oauthErr))
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		s.authFailed(w, r, http.StatusBadRequest, "code and state are required", nil)
		return
	}

	id := s.sessions.sessionID(r)
	if id == "" || !s.sessions.ConsumeState(id, state) {
		s.authFailed(w, r, http.StatusBadRequest, "invalid OAuth state", nil)
		return
	}

	token, err := s.config.OAuth.Exchange(r.Context(), code)
	if err != nil {
		s.authFailed(w, r, http.StatusBadGateway, "failed to exchange authorization code", err)
		return
	}

	if s.sessions.SetToken(id, token) {
		s.config.Metrics.IncrementActiveSessions(r.Context())
	}
	s.config.Metrics.RecordOAuthAuth(r.Context(), instrumentation.OAuthResultSuccess)
	s.logger.Info("OAuth flow completed")

	http.Redirect(w, r, s.config.FrontendURL, http.StatusFound)
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	s.config.Metrics.RecordOAuthAuth(r.Context(), instrumentation.OAuthResultFailure)
	attrs := []any{slog.String("reason", msg)}
	if err != nil {
		attrs = append(attrs, logging.Err(err))
	}
	s.logger.Warn("OAuth flow failed", attrs...)
	writeError(w, status, msg)
}

// validateHTTPSRequirement ensures OAuth redirects use HTTPS.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1)
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
