package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// SessionCookieName names the cookie carrying the session ID
	SessionCookieName = "attachsort_session"

	// DefaultSessionTimeout expires sessions idle for longer
	DefaultSessionTimeout = 24 * time.Hour

	sessionCleanupInterval = 10 * time.Minute
)

// session is the server-side state of one browser
type session struct {
	token      *oauth2.Token
	state      string
	loginHint  string
	lastAccess time.Time
}

// SessionManager keeps OAuth tokens per browser session. Sessions live in
// memory and are identified by a random cookie value, so the token never
// leaves the server.
type SessionManager struct {
	sessions       map[string]*session
	mu             sync.Mutex
	cleanupTicker  *time.Ticker
	cleanupDone    chan struct{}
	stopOnce       sync.Once
	sessionTimeout time.Duration
	secureCookies  bool
	logger         *slog.Logger
	now            func() time.Time
	onExpire       func(n int)
}

// SessionConfig configures a SessionManager
type SessionConfig struct {
	// Timeout expires idle sessions (default DefaultSessionTimeout)
	Timeout time.Duration

	// SecureCookies marks the session cookie Secure. Enable behind HTTPS.
	SecureCookies bool

	// OnExpire is called with the number of authenticated sessions removed
	// by a cleanup pass
	OnExpire func(n int)

	Logger *slog.Logger
}

// NewSessionManager creates a session manager and starts its cleanup loop.
// Call Stop to end it.
func NewSessionManager(cfg SessionConfig) *SessionManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &SessionManager{
		sessions:       make(map[string]*session),
		cleanupTicker:  time.NewTicker(sessionCleanupInterval),
		cleanupDone:    make(chan struct{}),
		sessionTimeout: cfg.Timeout,
		secureCookies:  cfg.SecureCookies,
		logger:         cfg.Logger,
		now:            time.Now,
		onExpire:       cfg.OnExpire,
	}

	go m.cleanupExpiredSessions()

	return m
}

// sessionID returns the session ID carried by r, or "" if it is unknown
func (m *SessionManager) sessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[c.Value]
	if !ok {
		return ""
	}
	s.lastAccess = m.now()
	return c.Value
}

// Ensure returns the session ID of r, starting a new session and setting
// its cookie on w when r has none.
func (m *SessionManager) Ensure(w http.ResponseWriter, r *http.Request) string {
	if id := m.sessionID(r); id != "" {
		return id
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &session{lastAccess: m.now()}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.sessionTimeout.Seconds()),
	})
	return id
}

// BeginAuth stores a fresh OAuth state for the session and returns it
func (m *SessionManager) BeginAuth(sessionID, loginHint string) string {
	state := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.state = state
		s.loginHint = loginHint
	}
	return state
}

// ConsumeState reports whether state is the pending OAuth state of the
// session. The state is cleared either way so it cannot be replayed.
func (m *SessionManager) ConsumeState(sessionID, state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.state == "" {
		return false
	}
	match := s.state == state
	s.state = ""
	return match
}

// SetToken stores the token of an authenticated session. It reports
// whether the session was previously unauthenticated.
func (m *SessionManager) SetToken(sessionID string, token *oauth2.Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	first := s.token == nil
	s.token = token
	s.lastAccess = m.now()
	return first
}

// Token returns the session token of r, or nil when r is unauthenticated
func (m *SessionManager) Token(r *http.Request) (string, *oauth2.Token) {
	id := m.sessionID(r)
	if id == "" {
		return "", nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.token == nil {
		return id, nil
	}
	return id, s.token
}

// RemoveSession removes a session from the manager and reports whether it
// held a token
func (m *SessionManager) RemoveSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	delete(m.sessions, sessionID)
	return s.token != nil
}

// ClearCookie tells the browser to drop its session cookie
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// usableToken reports whether token can still authorize a request, either
// directly or after a refresh
func usableToken(token *oauth2.Token) bool {
	return token != nil && (token.Valid() || token.RefreshToken != "")
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// expire removes idle sessions and returns how many of them were authenticated
func (m *SessionManager) expire() (removed, authenticated int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, s := range m.sessions {
		if now.Sub(s.lastAccess) > m.sessionTimeout {
			delete(m.sessions, id)
			removed++
			if s.token != nil {
				authenticated++
			}
		}
	}
	return removed, authenticated
}

// cleanupExpiredSessions periodically removes expired sessions
func (m *SessionManager) cleanupExpiredSessions() {
	for {
		select {
		case <-m.cleanupTicker.C:
			removed, authenticated := m.expire()
			if removed > 0 {
				m.logger.Info("cleaned up expired sessions", slog.Int("count", removed))
			}
			if authenticated > 0 && m.onExpire != nil {
				m.onExpire(authenticated)
			}
		case <-m.cleanupDone:
			return
		}
	}
}

// Stop stops the session cleanup goroutine
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.cleanupDone)
	})
}
