package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/attachsort/internal/dedup"
	"github.com/teemow/attachsort/internal/drive"
	"github.com/teemow/attachsort/internal/gmail"
	"github.com/teemow/attachsort/internal/pipeline"
	"github.com/teemow/attachsort/internal/retry"
)

// stubMail serves one message with the given attachments
type stubMail struct {
	attachments map[string][]byte
	listErr     error
}

func (m *stubMail) ListMessageIDs(context.Context, string, int64) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if len(m.attachments) == 0 {
		return nil, nil
	}
	return []string{"m1"}, nil
}

func (m *stubMail) ListAttachments(_ context.Context, messageID string) ([]*gmail.AttachmentInfo, error) {
	var infos []*gmail.AttachmentInfo
	for name, data := range m.attachments {
		infos = append(infos, &gmail.AttachmentInfo{
			MessageID:    messageID,
			PartID:       name,
			AttachmentID: name,
			Filename:     name,
			MimeType:     "text/plain",
			Size:         int64(len(data)),
		})
	}
	return infos, nil
}

func (m *stubMail) GetAttachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	return m.attachments[attachmentID], nil
}

type stubStorage struct {
	mu      sync.Mutex
	n       int
	uploads map[string][]byte
	fail    bool
}

func (s *stubStorage) UploadFile(_ context.Context, name string, content io.Reader, _ *drive.UploadOptions) (*drive.FileInfo, error) {
	if s.fail {
		return nil, errors.New("drive unavailable")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads == nil {
		s.uploads = make(map[string][]byte)
	}
	s.n++
	s.uploads[name] = data
	return &drive.FileInfo{ID: fmt.Sprintf("file-%d", s.n), Name: name}, nil
}

func (s *stubStorage) AddParent(_ context.Context, fileID, folderID string) (*drive.FileInfo, error) {
	return &drive.FileInfo{ID: fileID, Parents: []string{folderID}}, nil
}

func (s *stubStorage) FindFolder(context.Context, string, string) (*drive.FileInfo, error) {
	return nil, nil
}

func (s *stubStorage) CreateFolder(_ context.Context, name string, _ []string) (*drive.FileInfo, error) {
	return &drive.FileInfo{ID: "folder-" + name, Name: name}, nil
}

type stubFactory struct {
	mail    *stubMail
	storage *stubStorage
	index   dedup.Index
	err     error
	calls   int
}

func newStubFactory() *stubFactory {
	return &stubFactory{
		mail:    &stubMail{attachments: map[string][]byte{"notes.txt": []byte("hello")}},
		storage: &stubStorage{},
		index:   dedup.NewMemoryIndex(),
	}
}

func (f *stubFactory) ForClient(_ context.Context, httpClient *http.Client) (*pipeline.Runner, error) {
	f.calls++
	if httpClient == nil {
		return nil, errors.New("no client")
	}
	if f.err != nil {
		return nil, f.err
	}
	return pipeline.NewRunner(pipeline.Deps{
		Mailbox: "user@example.com",
		Mail:    f.mail,
		Storage: f.storage,
		Dedup:   f.index,
	}, pipeline.Config{Retry: retry.Policy{MaxTries: 1}})
}

func (f *stubFactory) Storage(context.Context, *http.Client) (pipeline.Storage, error) {
	return f.storage, nil
}

// tokenEndpoint fakes the Google token endpoint
func tokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") == "bad" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-token",
			"refresh_token": "refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, factory PipelineFactory) (*Server, http.Handler) {
	t.Helper()
	tokens := tokenEndpoint(t)

	s, err := New(context.Background(), Config{
		OAuth: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.example.com/auth",
				TokenURL: tokens.URL + "/token",
			},
			RedirectURL: "http://localhost:5000/oauth2callback",
			Scopes:      []string{"openid"},
		},
		Pipeline:       factory,
		FrontendURL:    "http://localhost:3000/",
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, s.Handler()
}

func do(h http.Handler, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatalf("response set no %s cookie", SessionCookieName)
	return nil
}

// login runs the OAuth flow and returns the authenticated session cookie
func login(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()

	rec := do(h, httptest.NewRequest(http.MethodGet, "/auth?email=user@example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	var body authResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	authURL, err := url.Parse(body.AuthURL)
	require.NoError(t, err)

	callback := "/oauth2callback?code=good&state=" + url.QueryEscape(authURL.Query().Get("state"))
	rec = do(h, httptest.NewRequest(http.MethodGet, callback, nil), cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	return cookie
}
