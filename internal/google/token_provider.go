package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/oauth2"
)

// DefaultAccount is used when no account name is given
const DefaultAccount = "default"

// TokenProvider is an interface for providing OAuth tokens for Google APIs
type TokenProvider interface {
	// GetTokenForAccount retrieves an OAuth token for the specified account
	GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error)

	// HasTokenForAccount checks if a token exists for the specified account
	HasTokenForAccount(account string) bool
}

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, hyphens and underscores are allowed", account)
	}
	return nil
}

// DefaultTokenDir returns the directory the CLI keeps tokens in
func DefaultTokenDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(dir, "attachsort"), nil
}

// FileTokenProvider stores one JSON token file per account in a directory
type FileTokenProvider struct {
	dir string
	mu  sync.Mutex
}

// NewFileTokenProvider creates a provider rooted at dir
func NewFileTokenProvider(dir string) *FileTokenProvider {
	return &FileTokenProvider{dir: dir}
}

func (p *FileTokenProvider) tokenPath(account string) string {
	return filepath.Join(p.dir, "google-"+account+".token")
}

// GetTokenForAccount reads the stored token for account
func (p *FileTokenProvider) GetTokenForAccount(_ context.Context, account string) (*oauth2.Token, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.tokenPath(account))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no Google OAuth token found for account %q, run 'attachsort login --account %s'", account, account)
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file for account %q: %w", account, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("token file for account %q holds no credentials", account)
	}
	return &token, nil
}

// HasTokenForAccount checks if a token file exists for the specified account
func (p *FileTokenProvider) HasTokenForAccount(account string) bool {
	if validateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(p.tokenPath(account))
	return err == nil
}

// SaveToken writes token for account with owner-only permissions
func (p *FileTokenProvider) SaveToken(account string, token *oauth2.Token) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("token is required")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(p.tokenPath(account), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// TokenSource returns a refreshing token source for account. Refreshed
// tokens are written back so the next run starts from them.
func (p *FileTokenProvider) TokenSource(ctx context.Context, conf *oauth2.Config, account string) (oauth2.TokenSource, error) {
	token, err := p.GetTokenForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return &savingTokenSource{
		base:    conf.TokenSource(ctx, token),
		last:    token.AccessToken,
		account: account,
		store:   p,
	}, nil
}

type savingTokenSource struct {
	base    oauth2.TokenSource
	account string
	store   *FileTokenProvider

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		if err := s.store.SaveToken(s.account, token); err != nil {
			return nil, err
		}
		s.last = token.AccessToken
	}
	return token, nil
}
