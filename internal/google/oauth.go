package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultCredentialsFile is read when no credentials path is configured
const DefaultCredentialsFile = "credentials.json"

// LoadConfig reads an OAuth client file downloaded from the Google Cloud
// console. Both "installed" and "web" client types are accepted. A non-empty
// redirectURL replaces the first redirect URI of the file.
func LoadConfig(path, redirectURL string) (*oauth2.Config, error) {
	if path == "" {
		path = DefaultCredentialsFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return ConfigFromJSON(data, redirectURL)
}

// ConfigFromJSON is LoadConfig for credentials already in memory
func ConfigFromJSON(data []byte, redirectURL string) (*oauth2.Config, error) {
	conf, err := google.ConfigFromJSON(data, DefaultOAuthScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if redirectURL != "" {
		conf.RedirectURL = redirectURL
	}
	if conf.RedirectURL == "" {
		return nil, fmt.Errorf("credentials define no redirect URI and none was configured")
	}
	return conf, nil
}

// AuthCodeURL returns the consent page URL. Offline access is requested so
// a refresh token is issued, and the consent prompt is forced so it is issued
// again on re-authentication.
func AuthCodeURL(conf *oauth2.Config, state, loginHint string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return conf.AuthCodeURL(state, opts...)
}

// NewHTTPClient returns an HTTP client authorized by ts.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors
// on long uploads.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	client := oauth2.NewClient(ctx, ts)
	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     false,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	return client
}

