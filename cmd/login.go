package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/attachsort/internal/google"
)

// loginTimeout bounds how long login waits for the browser
const loginTimeout = 5 * time.Minute

func newLoginCmd() *cobra.Command {
	var (
		account         string
		loginHint       string
		credentialsFile string
		tokenDir        string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize a Gmail account for use with sort",
		Long: `Authorize a Gmail account and store its token for the sort command.

login starts a temporary listener on the loopback interface, prints the Google
consent URL and waits for the redirect. The credentials file must be an
"installed" (desktop) client, which accepts loopback redirects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := envFallback(cmd, "credentials-file", "GOOGLE_CREDENTIALS_FILE", setString(&credentialsFile)); err != nil {
				return err
			}
			store, err := tokenStore(tokenDir)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
			defer cancel()
			return runLogin(ctx, cmd.OutOrStdout(), store, credentialsFile, account, loginHint)
		},
	}

	cmd.Flags().StringVar(&account, "account", google.DefaultAccount, "Name the token is stored under")
	cmd.Flags().StringVar(&loginHint, "login-hint", "", "Email address to preselect on the consent page")
	cmd.Flags().StringVar(&credentialsFile, "credentials-file", google.DefaultCredentialsFile, "Google OAuth client file. Can also use GOOGLE_CREDENTIALS_FILE env var.")
	cmd.Flags().StringVar(&tokenDir, "token-dir", "", "Directory for stored tokens (default: the user cache directory)")

	return cmd
}

func tokenStore(dir string) (*google.FileTokenProvider, error) {
	if dir == "" {
		var err error
		if dir, err = google.DefaultTokenDir(); err != nil {
			return nil, err
		}
	}
	return google.NewFileTokenProvider(dir), nil
}

func runLogin(ctx context.Context, out io.Writer, store *google.FileTokenProvider, credentialsFile, account, loginHint string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer ln.Close()

	conf, err := google.LoadConfig(credentialsFile, "http://"+ln.Addr().String()+"/")
	if err != nil {
		return err
	}

	state := uuid.NewString()
	fmt.Fprintf(out, "Open this URL in your browser to authorize attachsort:\n\n%s\n\n", google.AuthCodeURL(conf, state, loginHint))

	code, err := receiveCode(ctx, ln, state)
	if err != nil {
		return err
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		slog.Warn("No refresh token issued; sort will stop working once the access token expires")
	}
	if err := store.SaveToken(account, token); err != nil {
		return err
	}

	fmt.Fprintf(out, "Token saved for account %q.\n", account)
	return nil
}

// receiveCode serves the loopback redirect until one request carrying state
// arrives, and returns its authorization code.
func receiveCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	deliver := func(r result) {
		select {
		case results <- r:
		default:
		}
	}

	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("state") != state {
				// stray requests such as /favicon.ico
				http.NotFound(w, r)
				return
			}
			if e := q.Get("error"); e != "" {
				http.Error(w, "Authorization failed. You can close this window.", http.StatusBadRequest)
				deliver(result{err: fmt.Errorf("authorization failed: %s", e)})
				return
			}
			code := q.Get("code")
			if code == "" {
				http.Error(w, "Missing authorization code.", http.StatusBadRequest)
				deliver(result{err: errors.New("redirect carried no authorization code")})
				return
			}
			fmt.Fprintln(w, "attachsort is authorized. You can close this window.")
			deliver(result{code: code})
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case r := <-results:
		return r.code, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("timed out waiting for authorization: %w", ctx.Err())
	}
}
