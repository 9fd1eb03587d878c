package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	gsheet "speza/internal/ledger/google"
)

func sheetsAuthCmd() *cobra.Command {
	var (
		clientFile string
		tokenFile  string
		port       string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize the Google Sheets backend and save an OAuth token",
		Long: `Runs the OAuth consent flow for the sheets backend. Add
http://localhost:<port>/callback to the authorized redirect URIs of the
OAuth client, open the printed URL and approve access.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoStore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientJSON, err := readOAuthClient(clientFile)
			if err != nil {
				return err
			}
			cfg, err := gsheet.OAuthConfig(clientJSON)
			if err != nil {
				return err
			}
			cfg.RedirectURL = "http://localhost:" + port + "/callback"

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			state := uuid.NewString()
			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize:\n%s\n",
				cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

			code, err := awaitCode(ctx, ":"+port, state)
			if err != nil {
				return err
			}
			tok, err := cfg.Exchange(ctx, code)
			if err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}
			if err := saveToken(tokenFile, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", tokenFile)
			return nil
		},
	}

	tokenDefault := os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")
	if tokenDefault == "" {
		tokenDefault = "token.json"
	}
	portDefault := os.Getenv("OAUTH_REDIRECT_PORT")
	if portDefault == "" {
		portDefault = "8085"
	}
	fs := cmd.Flags()
	fs.StringVar(&clientFile, "client-file", os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"), "OAuth client JSON file (or set GOOGLE_OAUTH_CLIENT_JSON)")
	fs.StringVar(&tokenFile, "token-file", tokenDefault, "where to write the token")
	fs.StringVar(&port, "port", portDefault, "local port for the redirect callback")
	fs.DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for authorization")
	return cmd
}

func readOAuthClient(file string) ([]byte, error) {
	if js := os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"); js != "" {
		return []byte(js), nil
	}
	if file == "" {
		return nil, errors.New("set --client-file, GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read client file: %w", err)
	}
	return b, nil
}

// awaitCode serves the redirect callback until a code with the expected
// state arrives or ctx ends.
func awaitCode(ctx context.Context, addr, state string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen for callback: %w", err)
	}

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("oauth error: %s", q.Get("error"))
		case q.Get("state") != state:
			res.err = errors.New("oauth callback state mismatch")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		_ = f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}
