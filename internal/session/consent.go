package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type consentResult struct {
	sess *Session
	err  error
}

// LocalConsent runs the consent flow for a terminal user: it serves the OAuth
// redirect on a loopback port, hands the consent URL to show, and blocks
// until the browser returns or ctx ends.
func LocalConsent(ctx context.Context, a *Authenticator, owner string, show func(authURL string)) (*Session, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for oauth callback: %w", err)
	}
	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())

	authURL, err := a.Begin(ctx, owner, redirectURL)
	if err != nil {
		ln.Close()
		return nil, err
	}

	results := make(chan consentResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res consentResult
		if e := q.Get("error"); e != "" {
			res.err = fmt.Errorf("consent denied: %s", e)
		} else {
			res.sess, res.err = a.Complete(r.Context(), q.Get("state"), q.Get("code"))
		}
		if res.err != nil {
			http.Error(w, "Authorization failed. You can close this window.", http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Authorization complete. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("oauth callback server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	show(authURL)

	select {
	case res := <-results:
		return res.sess, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
