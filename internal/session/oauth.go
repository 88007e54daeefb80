package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/futurework/internal/config"
	"github.com/kiranshivaraju/futurework/internal/state"
	"golang.org/x/oauth2"
)

// SpreadsheetsScope grants read/write access to the user's spreadsheets.
const SpreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"

const consentTTL = 10 * time.Minute

type pendingConsent struct {
	owner       string
	verifier    string
	redirectURL string
	clientID    string
	created     time.Time
}

// Authenticator runs the authorization-code consent flow (with PKCE) and
// registers the resulting sessions. The client id is read from state first
// and falls back to the configured default.
type Authenticator struct {
	cfg      config.OAuthConfig
	store    state.Store
	registry *Registry
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]pendingConsent
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg config.OAuthConfig, store state.Store, registry *Registry) *Authenticator {
	return &Authenticator{
		cfg:      cfg,
		store:    store,
		registry: registry,
		now:      time.Now,
		pending:  make(map[string]pendingConsent),
	}
}

// Registry returns the registry sessions are stored in.
func (a *Authenticator) Registry() *Registry { return a.registry }

// ClientID returns the owner's OAuth client id, or "" when none is configured.
func (a *Authenticator) ClientID(ctx context.Context, owner string) (string, error) {
	id, found, err := a.store.Get(ctx, owner, state.KeyClientID)
	if err != nil {
		return "", err
	}
	if found && id != "" {
		return id, nil
	}
	return a.cfg.ClientID, nil
}

// SetClientID persists a new client id for owner. Any live session was
// granted to the previous client, so the owner is signed out.
func (a *Authenticator) SetClientID(ctx context.Context, owner, clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return errors.New("client id must not be empty")
	}
	if err := a.store.Set(ctx, owner, state.KeyClientID, clientID); err != nil {
		return err
	}
	a.registry.Delete(owner)
	return nil
}

// Begin starts a consent request for owner and returns the URL the user must
// visit. An empty redirectURL uses the configured one.
func (a *Authenticator) Begin(ctx context.Context, owner, redirectURL string) (string, error) {
	clientID, err := a.ClientID(ctx, owner)
	if err != nil {
		return "", err
	}
	if clientID == "" {
		return "", ErrAuthRequired
	}
	if redirectURL == "" {
		redirectURL = a.cfg.RedirectURL
	}

	token := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	a.mu.Lock()
	a.gcLocked()
	a.pending[token] = pendingConsent{
		owner:       owner,
		verifier:    verifier,
		redirectURL: redirectURL,
		clientID:    clientID,
		created:     a.now(),
	}
	a.mu.Unlock()

	oc := a.oauthConfig(clientID, redirectURL)
	return oc.AuthCodeURL(token, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier)), nil
}

// Complete exchanges the authorization code of a pending consent request and
// registers the new session.
func (a *Authenticator) Complete(ctx context.Context, stateToken, code string) (*Session, error) {
	a.mu.Lock()
	p, ok := a.pending[stateToken]
	delete(a.pending, stateToken)
	a.mu.Unlock()

	if !ok || a.now().Sub(p.created) > consentTTL {
		return nil, ErrUnknownState
	}
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	oc := a.oauthConfig(p.clientID, p.redirectURL)
	tok, err := oc.Exchange(ctx, code, oauth2.VerifierOption(p.verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	sess := &Session{Owner: p.owner, AccessToken: tok.AccessToken, Expiry: tok.Expiry}
	a.registry.Put(sess)
	slog.Info("spreadsheet session granted", "owner", p.owner, "expiry", tok.Expiry)
	return sess, nil
}

// SignOut drops the owner's session. The persisted spreadsheet handle is kept.
func (a *Authenticator) SignOut(owner string) {
	a.registry.Delete(owner)
}

func (a *Authenticator) oauthConfig(clientID, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: a.cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{SpreadsheetsScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.cfg.AuthURL,
			TokenURL: a.cfg.TokenURL,
		},
	}
}

// gcLocked drops consent requests nobody completed. Caller holds a.mu.
func (a *Authenticator) gcLocked() {
	now := a.now()
	for k, p := range a.pending {
		if now.Sub(p.created) > consentTTL {
			delete(a.pending, k)
		}
	}
}
