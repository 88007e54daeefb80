// Package session models the explicit authorization context passed to every
// spreadsheet call, and the OAuth consent flow that produces it.
package session

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrAuthRequired means no OAuth client id is configured for the owner.
	ErrAuthRequired = errors.New("oauth client id not configured")
	// ErrUnknownState means a consent callback did not match a pending request.
	ErrUnknownState = errors.New("unknown or expired consent state")
)

// Session is a bearer token granted to an owner. A nil *Session means
// disconnected: spreadsheet reads return nothing and writes are skipped.
type Session struct {
	Owner       string
	AccessToken string
	Expiry      time.Time
}

// Connected reports whether s can authorize spreadsheet calls.
func (s *Session) Connected() bool {
	return s != nil && s.AccessToken != ""
}

// Expired reports whether the token's expiry has passed at now.
// A zero Expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// Registry holds the live session of each owner in process memory.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Get returns the owner's session, or nil when none exists or it has expired.
func (r *Registry) Get(owner string) *Session {
	r.mu.RLock()
	s := r.sessions[owner]
	r.mu.RUnlock()
	if s == nil {
		return nil
	}
	if s.Expired(r.now()) {
		r.mu.Lock()
		if r.sessions[owner] == s {
			delete(r.sessions, owner)
		}
		r.mu.Unlock()
		return nil
	}
	return s
}

// Put stores s, replacing any previous session of the same owner.
func (r *Registry) Put(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Owner] = s
}

// Delete signs the owner out.
func (r *Registry) Delete(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, owner)
}
