package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/futurework/internal/api/response"
	"github.com/kiranshivaraju/futurework/internal/cache"
)

const defaultFlowLockTTL = 5 * time.Minute

// Busy admits one prediction flow per tenant at a time. The lock lives in the
// cache so it holds across server instances.
type Busy struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewBusy creates a Busy guard. ttl bounds a lock left behind by a crashed
// request and should exceed the inference timeout.
func NewBusy(c cache.Cache, ttl time.Duration) *Busy {
	if ttl <= 0 {
		ttl = defaultFlowLockTTL
	}
	return &Busy{cache: c, ttl: ttl}
}

// Guard rejects a request with 409 while another flow of the same tenant runs.
func (b *Busy) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := GetTenantID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := cache.FlowLockKey(tenantID.String())
		acquired, err := b.cache.TryLock(r.Context(), key, b.ttl)
		if err != nil {
			// Fail open, as the rate limiter does.
			slog.Warn("flow lock unavailable", "tenant_id", tenantID, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !acquired {
			response.Error(w, http.StatusConflict,
				"FLOW_IN_PROGRESS", "A prediction is already running for this account", nil)
			return
		}
		defer func() {
			// The client may be gone; the lock must still be released.
			if err := b.cache.Delete(context.WithoutCancel(r.Context()), key); err != nil {
				slog.Warn("releasing flow lock failed", "tenant_id", tenantID, "error", err)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
