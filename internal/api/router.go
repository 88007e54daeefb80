package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/futurework/internal/api/middleware"
	"github.com/kiranshivaraju/futurework/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Busy      *mw.Busy

	HealthHandler http.HandlerFunc

	PredictHandler http.HandlerFunc
	BulkHandler    http.HandlerFunc
	ExportHandler  http.HandlerFunc

	GetRunHandler   http.HandlerFunc
	ListRunsHandler http.HandlerFunc

	SheetsStatusHandler   http.HandlerFunc
	SheetsClientHandler   http.HandlerFunc
	SheetsConnectHandler  http.HandlerFunc
	SheetsSignOutHandler  http.HandlerFunc
	SheetsCallbackHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Get("/api/v1/sheets/callback", orNotImplemented(deps.SheetsCallbackHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/predictions/export", orNotImplemented(deps.ExportHandler))

		// One prediction flow per tenant at a time
		r.Group(func(r chi.Router) {
			if deps.Busy != nil {
				r.Use(deps.Busy.Guard)
			}
			r.Post("/api/v1/predictions", orNotImplemented(deps.PredictHandler))
			r.Post("/api/v1/predictions/bulk", orNotImplemented(deps.BulkHandler))
		})

		r.Get("/api/v1/runs", orNotImplemented(deps.ListRunsHandler))
		r.Get("/api/v1/runs/{runID}", orNotImplemented(deps.GetRunHandler))

		r.Get("/api/v1/sheets/status", orNotImplemented(deps.SheetsStatusHandler))
		r.Put("/api/v1/sheets/client", orNotImplemented(deps.SheetsClientHandler))
		r.Get("/api/v1/sheets/connect", orNotImplemented(deps.SheetsConnectHandler))
		r.Delete("/api/v1/sheets/session", orNotImplemented(deps.SheetsSignOutHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
