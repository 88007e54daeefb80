package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/futurework/internal/api/middleware"
	"github.com/kiranshivaraju/futurework/internal/api/response"
	"github.com/kiranshivaraju/futurework/internal/store"
	"github.com/kiranshivaraju/futurework/pkg/models"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// RunReader reads the prediction run log. store.Store satisfies it.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]*models.Run, error)
}

var (
	validRunKinds    = map[string]bool{models.RunKindSingle: true, models.RunKindBulk: true}
	validRunStatuses = map[string]bool{
		models.RunStatusRunning:   true,
		models.RunStatusCompleted: true,
		models.RunStatusFailed:    true,
	}
)

// NewGetRunHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}.
func NewGetRunHandler(runs RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		runID, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_RUN_ID", "Invalid run ID format", nil)
			return
		}

		run, err := runs.GetRun(r.Context(), runID, tenantID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "Run not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load run", nil)
			return
		}
		response.JSON(w, run)
	}
}

// NewListRunsHandler returns an http.HandlerFunc for GET /api/v1/runs.
// Query: kind, status, limit (1-100, default 20).
func NewListRunsHandler(runs RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		q := r.URL.Query()
		filter := store.RunFilter{
			TenantID: tenantID,
			Kind:     q.Get("kind"),
			Status:   q.Get("status"),
			Limit:    defaultRunLimit,
		}
		if filter.Kind != "" && !validRunKinds[filter.Kind] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "kind must be single or bulk", nil)
			return
		}
		if filter.Status != "" && !validRunStatuses[filter.Status] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be running, completed or failed", nil)
			return
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxRunLimit {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100", nil)
				return
			}
			filter.Limit = n
		}

		list, err := runs.ListRuns(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs", nil)
			return
		}
		if list == nil {
			list = []*models.Run{}
		}
		response.Collection(w, list, response.ListMeta{Count: len(list), Limit: filter.Limit})
	}
}
