package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/futurework/internal/ai"
	mw "github.com/kiranshivaraju/futurework/internal/api/middleware"
	"github.com/kiranshivaraju/futurework/internal/api/response"
	"github.com/kiranshivaraju/futurework/internal/forecast"
	"github.com/kiranshivaraju/futurework/internal/session"
	"github.com/kiranshivaraju/futurework/pkg/models"
)

// SessionLookup returns the live spreadsheet session of an owner, or nil.
// *session.Registry satisfies it.
type SessionLookup interface {
	Get(owner string) *session.Session
}

const (
	msgPredictFailed = "Failed to generate prediction. Please try again."
	msgBulkFailed    = "Failed to generate predictions."
)

// NewPredictHandler returns an http.HandlerFunc for POST /api/v1/predictions.
func NewPredictHandler(flow *forecast.Flow, sessions SessionLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req models.JobInput
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Industry = strings.TrimSpace(req.Industry)
		req.Country = strings.TrimSpace(req.Country)
		req.Role = strings.TrimSpace(req.Role)

		problems := map[string]string{}
		if req.Industry == "" {
			problems["industry"] = "industry is required"
		}
		if req.Country == "" {
			problems["country"] = "country is required"
		}
		if req.Role == "" {
			problems["role"] = "role is required"
		}
		if len(problems) > 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"Please fill in all fields.", problems)
			return
		}

		sess := sessions.Get(tenantID.String())
		res, err := flow.ForTenant(tenantID).Analyze(r.Context(), sess, req)
		if err != nil {
			writeFlowError(w, r, err, msgPredictFailed)
			return
		}
		response.JSON(w, res)
	}
}

// NewBulkHandler returns an http.HandlerFunc for POST /api/v1/predictions/bulk.
func NewBulkHandler(flow *forecast.Flow, sessions SessionLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			Industry string `json:"industry"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		industry := strings.TrimSpace(req.Industry)
		if industry == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"Please enter an industry.", map[string]string{"industry": "industry is required"})
			return
		}

		sess := sessions.Get(tenantID.String())
		res, err := flow.ForTenant(tenantID).AnalyzeBulk(r.Context(), sess, industry)
		if err != nil {
			writeFlowError(w, r, err, msgBulkFailed)
			return
		}
		response.JSON(w, res)
	}
}

func writeFlowError(w http.ResponseWriter, r *http.Request, err error, message string) {
	slog.Error("prediction flow failed", "request_id", mw.RequestID(r), "error", err)
	switch {
	case errors.Is(err, ai.ErrPredictionFailure):
		response.Error(w, http.StatusBadGateway, "PREDICTION_FAILED", message, nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
