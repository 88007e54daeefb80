package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/futurework/internal/api/response"
	"github.com/kiranshivaraju/futurework/internal/session"
	"github.com/kiranshivaraju/futurework/internal/state"
)

// SheetsHandlers serve the spreadsheet connection endpoints.
type SheetsHandlers struct {
	auth  *session.Authenticator
	state state.Store
	now   func() time.Time
}

// NewSheetsHandlers creates the connection endpoints over auth, reading the
// persisted spreadsheet handle from st.
func NewSheetsHandlers(auth *session.Authenticator, st state.Store) *SheetsHandlers {
	return &SheetsHandlers{auth: auth, state: st, now: time.Now}
}

type sheetsStatus struct {
	Connected     bool       `json:"connected"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ClientID      string     `json:"client_id,omitempty"`
	SpreadsheetID string     `json:"spreadsheet_id,omitempty"`
}

// Status handles GET /api/v1/sheets/status.
func (h *SheetsHandlers) Status(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	clientID, err := h.auth.ClientID(r.Context(), o)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read connection state", nil)
		return
	}
	sheetID, _, err := h.state.Get(r.Context(), o, state.KeySpreadsheetID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read connection state", nil)
		return
	}

	st := sheetsStatus{ClientID: clientID, SpreadsheetID: sheetID}
	if sess := h.auth.Registry().Get(o); sess.Connected() {
		st.Connected = true
		if !sess.Expiry.IsZero() {
			exp := sess.Expiry.UTC()
			st.ExpiresAt = &exp
		}
	}
	response.JSON(w, st)
}

// SetClient handles PUT /api/v1/sheets/client. A new client id signs the
// caller out of the current session.
func (h *SheetsHandlers) SetClient(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	var req struct {
		ClientID string `json:"client_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "client_id is required", nil)
		return
	}

	if err := h.auth.SetClientID(r.Context(), o, clientID); err != nil {
		slog.Error("saving oauth client id failed", "owner", o, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save client ID", nil)
		return
	}
	response.JSON(w, map[string]string{"client_id": clientID})
}

// Connect handles GET /api/v1/sheets/connect and returns the consent URL the
// user has to open.
func (h *SheetsHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	authURL, err := h.auth.Begin(r.Context(), o, "")
	if errors.Is(err, session.ErrAuthRequired) {
		response.Error(w, http.StatusConflict, "CLIENT_ID_REQUIRED",
			"Set a Google OAuth client ID before connecting", nil)
		return
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start authorization", nil)
		return
	}
	response.JSON(w, map[string]string{"auth_url": authURL})
}

// SignOut handles DELETE /api/v1/sheets/session. The spreadsheet handle is kept.
func (h *SheetsHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}
	h.auth.SignOut(o)
	response.NoContent(w)
}

// Callback handles GET /api/v1/sheets/callback, the OAuth redirect target.
// It is unauthenticated; the state token ties it to the owner that called Connect.
func (h *SheetsHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		response.Error(w, http.StatusBadRequest, "CONSENT_DENIED", "Authorization was not granted",
			map[string]string{"reason": e})
		return
	}

	sess, err := h.auth.Complete(r.Context(), q.Get("state"), q.Get("code"))
	switch {
	case errors.Is(err, session.ErrUnknownState):
		response.Error(w, http.StatusBadRequest, "INVALID_STATE", "Unknown or expired authorization request", nil)
		return
	case err != nil:
		slog.Error("completing oauth consent failed", "error", err)
		response.Error(w, http.StatusBadGateway, "TOKEN_EXCHANGE_FAILED", "Failed to complete authorization", nil)
		return
	}

	st := sheetsStatus{Connected: true}
	if !sess.Expiry.IsZero() {
		exp := sess.Expiry.UTC()
		st.ExpiresAt = &exp
	}
	response.JSON(w, st)
}
