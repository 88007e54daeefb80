// Package handler implements the HTTP endpoints of the prediction API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	mw "github.com/kiranshivaraju/futurework/internal/api/middleware"
	"github.com/kiranshivaraju/futurework/internal/api/response"
)

// maxBodyBytes caps request bodies. An export of a full bulk result is a few KB.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		response.Error(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large", nil)
	case errors.Is(err, io.EOF):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body is required", nil)
	default:
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
	}
	return false
}

// owner returns the caller's state owner, writing a 401 when auth did not run.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	o, ok := mw.Owner(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
	}
	return o, ok
}
