package handler

import (
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/futurework/internal/api/response"
	"github.com/kiranshivaraju/futurework/internal/export"
	"github.com/kiranshivaraju/futurework/pkg/models"
)

// NewExportHandler returns an http.HandlerFunc for POST /api/v1/predictions/export.
// It renders the posted predictions as the CSV download the results table offers.
func NewExportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Predictions []models.Prediction `json:"predictions"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		body, err := export.Encode(req.Predictions)
		if err != nil {
			slog.Error("encoding csv export failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to build export", nil)
			return
		}
		response.Attachment(w, export.ContentType, export.Filename, []byte(body))
	}
}
