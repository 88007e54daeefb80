package ai

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/futurework/internal/ai/gemini"
	"github.com/kiranshivaraju/futurework/internal/config"
	"github.com/kiranshivaraju/futurework/pkg/models"
)

// NewProvider constructs the appropriate prediction provider based on config.
// Called once at startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.PredictionProvider, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewProvider(ctx, cfg.Gemini)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be gemini", cfg.Provider)
	}
}
