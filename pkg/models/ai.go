// Package models contains shared data models used across the FutureWork codebase.
package models

import "context"

// PredictionProvider is the core interface that all generative model integrations implement.
// Never call a specific model SDK directly; inject this interface.
type PredictionProvider interface {
	// PredictSingle assesses the automation risk of one role in one market.
	PredictSingle(ctx context.Context, input JobInput) ([]Prediction, error)
	// PredictBulk names and assesses the five roles at highest automation risk in an industry.
	PredictBulk(ctx context.Context, industry string) ([]Prediction, error)
	// Name returns the provider identifier (e.g., "gemini").
	Name() string
}
