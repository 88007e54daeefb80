package ai

import "errors"

// ErrPredictionFailure wraps every failure of a prediction call. Callers
// surface it as a single human-readable message and do not retry.
var ErrPredictionFailure = errors.New("prediction failed")

// Causes joined with ErrPredictionFailure.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)
