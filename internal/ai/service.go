package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kiranshivaraju/futurework/pkg/models"
)

// Service is the prediction requestor. It bounds every provider call with the
// inference timeout and folds all failures into ErrPredictionFailure.
// No caching, rate limiting or deduplication happens here: each call is independent.
type Service struct {
	provider models.PredictionProvider
	timeout  time.Duration
}

// NewService creates a new Service. A zero timeout leaves calls unbounded
// apart from the caller's context.
func NewService(provider models.PredictionProvider, timeout time.Duration) *Service {
	return &Service{provider: provider, timeout: timeout}
}

// Name returns the underlying provider's name.
func (s *Service) Name() string { return s.provider.Name() }

// PredictSingle assesses one role. An empty model payload yields an empty slice, not an error.
func (s *Service) PredictSingle(ctx context.Context, input models.JobInput) ([]models.Prediction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	preds, err := s.provider.PredictSingle(ctx, input)
	if err != nil {
		slog.Error("single prediction failed",
			"provider", s.provider.Name(),
			"industry", input.Industry,
			"country", input.Country,
			"role", input.Role,
			"error", err,
		)
		return nil, classify(ctx, err)
	}
	return nonNil(preds), nil
}

// PredictBulk assesses the highest-risk roles of an industry.
func (s *Service) PredictBulk(ctx context.Context, industry string) ([]models.Prediction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	preds, err := s.provider.PredictBulk(ctx, industry)
	if err != nil {
		slog.Error("bulk prediction failed",
			"provider", s.provider.Name(),
			"industry", industry,
			"error", err,
		)
		return nil, classify(ctx, err)
	}
	return nonNil(preds), nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// classify joins ErrPredictionFailure with the most specific known cause.
func classify(ctx context.Context, err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		netErr    net.Error
	)
	switch {
	case errors.Is(err, ErrPredictionFailure):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w: %v", ErrPredictionFailure, ErrInferenceTimeout, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, ErrInvalidResponse):
		return fmt.Errorf("%w: %w: %v", ErrPredictionFailure, ErrInvalidResponse, err)
	case errors.As(err, &netErr), errors.Is(err, ErrProviderUnavailable):
		return fmt.Errorf("%w: %w: %v", ErrPredictionFailure, ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrPredictionFailure, err)
	}
}

func nonNil(preds []models.Prediction) []models.Prediction {
	if preds == nil {
		return []models.Prediction{}
	}
	return preds
}
