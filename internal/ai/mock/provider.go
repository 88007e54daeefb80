package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/futurework/internal/ai"
	"github.com/kiranshivaraju/futurework/pkg/models"
)

// MockProvider satisfies models.PredictionProvider for testing.
// Calls counts every Predict* invocation.
type MockProvider struct {
	Name_             string
	PredictSingleFunc func(ctx context.Context, input models.JobInput) ([]models.Prediction, error)
	PredictBulkFunc   func(ctx context.Context, industry string) ([]models.Prediction, error)

	calls atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

// Calls returns how many predictions were requested so far.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

func (m *MockProvider) PredictSingle(ctx context.Context, input models.JobInput) ([]models.Prediction, error) {
	m.calls.Add(1)
	if m.PredictSingleFunc != nil {
		return m.PredictSingleFunc(ctx, input)
	}
	return []models.Prediction{}, nil
}

func (m *MockProvider) PredictBulk(ctx context.Context, industry string) ([]models.Prediction, error) {
	m.calls.Add(1)
	if m.PredictBulkFunc != nil {
		return m.PredictBulkFunc(ctx, industry)
	}
	return []models.Prediction{}, nil
}

// SamplePrediction returns a fully populated prediction for the given input.
func SamplePrediction(input models.JobInput) models.Prediction {
	return models.Prediction{
		Industry:              input.Industry,
		Country:               input.Country,
		Role:                  input.Role,
		JobDescription:        "Turns raw business data into reports and dashboards.",
		PredictionDate:        "2029-06",
		Confidence:            "High",
		ReplacementTechnology: "LLM-driven analytics assistants",
		TransferableSkills:    []string{"SQL", "Domain knowledge", "Stakeholder communication"},
		FutureJob:             "Analytics Engineer",
		StepsToStart:          "1. Learn dbt\n2. Build a data model portfolio\n3. Pair with data engineers",
	}
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		PredictSingleFunc: func(_ context.Context, input models.JobInput) ([]models.Prediction, error) {
			return []models.Prediction{SamplePrediction(input)}, nil
		},
		PredictBulkFunc: func(_ context.Context, industry string) ([]models.Prediction, error) {
			roles := []string{"Data Entry Clerk", "Bookkeeper", "Telemarketer", "Claims Processor", "Proofreader"}
			preds := make([]models.Prediction, 0, len(roles))
			for _, role := range roles {
				preds = append(preds, SamplePrediction(models.JobInput{
					Industry: industry,
					Country:  "Global",
					Role:     role,
				}))
			}
			return preds, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		PredictSingleFunc: func(_ context.Context, _ models.JobInput) ([]models.Prediction, error) {
			return nil, err
		},
		PredictBulkFunc: func(_ context.Context, _ string) ([]models.Prediction, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		PredictSingleFunc: func(ctx context.Context, _ models.JobInput) ([]models.Prediction, error) {
			<-ctx.Done()
			return nil, ai.ErrInferenceTimeout
		},
		PredictBulkFunc: func(ctx context.Context, _ string) ([]models.Prediction, error) {
			<-ctx.Done()
			return nil, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements PredictionProvider.
var _ models.PredictionProvider = (*MockProvider)(nil)
