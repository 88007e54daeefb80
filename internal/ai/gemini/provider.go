// Package gemini implements models.PredictionProvider on Google's Gemini API
// using schema-constrained JSON output.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/futurework/internal/config"
	"github.com/kiranshivaraju/futurework/pkg/models"
	"github.com/kiranshivaraju/futurework/pkg/prompt"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// Provider asks Gemini for predictions.
type Provider struct {
	client      *genai.Client
	model       string
	temperature float32
	builder     prompt.Builder
}

// NewProvider creates a Gemini-backed provider. The API key is required.
func NewProvider(ctx context.Context, cfg config.GeminiConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return &Provider{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

func (p *Provider) Name() string { return "gemini" }

// PredictSingle assesses one role in one market.
func (p *Provider) PredictSingle(ctx context.Context, input models.JobInput) ([]models.Prediction, error) {
	return p.generate(ctx, p.builder.BuildSingle(input))
}

// PredictBulk names and assesses the highest-risk roles in an industry.
func (p *Provider) PredictBulk(ctx context.Context, industry string) ([]models.Prediction, error) {
	return p.generate(ctx, p.builder.BuildBulk(industry))
}

func (p *Provider) generate(ctx context.Context, text string) ([]models.Prediction, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(text), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(p.temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	return decodePredictions(resp.Text())
}

// wirePrediction mirrors the property names requested in responseSchema.
type wirePrediction struct {
	Industry              string `json:"industry"`
	Country               string `json:"country"`
	Role                  string `json:"role"`
	JobDescription        string `json:"jobDescription"`
	PredictionDate        string `json:"predictionDate"`
	Confidence            string `json:"confidence"`
	ReplacementTechnology string `json:"replacementTechnology"`
	TransferableSkills    string `json:"transferableSkills"`
	FutureJob             string `json:"futureJob"`
	StepsToStart          string `json:"stepsToStart"`
}

type envelope struct {
	Predictions []wirePrediction `json:"predictions"`
}

// decodePredictions parses the model's JSON text. Empty text or a missing
// predictions array yields an empty slice.
func decodePredictions(text string) ([]models.Prediction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []models.Prediction{}, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("gemini: decoding response: %w", err)
	}

	preds := make([]models.Prediction, 0, len(env.Predictions))
	for _, w := range env.Predictions {
		preds = append(preds, models.Prediction{
			Industry:              w.Industry,
			Country:               w.Country,
			Role:                  w.Role,
			JobDescription:        w.JobDescription,
			PredictionDate:        w.PredictionDate,
			Confidence:            w.Confidence,
			ReplacementTechnology: w.ReplacementTechnology,
			TransferableSkills:    models.SplitSkills(w.TransferableSkills),
			FutureJob:             w.FutureJob,
			StepsToStart:          w.StepsToStart,
		})
	}
	return preds, nil
}

var predictionFields = []string{
	"industry", "country", "role", "jobDescription", "predictionDate",
	"confidence", "replacementTechnology", "transferableSkills", "futureJob", "stepsToStart",
}

func responseSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	item := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"industry":              str(""),
			"country":               str(""),
			"role":                  str(""),
			"jobDescription":        str("A one-sentence description of the job."),
			"predictionDate":        str("Predicted replacement date in YYYY-MM format."),
			"confidence":            str("Confidence level of prediction (e.g., '85%' or 'High')."),
			"replacementTechnology": str("What technology or AI system will replace it."),
			"transferableSkills":    str("Comma-separated list of skills useful for future roles."),
			"futureJob":             str("A recommended job role to aim for."),
			"stepsToStart":          str("3 actionable steps to start transitioning into the future job."),
		},
		Required:         predictionFields,
		PropertyOrdering: predictionFields,
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"predictions": {Type: genai.TypeArray, Items: item},
		},
		Required: []string{"predictions"},
	}
}

// Compile-time check that Provider implements PredictionProvider.
var _ models.PredictionProvider = (*Provider)(nil)
