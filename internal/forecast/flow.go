// Package forecast runs the read-through cache flow: look a role up in the
// owner's spreadsheet, return fresh rows as they are, and refresh stale rows
// or misses from the prediction model.
package forecast

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/futurework/internal/session"
	"github.com/kiranshivaraju/futurework/internal/sheets"
	"github.com/kiranshivaraju/futurework/pkg/models"
)

// Cache statuses reported to the caller.
const (
	CacheStatusHit          = "hit"
	CacheStatusStaleUpdated = "stale_updated"
)

// Predictor produces predictions. *ai.Service satisfies it.
type Predictor interface {
	PredictSingle(ctx context.Context, input models.JobInput) ([]models.Prediction, error)
	PredictBulk(ctx context.Context, industry string) ([]models.Prediction, error)
	Name() string
}

// RunLog records one audit entry per flow.
type RunLog interface {
	CreateRun(ctx context.Context, run *models.Run) error
	FinishRun(ctx context.Context, run *models.Run) error
}

// Result is what a flow hands back to the presentation layer.
type Result struct {
	Predictions []models.Prediction `json:"predictions"`
	CacheStatus string              `json:"cache_status,omitempty"`
	Outcome     string              `json:"outcome"`
	RowIndex    int                 `json:"row_index,omitempty"`
	RunID       *uuid.UUID          `json:"run_id,omitempty"`
}

// Option configures a Flow.
type Option func(*Flow)

// WithRunLog records runs in rl.
func WithRunLog(rl RunLog) Option {
	return func(f *Flow) { f.runs = rl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// Flow is safe for concurrent use; each call runs sequentially.
type Flow struct {
	predictor Predictor
	sheets    sheets.Client
	runs      RunLog
	tenant    uuid.UUID
	now       func() time.Time
}

// NewFlow creates a Flow.
func NewFlow(p Predictor, sc sheets.Client, opts ...Option) *Flow {
	f := &Flow{predictor: p, sheets: sc, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForTenant returns a copy of f whose runs are recorded under tenantID.
func (f *Flow) ForTenant(tenantID uuid.UUID) *Flow {
	cp := *f
	cp.tenant = tenantID
	return &cp
}

// Analyze predicts one role, serving and refreshing the spreadsheet cache
// when sess is connected. A prediction failure is returned unchanged and
// nothing is written.
func (f *Flow) Analyze(ctx context.Context, sess *session.Session, input models.JobInput) (*Result, error) {
	run := f.startRun(ctx, models.RunKindSingle, input)
	now := f.now()

	outcome := models.OutcomeUncached
	staleRow := 0
	if sess.Connected() {
		outcome = models.OutcomeMiss
		rows, err := f.sheets.FetchAllRows(ctx, sess)
		if err != nil {
			slog.Warn("cache lookup failed", "owner", sess.Owner, "error", err)
		}
		if idx, row, ok := findRow(rows, input); ok {
			if !IsStale(row.LastUpdated, now) {
				res := &Result{
					Predictions: []models.Prediction{row.Prediction},
					CacheStatus: CacheStatusHit,
					Outcome:     models.OutcomeFreshHit,
				}
				f.finishRun(ctx, run, res, nil)
				return res, nil
			}
			slog.Info("stale cache row, refreshing", "owner", sess.Owner, "row", idx, "last_updated", row.LastUpdated)
			outcome = models.OutcomeStaleHit
			staleRow = idx
		}
	}

	preds, err := f.predictor.PredictSingle(ctx, input)
	if err != nil {
		f.finishRun(ctx, run, nil, err)
		return nil, err
	}

	res := &Result{Predictions: preds, Outcome: outcome}
	if sess.Connected() && len(preds) > 0 {
		if staleRow > 0 {
			if err := f.sheets.OverwriteRow(context.WithoutCancel(ctx), sess, staleRow, sheets.NewRow(preds[0], now)); err != nil {
				slog.Warn("refreshing cache row failed", "owner", sess.Owner, "row", staleRow, "error", err)
			}
			res.CacheStatus = CacheStatusStaleUpdated
			res.RowIndex = staleRow
		} else {
			f.save(ctx, sess, preds, now)
		}
	}

	f.finishRun(ctx, run, res, nil)
	return res, nil
}

// AnalyzeBulk predicts the most at-risk roles of an industry and appends
// them all to the cache. It never reads the cache.
func (f *Flow) AnalyzeBulk(ctx context.Context, sess *session.Session, industry string) (*Result, error) {
	run := f.startRun(ctx, models.RunKindBulk, models.JobInput{Industry: industry})

	preds, err := f.predictor.PredictBulk(ctx, industry)
	if err != nil {
		f.finishRun(ctx, run, nil, err)
		return nil, err
	}

	res := &Result{Predictions: preds, Outcome: models.OutcomeUncached}
	if sess.Connected() {
		res.Outcome = models.OutcomeMiss
		if len(preds) > 0 {
			f.save(ctx, sess, preds, f.now())
		}
	}

	f.finishRun(ctx, run, res, nil)
	return res, nil
}

func (f *Flow) save(ctx context.Context, sess *session.Session, preds []models.Prediction, now time.Time) {
	rows := make([]sheets.Row, 0, len(preds))
	for _, p := range preds {
		rows = append(rows, sheets.NewRow(p, now))
	}
	// Cache even when the caller has gone.
	if err := f.sheets.AppendRows(context.WithoutCancel(ctx), sess, rows); err != nil {
		slog.Warn("caching predictions failed", "owner", sess.Owner, "rows", len(rows), "error", err)
	}
}

func (f *Flow) startRun(ctx context.Context, kind string, input models.JobInput) *models.Run {
	if f.runs == nil {
		return nil
	}
	run := &models.Run{
		TenantID: f.tenant,
		Kind:     kind,
		Industry: input.Industry,
		Country:  input.Country,
		Role:     input.Role,
		Status:   models.RunStatusRunning,
		Provider: f.predictor.Name(),
	}
	if err := f.runs.CreateRun(ctx, run); err != nil {
		slog.Error("recording run failed", "kind", kind, "error", err)
		return nil
	}
	return run
}

func (f *Flow) finishRun(ctx context.Context, run *models.Run, res *Result, flowErr error) {
	if run == nil {
		return
	}
	completed := f.now()
	run.CompletedAt = &completed
	if flowErr != nil {
		msg := flowErr.Error()
		run.Status = models.RunStatusFailed
		run.ErrorMessage = &msg
	} else {
		run.Status = models.RunStatusCompleted
		run.Outcome = res.Outcome
		run.PredictionCount = len(res.Predictions)
		if res.RowIndex > 0 {
			idx := res.RowIndex
			run.RowIndex = &idx
		}
		id := run.ID
		res.RunID = &id
	}
	if err := f.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Error("finishing run failed", "run_id", run.ID, "error", err)
	}
}
