package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunKindSingle = "single"
	RunKindBulk   = "bulk"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run outcomes of the cache lookup.
const (
	OutcomeFreshHit = "fresh_hit"
	OutcomeStaleHit = "stale_hit"
	OutcomeMiss     = "miss"
	OutcomeUncached = "uncached"
)

// Run is the audit record of one prediction flow. Outcome is empty until the
// flow finishes; RowIndex is set only when a stale row was refreshed.
type Run struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	TenantID        uuid.UUID  `db:"tenant_id"        json:"tenant_id"`
	Kind            string     `db:"kind"             json:"kind"`
	Industry        string     `db:"industry"         json:"industry"`
	Country         string     `db:"country"          json:"country,omitempty"`
	Role            string     `db:"role"             json:"role,omitempty"`
	Status          string     `db:"status"           json:"status"`
	Outcome         string     `db:"outcome"          json:"outcome,omitempty"`
	RowIndex        *int       `db:"row_index"        json:"row_index,omitempty"`
	PredictionCount int        `db:"prediction_count" json:"prediction_count"`
	Provider        string     `db:"provider"         json:"provider,omitempty"`
	ErrorMessage    *string    `db:"error_message"    json:"error_message,omitempty"`
	CompletedAt     *time.Time `db:"completed_at"     json:"completed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"       json:"updated_at"`
}
