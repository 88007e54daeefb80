package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization or team. Every API key and run belongs to a tenant.
// The tenant id also scopes persisted spreadsheet state and authorization sessions.
type Tenant struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
