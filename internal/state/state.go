// Package state persists the small per-owner key/value settings the app
// needs across restarts: the spreadsheet handle and the OAuth client id.
package state

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeySpreadsheetID = "futurework_spreadsheet_id"
	KeyClientID      = "google_client_id"
)

// LocalOwner is the owner used by single-user surfaces such as the CLI.
const LocalOwner = "local"

// ErrLocked is returned when the backing file stays locked by another process
// until the context ends.
var ErrLocked = errors.New("state is locked by another process")

// Store reads and writes opaque string values scoped by owner.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, owner, key string) (string, bool, error)
	Set(ctx context.Context, owner, key, value string) error
	Delete(ctx context.Context, owner, key string) error
}
