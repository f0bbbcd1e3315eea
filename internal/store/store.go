// Package store provides session and conversation history storage backends for TripNavi.
//
// It includes an in-memory store for tests and single-process use, plus
// SQLite and PostgreSQL backends for durable per-user plan selections and
// append-only conversation logs.
package store

import (
	"strings"

	"github.com/tripnavi/tripnavi/internal/models"
)

// Store persists plan selections and conversation history.
//
// History is an append-only log keyed by (user ID, plan); a turn for plan
// P must only ever read and append the log for (user, P).
type Store interface {
	// SetPlan records or overwrites the user's active travel plan.
	SetPlan(userID string, plan models.Plan) error

	// GetPlan returns the user's active plan, or ok=false when the user
	// has not selected one yet.
	GetPlan(userID string) (plan models.Plan, ok bool, err error)

	// AppendTurns appends turns to the conversation log for (userID, plan).
	AppendTurns(userID string, plan models.Plan, turns ...models.Turn) error

	// GetTurns returns the full conversation log for (userID, plan) in
	// append order.
	GetTurns(userID string, plan models.Plan) ([]models.Turn, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a functional option for store configuration.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL
// DSNs use URL or key=value forms; everything else is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
