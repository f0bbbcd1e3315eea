// Package store provides session and conversation history storage backends for TripNavi.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/tripnavi/tripnavi/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SetPlan(userID string, plan models.Plan) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (user_id, plan, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET plan = EXCLUDED.plan, updated_at = EXCLUDED.updated_at`,
		userID, string(plan), time.Now())
	if err != nil {
		slog.Error("PostgresStore SetPlan failed", "error", err, "userID", userID, "plan", plan)
		return fmt.Errorf("failed to save plan for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore SetPlan succeeded", "userID", userID, "plan", plan)
	return nil
}

func (s *PostgresStore) GetPlan(userID string) (models.Plan, bool, error) {
	var plan string
	err := s.db.QueryRow(`SELECT plan FROM sessions WHERE user_id = $1`, userID).Scan(&plan)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPlan failed", "error", err, "userID", userID)
		return "", false, fmt.Errorf("failed to query plan for %s: %w", userID, err)
	}
	return models.Plan(plan), true, nil
}

func (s *PostgresStore) AppendTurns(userID string, plan models.Plan, turns ...models.Turn) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore AppendTurns begin failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, t := range turns {
		if _, err := tx.Exec(
			`INSERT INTO turns (user_id, plan, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			userID, string(plan), string(t.Role), t.Content, t.Timestamp); err != nil {
			tx.Rollback()
			slog.Error("PostgresStore AppendTurns insert failed", "error", err, "userID", userID, "plan", plan)
			return fmt.Errorf("failed to append turn for %s: %w", userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore AppendTurns commit failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	slog.Debug("PostgresStore AppendTurns succeeded", "userID", userID, "plan", plan, "count", len(turns))
	return nil
}

func (s *PostgresStore) GetTurns(userID string, plan models.Plan) ([]models.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, content, created_at FROM turns WHERE user_id = $1 AND plan = $2 ORDER BY id`,
		userID, string(plan))
	if err != nil {
		slog.Error("PostgresStore GetTurns query failed", "error", err, "userID", userID, "plan", plan)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.Timestamp); err != nil {
			slog.Error("PostgresStore GetTurns scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetTurns rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	slog.Debug("PostgresStore GetTurns succeeded", "userID", userID, "plan", plan, "count", len(turns))
	return turns, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("PostgresStore failed to close database", "error", err)
	}
	return err
}
