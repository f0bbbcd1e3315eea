// Package store provides session and conversation history storage backends for TripNavi.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tripnavi/tripnavi/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; its directory is
// created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SetPlan(userID string, plan models.Plan) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (user_id, plan, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET plan = excluded.plan, updated_at = excluded.updated_at`,
		userID, string(plan), time.Now())
	if err != nil {
		slog.Error("SQLiteStore SetPlan failed", "error", err, "userID", userID, "plan", plan)
		return fmt.Errorf("failed to save plan for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore SetPlan succeeded", "userID", userID, "plan", plan)
	return nil
}

func (s *SQLiteStore) GetPlan(userID string) (models.Plan, bool, error) {
	var plan string
	err := s.db.QueryRow(`SELECT plan FROM sessions WHERE user_id = ?`, userID).Scan(&plan)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPlan failed", "error", err, "userID", userID)
		return "", false, fmt.Errorf("failed to query plan for %s: %w", userID, err)
	}
	return models.Plan(plan), true, nil
}

func (s *SQLiteStore) AppendTurns(userID string, plan models.Plan, turns ...models.Turn) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore AppendTurns begin failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, t := range turns {
		if _, err := tx.Exec(
			`INSERT INTO turns (user_id, plan, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			userID, string(plan), string(t.Role), t.Content, t.Timestamp); err != nil {
			tx.Rollback()
			slog.Error("SQLiteStore AppendTurns insert failed", "error", err, "userID", userID, "plan", plan)
			return fmt.Errorf("failed to append turn for %s: %w", userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore AppendTurns commit failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	slog.Debug("SQLiteStore AppendTurns succeeded", "userID", userID, "plan", plan, "count", len(turns))
	return nil
}

func (s *SQLiteStore) GetTurns(userID string, plan models.Plan) ([]models.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, content, created_at FROM turns WHERE user_id = ? AND plan = ? ORDER BY id`,
		userID, string(plan))
	if err != nil {
		slog.Error("SQLiteStore GetTurns query failed", "error", err, "userID", userID, "plan", plan)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.Timestamp); err != nil {
			slog.Error("SQLiteStore GetTurns scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetTurns rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	slog.Debug("SQLiteStore GetTurns succeeded", "userID", userID, "plan", plan, "count", len(turns))
	return turns, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("SQLiteStore failed to close database", "error", err)
	}
	return err
}
