// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mindsoc/chorus/pkg/errors"
)

// SQLiteStore persists candidates and turn records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "open sqlite database", err).
			WithContext("path", path)
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids table-lock errors under concurrent sessions.
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_candidates (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			agent TEXT NOT NULL,
			text TEXT NOT NULL,
			importance REAL NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_candidates_session
			ON memory_candidates (session_id, created_at);

		CREATE TABLE IF NOT EXISTS turn_records (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_text TEXT NOT NULL,
			goal TEXT NOT NULL,
			constraints_json TEXT,
			response TEXT NOT NULL,
			degraded INTEGER NOT NULL,
			fallback INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session
			ON turn_records (session_id, created_at);
	`)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "ensure sqlite schema", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, c Candidate) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_candidates (id, session_id, turn_id, agent, text, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.SessionID, c.TurnID, c.Agent, c.Text, c.Importance, c.CreatedAt)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "append candidate", err).
			WithContext("session_id", c.SessionID)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, sessionID string, limit int) ([]Candidate, error) {
	query := `
		SELECT id, session_id, turn_id, agent, text, importance, created_at
		FROM memory_candidates
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "list candidates", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.SessionID, &c.TurnID, &c.Agent, &c.Text, &c.Importance, &c.CreatedAt); err != nil {
			return nil, errors.New(errors.CodeMemoryError, "scan candidate", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeMemoryError, "iterate candidates", err)
	}
	return out, nil
}

func (s *SQLiteStore) SaveTurn(ctx context.Context, rec TurnRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	constraints, err := json.Marshal(rec.Constraints)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "encode constraints", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turn_records (turn_id, session_id, user_text, goal, constraints_json, response, degraded, fallback, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.TurnID, rec.SessionID, rec.UserText, rec.Goal, string(constraints),
		rec.Response, boolInt(rec.Degraded), boolInt(rec.Fallback), rec.DurationMS, rec.CreatedAt)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "save turn record", err).
			WithContext("turn_id", rec.TurnID)
	}
	return nil
}

func (s *SQLiteStore) Turns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	query := `
		SELECT turn_id, session_id, user_text, goal, constraints_json, response, degraded, fallback, duration_ms, created_at
		FROM turn_records
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "list turn records", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var constraintsJSON sql.NullString
		var degraded, fallback int
		if err := rows.Scan(&rec.TurnID, &rec.SessionID, &rec.UserText, &rec.Goal, &constraintsJSON,
			&rec.Response, &degraded, &fallback, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, errors.New(errors.CodeMemoryError, "scan turn record", err)
		}
		if constraintsJSON.Valid && constraintsJSON.String != "" {
			if err := json.Unmarshal([]byte(constraintsJSON.String), &rec.Constraints); err != nil {
				return nil, errors.New(errors.CodeMemoryError, "decode constraints", err)
			}
		}
		rec.Degraded = degraded != 0
		rec.Fallback = fallback != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeMemoryError, "iterate turn records", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
