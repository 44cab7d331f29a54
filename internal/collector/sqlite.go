// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/telemetry"
)

// SQLiteStore persists sessions in a SQLite database. Each session is kept
// as one JSON document plus the columns the list view needs.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig contains SQLite storage configuration.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections (default: 5).
	MaxOpenConns int
}

// NewSQLiteStore opens (creating if needed) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	connStr := cfg.Path
	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	if cfg.Path == ":memory:" {
		// Every connection to :memory: is a separate database.
		maxConns = 1
	} else {
		connStr += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(min(maxConns, 2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			status TEXT NOT NULL,
			step_count INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSession(ctx context.Context, ex execer, sess *telemetry.Session) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var endedAt *int64
	if sess.EndedAt != nil {
		et := sess.EndedAt.UnixNano()
		endedAt = &et
	}

	query := `
		INSERT INTO sessions (id, name, started_at, ended_at, status, step_count, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			status = excluded.status,
			step_count = excluded.step_count,
			body = excluded.body,
			updated_at = excluded.updated_at
	`
	_, err = ex.ExecContext(ctx, query,
		sess.ID, sess.Name, sess.StartedAt.UnixNano(), endedAt, string(sess.Status),
		len(sess.Steps), string(body), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]telemetry.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, started_at, ended_at, status, step_count
		FROM sessions ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	out := []telemetry.SessionSummary{}
	for rows.Next() {
		var sum telemetry.SessionSummary
		var startedAt int64
		var endedAt *int64
		var status string
		if err := rows.Scan(&sum.ID, &sum.Name, &startedAt, &endedAt, &status, &sum.StepCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.StartedAt = time.Unix(0, startedAt).UTC()
		if endedAt != nil {
			t := time.Unix(0, *endedAt).UTC()
			sum.EndedAt = &t
		}
		sum.Status = telemetry.Status(status)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadSession(ctx context.Context, q queryer, id string) (*telemetry.Session, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM sessions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess telemetry.Session
	if err := json.Unmarshal([]byte(body), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*telemetry.Session, error) {
	return loadSession(ctx, s.db, id)
}

func (s *SQLiteStore) PutSession(ctx context.Context, sess *telemetry.Session) error {
	if err := ValidateSession(sess); err != nil {
		return err
	}
	return upsertSession(ctx, s.db, sess)
}

func (s *SQLiteStore) PutObservation(ctx context.Context, rec telemetry.ObservationRecord) error {
	if err := ValidateObservation(rec); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := loadSession(ctx, tx, rec.SessionID)
	var nf *pkgerrors.NotFoundError
	if err != nil && !errors.As(err, &nf) {
		return err
	}

	if err := upsertSession(ctx, tx, mergeObservation(existing, rec)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLiteStore) DeleteAllSessions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) SessionCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
