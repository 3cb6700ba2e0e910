// Package sessions records supervised-server runs in a local SQLite
// database so past runs stay inspectable after their log files rotate away.
package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one supervised-server session.
type Record struct {
	ID        int64          `json:"id"`
	ProjectID string         `json:"project_id"`
	Mode      string         `json:"mode"`
	Port      int            `json:"port"`
	LogPath   string         `json:"log_path"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt sql.NullTime   `json:"stopped_at"`
	ExitErr   sql.NullString `json:"exit_error"`
}

// Store wraps the sqlite handle. SQLite works best on a single connection.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    port INTEGER NOT NULL,
    log_path TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMP NOT NULL,
    stopped_at TIMESTAMP,
    exit_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordStart inserts a new session row and returns its id.
func (s *Store) RecordStart(ctx context.Context, projectID, mode string, port int, logPath string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(project_id, mode, port, log_path, started_at) VALUES(?,?,?,?,?)`,
		projectID, mode, port, logPath, startedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("record start: %w", err)
	}
	return res.LastInsertId()
}

// RecordStop finalizes a session row; exitErr may be nil for clean exits.
func (s *Store) RecordStop(ctx context.Context, id int64, stoppedAt time.Time, exitErr error) error {
	var e sql.NullString
	if exitErr != nil {
		e = sql.NullString{String: exitErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET stopped_at=?, exit_error=? WHERE id=?`,
		stoppedAt.UTC(), e, id)
	if err != nil {
		return fmt.Errorf("record stop: %w", err)
	}
	return nil
}

// Get returns one session by id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, mode, port, log_path, started_at, stopped_at, exit_error
		 FROM sessions WHERE id=?`, id)
	var r Record
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Mode, &r.Port, &r.LogPath, &r.StartedAt, &r.StoppedAt, &r.ExitErr); err != nil {
		return Record{}, fmt.Errorf("get session %d: %w", id, err)
	}
	return r, nil
}

// List returns the most recent sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, mode, port, log_path, started_at, stopped_at, exit_error
		 FROM sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Mode, &r.Port, &r.LogPath, &r.StartedAt, &r.StoppedAt, &r.ExitErr); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
