// Package history records window runs in a local SQLite database so past
// and live windows can be listed after the fact.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run states.
const (
	StateStarting = "starting"
	StateVisible  = "visible"
	StateFailed   = "failed"
	StateClosed   = "closed"
	StateExited   = "exited"
)

const schema = `
CREATE TABLE IF NOT EXISTS windows (
	id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL DEFAULT '',
	entry TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL,
	pid INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ready_at TEXT,
	ended_at TEXT,
	end_reason TEXT
);

CREATE INDEX IF NOT EXISTS windows_started_at ON windows (started_at);
`

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("window run not found")

// Run is one window lifetime.
type Run struct {
	ID        string     `json:"id"`
	Workspace string     `json:"workspace,omitempty"`
	Entry     string     `json:"entry"`
	Source    string     `json:"source,omitempty"`
	Address   string     `json:"address"`
	PID       int        `json:"pid,omitempty"`
	State     string     `json:"state"`
	StartedAt time.Time  `json:"startedAt"`
	ReadyAt   *time.Time `json:"readyAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	EndReason string     `json:"endReason,omitempty"`
}

// Store persists runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a run in StateStarting.
func (s *Store) Begin(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO windows (id, workspace, entry, source, address, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workspace, run.Entry, run.Source, run.Address, StateStarting, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("record window start: %w", err)
	}

	return nil
}

// MarkVisible records that the backend became ready and the window was shown.
func (s *Store) MarkVisible(ctx context.Context, id string, pid int, at time.Time) error {
	return s.update(ctx, id, `UPDATE windows SET state = ?, pid = ?, ready_at = ? WHERE id = ?`,
		StateVisible, pid, formatTime(at), id)
}

// MarkEnded records the terminal state of a run.
func (s *Store) MarkEnded(ctx context.Context, id, state, reason string, at time.Time) error {
	return s.update(ctx, id, `UPDATE windows SET state = ?, end_reason = ?, ended_at = ? WHERE id = ?`,
		state, reason, formatTime(at), id)
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update window %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace, entry, source, address, pid, state, started_at, ready_at, ended_at, end_reason
		FROM windows ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace, entry, source, address, pid, state, started_at, ready_at, ended_at, end_reason
		FROM windows WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}

	return run, err
}

// Prune deletes ended runs that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM windows WHERE ended_at IS NOT NULL AND started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune windows: %w", err)
	}

	n, err := res.RowsAffected()

	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run                Run
		started            string
		ready, ended, why sql.NullString
	)

	if err := sc.Scan(&run.ID, &run.Workspace, &run.Entry, &run.Source, &run.Address,
		&run.PID, &run.State, &started, &ready, &ended, &why); err != nil {
		return Run{}, err
	}

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}

	if run.ReadyAt, err = parseNullTime(ready); err != nil {
		return Run{}, err
	}

	if run.EndedAt, err = parseNullTime(ended); err != nil {
		return Run{}, err
	}

	run.EndReason = why.String

	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}

	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}

	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
