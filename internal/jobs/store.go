// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// Store holds conversion jobs and session activity.
type Store interface {
	Create(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, id string) (*types.Job, error)
	Update(ctx context.Context, job *types.Job) error
	List(ctx context.Context, sessionID string) ([]*types.Job, error)
	Delete(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, sessionID string) (int, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	IdleSessions(ctx context.Context, before time.Time) ([]string, error)
	Close() error
}

// SQLiteStore is a Store over a private in-memory SQLite database. Nothing
// it holds outlives the process.
type SQLiteStore struct {
	db *sql.DB
}

// NewMemoryStore opens a fresh in-memory database and creates the schema.
func NewMemoryStore() (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:mdui-%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A shared-cache memory database lives as long as one connection does.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database; its contents are gone afterwards.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			last_seen TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			batch_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			source TEXT NOT NULL,
			display_name TEXT NOT NULL,
			suggested_name TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			error_category TEXT NOT NULL DEFAULT '',
			word_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_session_id ON jobs(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_batch_id ON jobs(batch_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

const jobColumns = `id, session_id, batch_id, kind, source, display_name, suggested_name,
	status, result, error, error_category, word_count, created_at, updated_at`

// Create inserts a new job.
func (s *SQLiteStore) Create(ctx context.Context, job *types.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SessionID, job.BatchID, string(job.Kind), job.Source, job.DisplayName, job.SuggestedName,
		string(job.Status), job.Result, job.Error, job.ErrorCategory, job.WordCount,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the job with id, or an error wrapping types.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", id, err)
	}
	return job, nil
}

// Update overwrites the mutable fields of an existing job.
func (s *SQLiteStore) Update(ctx context.Context, job *types.Job) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, error = ?, error_category = ?, word_count = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status), job.Result, job.Error, job.ErrorCategory, job.WordCount, formatTime(job.UpdatedAt), job.ID,
	)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", job.ID, err)
	}
	return expectOne(res, job.ID)
}

// List returns the jobs of a session in submission order.
func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]*types.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Delete removes a job.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting job %s: %w", id, err)
	}
	return expectOne(res, id)
}

// DeleteSession removes a session and all of its jobs, returning the number
// of jobs removed.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting jobs of session %s: %w", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return 0, fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Touch records activity for a session.
func (s *SQLiteStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, last_seen) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen`,
		sessionID, formatTime(at))
	if err != nil {
		return fmt.Errorf("touching session %s: %w", sessionID, err)
	}
	return nil
}

// IdleSessions returns the sessions last seen before the given time.
func (s *SQLiteStore) IdleSessions(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE last_seen < ? ORDER BY last_seen`, formatTime(before))
	if err != nil {
		return nil, fmt.Errorf("listing idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job                  types.Job
		kind, status         string
		createdAt, updatedAt string
	)
	err := row.Scan(&job.ID, &job.SessionID, &job.BatchID, &kind, &job.Source, &job.DisplayName,
		&job.SuggestedName, &status, &job.Result, &job.Error, &job.ErrorCategory, &job.WordCount,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.Kind = types.SourceKind(kind)
	job.Status = types.JobStatus(status)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s", types.ErrNotFound, id)
	}
	return nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
