package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"createtree/internal/domain"
	"createtree/internal/sqlinline"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore persists jobs in an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens (or creates) the database at path and applies the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("jobs: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jobs: ensure sqlite directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps the per-connection pragmas in force for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.exec(ctx, sqlinline.QSQLiteJobsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs: apply sqlite schema: %w", err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Create(ctx context.Context, job *domain.Job) error {
	if err := validateJobID(job.ID); err != nil {
		return err
	}
	params, result, err := encodeJobColumns(job)
	if err != nil {
		return err
	}
	var res sql.Result
	err = retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, sqlinline.QSQLiteJobInsert,
			job.ID,
			string(job.Kind),
			job.OwnerID,
			string(params),
			string(job.Status),
			job.Progress,
			nullableText(result),
			job.Error,
			job.CreatedAt.UTC().UnixNano(),
			job.UpdatedAt.UTC().UnixNano(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("jobs: insert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrJobExists
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.Job, error) {
	patch, err := normalizePatch(patch)
	if err != nil {
		return nil, err
	}
	status, progress, result, errMsg, err := patchColumns(patch)
	if err != nil {
		return nil, err
	}
	var job *domain.Job
	err = retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, sqlinline.QSQLiteJobUpdate,
			nullable(status), nullable(progress), nullableText(result), nullable(errMsg), time.Now().UTC().UnixNano(), jobID)
		var scanErr error
		job, scanErr = scanSQLiteJob(row)
		return scanErr
	})
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	var current string
	err = s.db.QueryRowContext(ctx, sqlinline.QSQLiteJobExists, jobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: lookup: %w", err)
	}
	return nil, domain.ErrJobTerminal
}

func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return scanSQLiteJob(s.db.QueryRowContext(ctx, sqlinline.QSQLiteJobGet, jobID))
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.queryJobs(ctx, sqlinline.QSQLiteJobList, limitOrDefault(limit))
}

func (s *SQLiteStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, sqlinline.QSQLiteJobDeleteTerminalBefore, cutoff.UTC().UnixNano())
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("jobs: delete expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) ListProcessingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Job, error) {
	return s.queryJobs(ctx, sqlinline.QSQLiteJobListProcessingBefore, cutoff.UTC().UnixNano())
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs: query: %w", err)
	}
	defer rows.Close()
	var out []*domain.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: iterate: %w", err)
	}
	return out, nil
}

func scanSQLiteJob(row rowScanner) (*domain.Job, error) {
	var (
		job                  domain.Job
		kind, status, params string
		result               sql.NullString
		created, updated     int64
	)
	if err := row.Scan(
		&job.ID,
		&kind,
		&job.OwnerID,
		&params,
		&status,
		&job.Progress,
		&result,
		&job.Error,
		&created,
		&updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("jobs: scan: %w", err)
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.CreatedAt = time.Unix(0, created).UTC()
	job.UpdatedAt = time.Unix(0, updated).UTC()
	var resultBytes []byte
	if result.Valid {
		resultBytes = []byte(result.String)
	}
	if err := decodeJobColumns(&job, []byte(params), resultBytes); err != nil {
		return nil, err
	}
	return &job, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
