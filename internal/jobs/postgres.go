package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"createtree/internal/domain"
	"createtree/internal/infra"
	"createtree/internal/sqlinline"
)

// PostgresStore implements domain.JobRepository on the generation_jobs table.
type PostgresStore struct {
	db     infra.SQLExecutor
	closer func()
}

func NewPostgresStore(db infra.SQLExecutor) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the generation_jobs table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, sqlinline.QJobsSchema); err != nil {
		return fmt.Errorf("jobs: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	if err := validateJobID(job.ID); err != nil {
		return err
	}
	params, result, err := encodeJobColumns(job)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, sqlinline.QJobInsert,
		job.ID,
		string(job.Kind),
		job.OwnerID,
		params,
		string(job.Status),
		job.Progress,
		result,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("jobs: insert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobExists
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.Job, error) {
	patch, err := normalizePatch(patch)
	if err != nil {
		return nil, err
	}
	status, progress, result, errMsg, err := patchColumns(patch)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx, sqlinline.QJobUpdate, jobID, status, progress, result, errMsg, time.Now().UTC())
	job, err := scanPGJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	// No row matched: either the job is missing or it already finished.
	if _, getErr := s.Get(ctx, jobID); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrJobTerminal
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return scanPGJob(s.db.QueryRow(ctx, sqlinline.QJobGet, jobID))
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.queryJobs(ctx, sqlinline.QJobList, limitOrDefault(limit))
}

func (s *PostgresStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, sqlinline.QJobDeleteTerminalBefore, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("jobs: delete expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListProcessingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Job, error) {
	return s.queryJobs(ctx, sqlinline.QJobListProcessingBefore, cutoff.UTC())
}

func (s *PostgresStore) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs: query: %w", err)
	}
	defer rows.Close()
	var out []*domain.Job
	for rows.Next() {
		job, err := scanPGJob(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPGJob(row rowScanner) (*domain.Job, error) {
	var (
		job            domain.Job
		kind, status   string
		params, result []byte
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
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("jobs: scan: %w", err)
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if err := decodeJobColumns(&job, params, result); err != nil {
		return nil, err
	}
	return &job, nil
}
