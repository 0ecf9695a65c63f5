package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"createtree/internal/domain"
	"createtree/internal/sqlinline"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubDB struct {
	execTag  pgconn.CommandTag
	execErr  error
	rows     map[string]stubRow
	queries  []string
	lastArgs []any
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.lastArgs = args
	return s.execTag, s.execErr
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.lastArgs = args
	return s.rows[query]
}

func (s *stubDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported in stub")
}

func jobRow(id string, status domain.JobStatus, progress int, result *domain.JobResult) stubRow {
	return stubRow{scan: func(dest ...any) error {
		if len(dest) != 10 {
			return errors.New("unexpected column count")
		}
		params, _ := json.Marshal(domain.GenerationParams{Prompt: "a calm lullaby", DurationSeconds: 120})
		var resultJSON []byte
		if result != nil {
			resultJSON, _ = json.Marshal(result)
		}
		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		*dest[0].(*string) = id
		*dest[1].(*string) = string(domain.JobKindMusic)
		*dest[2].(*string) = ""
		*dest[3].(*[]byte) = params
		*dest[4].(*string) = string(status)
		*dest[5].(*int) = progress
		*dest[6].(*[]byte) = resultJSON
		*dest[7].(*string) = ""
		*dest[8].(*time.Time) = now
		*dest[9].(*time.Time) = now
		return nil
	}}
}

func TestPostgresStoreCreate(t *testing.T) {
	db := &stubDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store := NewPostgresStore(db)
	job := newTestJob("job-1", time.Now())

	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(db.queries) != 1 || db.queries[0] != sqlinline.QJobInsert {
		t.Fatalf("unexpected queries: %v", db.queries)
	}
	if !strings.HasPrefix(db.queries[0], "--sql ") {
		t.Fatalf("query is missing its marker")
	}
	if len(db.lastArgs) != 10 || db.lastArgs[0] != "job-1" || db.lastArgs[4] != "processing" {
		t.Fatalf("unexpected args: %#v", db.lastArgs)
	}

	db.execTag = pgconn.NewCommandTag("INSERT 0 0")
	if err := store.Create(context.Background(), job); !errors.Is(err, domain.ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
}

func TestPostgresStoreUpdateOnTerminalJob(t *testing.T) {
	db := &stubDB{rows: map[string]stubRow{
		sqlinline.QJobUpdate: {},
		sqlinline.QJobGet:    jobRow("job-1", domain.JobStatusCompleted, 100, &domain.JobResult{URL: "https://cdn.example/a.mp3"}),
	}}
	store := NewPostgresStore(db)

	_, err := store.Update(context.Background(), "job-1", domain.FailedPatch("late", nil))
	if !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("expected ErrJobTerminal, got %v", err)
	}
}

func TestPostgresStoreUpdateMissingJob(t *testing.T) {
	db := &stubDB{rows: map[string]stubRow{}}
	store := NewPostgresStore(db)

	_, err := store.Update(context.Background(), "missing", domain.ProgressPatch(10))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreUpdateClampsBeforeQuery(t *testing.T) {
	db := &stubDB{rows: map[string]stubRow{
		sqlinline.QJobUpdate: jobRow("job-1", domain.JobStatusProcessing, 100, nil),
	}}
	store := NewPostgresStore(db)

	job, err := store.Update(context.Background(), "job-1", domain.ProgressPatch(180))
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if job.Progress != 100 || job.Params.Prompt != "a calm lullaby" {
		t.Fatalf("unexpected job: %#v", job)
	}
	progress, ok := db.lastArgs[2].(*int)
	if !ok || progress == nil || *progress != 100 {
		t.Fatalf("progress arg = %#v, want 100", db.lastArgs[2])
	}

	bogus := domain.JobStatus("queued")
	if _, err := store.Update(context.Background(), "job-1", domain.JobPatch{Status: &bogus}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestPostgresStoreGet(t *testing.T) {
	db := &stubDB{rows: map[string]stubRow{
		sqlinline.QJobGet: jobRow("job-1", domain.JobStatusCompleted, 100, &domain.JobResult{URL: "https://cdn.example/a.mp3", Duration: 120}),
	}}
	store := NewPostgresStore(db)

	job, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.Result == nil || job.Result.Duration != 120 {
		t.Fatalf("unexpected job: %#v", job)
	}

	db.rows = map[string]stubRow{}
	if _, err := store.Get(context.Background(), "job-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
