package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"createtree/internal/domain"
	"createtree/internal/infra"
)

// Store is a job repository that owns closable resources.
type Store interface {
	domain.JobRepository
	Close() error
}

const defaultListLimit = 50

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// OpenStore builds the job store selected by cfg.Jobs.Store.
func OpenStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (Store, error) {
	switch cfg.Jobs.Store {
	case infra.JobStoreMemory:
		return NewMemoryStore(), nil
	case infra.JobStoreFile, "":
		return NewFileStore(cfg.Jobs.Dir)
	case infra.JobStoreSQLite:
		return OpenSQLiteStore(ctx, cfg.Jobs.SQLitePath)
	case infra.JobStorePostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(infra.NewSQLRunner(pool, logger))
		store.closer = pool.Close
		return store, nil
	default:
		return nil, fmt.Errorf("jobs: unsupported store %q", cfg.Jobs.Store)
	}
}

func validateJobID(id string) error {
	if !jobIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid job id %q", domain.ErrInvalidParams, id)
	}
	return nil
}

// normalizePatch validates the status and clamps progress so SQL backends can
// apply the same rules Job.Apply enforces in memory.
func normalizePatch(p domain.JobPatch) (domain.JobPatch, error) {
	if p.Status != nil && !p.Status.Valid() {
		return p, domain.ErrInvalidStatus
	}
	if p.Progress != nil {
		v := *p.Progress
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		p.Progress = &v
	}
	return p, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// patchColumns renders a patch into nullable column values.
func patchColumns(p domain.JobPatch) (status *string, progress *int, result []byte, errMsg *string, err error) {
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	progress = p.Progress
	if p.Result != nil {
		result, err = json.Marshal(p.Result)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode job result: %w", err)
		}
	}
	errMsg = p.Error
	return status, progress, result, errMsg, nil
}

func encodeJobColumns(job *domain.Job) (params []byte, result []byte, err error) {
	params, err = json.Marshal(job.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("encode job params: %w", err)
	}
	if job.Result != nil {
		result, err = json.Marshal(job.Result)
		if err != nil {
			return nil, nil, fmt.Errorf("encode job result: %w", err)
		}
	}
	return params, result, nil
}

func decodeJobColumns(job *domain.Job, params, result []byte) error {
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return fmt.Errorf("decode job params: %w", err)
		}
	}
	if len(result) > 0 {
		var r domain.JobResult
		if err := json.Unmarshal(result, &r); err != nil {
			return fmt.Errorf("decode job result: %w", err)
		}
		job.Result = &r
	}
	return nil
}
