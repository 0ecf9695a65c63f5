package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"createtree/internal/domain"
)

const (
	jobFileExt       = ".json"
	lockDirName      = ".locks"
	lockStripes      = 64
	lockRetryBackoff = 20 * time.Millisecond
)

// FileStore persists one JSON document per job under a directory. Writers of a
// job serialize on one of lockStripes advisory lock files so the CLI and the
// server can share the directory; readers rely on atomic renames. Lock files
// are never removed: unlinking a flock file lets two processes hold "the"
// lock on different inodes.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("jobs: file store directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, lockDirName), 0o755); err != nil {
		return nil, fmt.Errorf("jobs: ensure store directory: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) Create(ctx context.Context, job *domain.Job) error {
	if err := validateJobID(job.ID); err != nil {
		return err
	}
	return s.withLock(ctx, job.ID, func() error {
		if _, err := os.Stat(s.path(job.ID)); err == nil {
			return domain.ErrJobExists
		}
		return s.write(job)
	})
}

func (s *FileStore) Update(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.Job, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	var updated *domain.Job
	err := s.withLock(ctx, jobID, func() error {
		job, err := s.read(jobID)
		if err != nil {
			return err
		}
		if err := job.Apply(patch, s.now()); err != nil {
			return err
		}
		if err := s.write(job); err != nil {
			return err
		}
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *FileStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateJobID(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.read(jobID)
}

func (s *FileStore) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	return newestFirst(all, limit), nil
}

func (s *FileStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, candidate := range all {
		if !candidate.Status.Terminal() || !candidate.UpdatedAt.Before(cutoff) {
			continue
		}
		err := s.withLock(ctx, candidate.ID, func() error {
			// Re-read under the lock; the record may have changed since the scan.
			job, err := s.read(candidate.ID)
			if err != nil {
				return err
			}
			if !job.Status.Terminal() || !job.UpdatedAt.Before(cutoff) {
				return nil
			}
			if err := os.Remove(s.path(job.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("jobs: remove %s: %w", job.ID, err)
			}
			removed++
			return nil
		})
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return removed, err
		}
	}
	return removed, nil
}

func (s *FileStore) ListProcessingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Job, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.Job
	for _, job := range all {
		if job.Status == domain.JobStatusProcessing && job.UpdatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) withLock(ctx context.Context, jobID string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock := flock.New(s.lockPath(jobID))
	locked, err := lock.TryLockContext(ctx, lockRetryBackoff)
	if err != nil {
		return fmt.Errorf("jobs: lock %s: %w", jobID, err)
	}
	if !locked {
		return fmt.Errorf("jobs: lock %s unavailable", jobID)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+jobFileExt)
}

func (s *FileStore) lockPath(jobID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobID))
	return filepath.Join(s.dir, lockDirName, fmt.Sprintf("%02x.lock", h.Sum32()%lockStripes))
}

func (s *FileStore) read(jobID string) (*domain.Job, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("jobs: read %s: %w", jobID, err)
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("jobs: decode %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *FileStore) write(job *domain.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("jobs: encode %s: %w", job.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("jobs: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("jobs: write %s: %w", job.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jobs: close %s: %w", job.ID, err)
	}
	if err := os.Rename(tmpName, s.path(job.ID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jobs: commit %s: %w", job.ID, err)
	}
	return nil
}

func (s *FileStore) scan(ctx context.Context) ([]*domain.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("jobs: list store directory: %w", err)
	}
	out := make([]*domain.Job, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, jobFileExt) {
			continue
		}
		job, err := s.read(strings.TrimSuffix(name, jobFileExt))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
