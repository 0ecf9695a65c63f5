package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities. Implementations return
// copies from Get/List and apply patches atomically with Job.Apply semantics.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Update(ctx context.Context, jobID string, patch JobPatch) (*Job, error)
	Get(ctx context.Context, jobID string) (*Job, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	// DeleteTerminalBefore removes completed/failed jobs last updated before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	// ListProcessingBefore returns processing jobs last updated before cutoff.
	ListProcessingBefore(ctx context.Context, cutoff time.Time) ([]*Job, error)
}
