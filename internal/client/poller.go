package client

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultPollInterval  = 3 * time.Second
	DefaultPollTimeout   = 10 * time.Minute
	DefaultNotFoundGrace = 10 * time.Second
	defaultMaxErrors     = 5
)

// ErrPollTimeout is returned when a job stays processing past Poller.Timeout.
var ErrPollTimeout = errors.New("timed out waiting for job")

// JobFailedError reports a job that reached the failed state.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// StatusSource is the part of Client the poller needs.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (*StatusResponse, error)
}

// Poller waits for a job to reach a terminal state.
type Poller struct {
	Source   StatusSource
	Interval time.Duration
	Timeout  time.Duration
	// NotFoundGrace is how long a 404 is read as "not visible yet".
	NotFoundGrace time.Duration
	// MaxErrors bounds consecutive transport errors before giving up.
	MaxErrors int
	// OnUpdate sees every snapshot, terminal ones included.
	OnUpdate func(*StatusResponse)
}

func NewPoller(src StatusSource) *Poller {
	return &Poller{
		Source:        src,
		Interval:      DefaultPollInterval,
		Timeout:       DefaultPollTimeout,
		NotFoundGrace: DefaultNotFoundGrace,
		MaxErrors:     defaultMaxErrors,
	}
}

// Wait polls until the job completes or fails. A failed job returns its last
// snapshot together with a *JobFailedError. Cancelling ctx stops the wait
// with ctx's error; running past Timeout returns ErrPollTimeout.
func (p *Poller) Wait(ctx context.Context, jobID string) (*StatusResponse, error) {
	interval := orDefault(p.Interval, DefaultPollInterval)
	grace := orDefault(p.NotFoundGrace, DefaultNotFoundGrace)
	maxErrors := p.MaxErrors
	if maxErrors <= 0 {
		maxErrors = defaultMaxErrors
	}

	ctx, cancel := context.WithTimeoutCause(ctx, orDefault(p.Timeout, DefaultPollTimeout), ErrPollTimeout)
	defer cancel()

	started := time.Now()
	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, waitError(ctx, jobID)
		case <-timer.C:
		}

		st, err := p.Source.Status(ctx, jobID)
		switch {
		case err == nil:
			failures = 0
			if p.OnUpdate != nil {
				p.OnUpdate(st)
			}
			switch st.Status {
			case StatusCompleted:
				return st, nil
			case StatusFailed:
				return st, &JobFailedError{JobID: jobID, Message: st.Message}
			}
		case ctx.Err() != nil:
			return nil, waitError(ctx, jobID)
		case errors.Is(err, ErrJobNotFound):
			if time.Since(started) >= grace {
				return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
			}
		default:
			failures++
			if failures >= maxErrors {
				return nil, fmt.Errorf("job %s: giving up after %d errors: %w", jobID, failures, err)
			}
		}
		timer.Reset(interval)
	}
}

func waitError(ctx context.Context, jobID string) error {
	if errors.Is(context.Cause(ctx), ErrPollTimeout) {
		return fmt.Errorf("job %s: %w", jobID, ErrPollTimeout)
	}
	return ctx.Err()
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
