package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"createtree/internal/domain"
	"createtree/internal/infra"
)

const (
	// CancelledMessage is recorded on jobs whose task was cancelled.
	CancelledMessage = "cancelled"
	// PanicMessage is recorded on jobs whose task panicked.
	PanicMessage = "internal error during generation"

	finalWriteTimeout = 10 * time.Second
)

// ErrRunnerClosed is returned by Submit after Shutdown.
var ErrRunnerClosed = errors.New("jobs: runner is shut down")

var errCancelled = errors.New("job cancelled")

// Reporter publishes best-effort progress (0..100) for the running job.
type Reporter func(progress int)

// Task performs one generation. A non-nil result returned together with an
// error is kept on the failed job (e.g. a placeholder image).
type Task func(ctx context.Context, report Reporter) (*domain.JobResult, error)

// Runner executes generation tasks in the background and records their
// outcome in the job repository.
type Runner struct {
	repo   domain.JobRepository
	logger infra.Logger
	sem    *semaphore.Weighted

	base     context.Context
	stopBase context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]context.CancelCauseFunc
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a runner. maxConcurrent <= 0 means unlimited.
func NewRunner(repo domain.JobRepository, logger infra.Logger, maxConcurrent int) *Runner {
	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		repo:     repo,
		logger:   logger,
		base:     base,
		stopBase: stop,
		tasks:    make(map[string]context.CancelCauseFunc),
	}
	if maxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return r
}

// Submit persists job before returning its id, then runs task on its own
// goroutine. The task context derives from the runner, not from ctx, so it
// outlives the submitting request.
func (r *Runner) Submit(ctx context.Context, job *domain.Job, task Task) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRunnerClosed
	}
	if _, exists := r.tasks[job.ID]; exists {
		r.mu.Unlock()
		return "", domain.ErrJobExists
	}
	taskCtx, cancel := context.WithCancelCause(r.base)
	r.tasks[job.ID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	if err := r.repo.Create(ctx, job); err != nil {
		r.forget(job.ID)
		cancel(nil)
		r.wg.Done()
		return "", fmt.Errorf("jobs: create record: %w", err)
	}

	r.logger.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("jobs: submitted")
	go r.run(taskCtx, job.ID, job.Kind, task)
	return job.ID, nil
}

// Cancel stops the task of a processing job. Jobs without a live task in this
// process are failed directly.
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	r.mu.Lock()
	cancel, ok := r.tasks[jobID]
	r.mu.Unlock()

	job, err := r.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	if ok {
		cancel(errCancelled)
		return nil
	}
	_, err = r.repo.Update(ctx, jobID, domain.FailedPatch(CancelledMessage, nil))
	return err
}

// Running reports whether jobID has a live task in this runner.
func (r *Runner) Running(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[jobID]
	return ok
}

// Shutdown cancels every running task and waits for them to record their
// outcome or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stopBase()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, jobID string, kind domain.JobKind, task Task) {
	defer r.wg.Done()
	defer r.forget(jobID)

	log := r.logger.With().Str("job_id", jobID).Str("kind", string(kind)).Logger()

	var (
		result *domain.JobResult
		err    error
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Msg("jobs: task panicked")
				result, err = nil, errors.New(PanicMessage)
			}
		}()
		if r.sem != nil {
			if acqErr := r.sem.Acquire(ctx, 1); acqErr != nil {
				err = acqErr
				return
			}
			defer r.sem.Release(1)
		}
		result, err = task(ctx, r.reporter(ctx, jobID, log))
	}()

	// a result that was ready before the cancel landed is kept
	if ctx.Err() != nil && (err != nil || result == nil) {
		result, err = nil, errCancelled
	}

	var patch domain.JobPatch
	switch {
	case errors.Is(err, errCancelled):
		patch = domain.FailedPatch(CancelledMessage, nil)
		log.Info().Msg("jobs: cancelled")
	case err != nil:
		patch = domain.FailedPatch(err.Error(), result)
		log.Warn().Err(err).Msg("jobs: failed")
	case result == nil:
		patch = domain.FailedPatch("generation produced no result", nil)
		log.Warn().Msg("jobs: task returned no result")
	default:
		patch = domain.CompletedPatch(*result)
		log.Info().Str("provider", result.Provider).Msg("jobs: completed")
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if _, uerr := r.repo.Update(writeCtx, jobID, patch); uerr != nil {
		log.Error().Err(uerr).Msg("jobs: record outcome failed")
	}
}

func (r *Runner) reporter(ctx context.Context, jobID string, log infra.Logger) Reporter {
	return func(progress int) {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.repo.Update(ctx, jobID, domain.ProgressPatch(progress)); err != nil &&
			!errors.Is(err, domain.ErrJobTerminal) && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Int("progress", progress).Msg("jobs: progress update failed")
		}
	}
}

func (r *Runner) forget(jobID string) {
	r.mu.Lock()
	delete(r.tasks, jobID)
	r.mu.Unlock()
}
