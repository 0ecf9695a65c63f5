package jobs

import (
	"context"
	"errors"
	"time"

	"createtree/internal/domain"
	"createtree/internal/infra"
)

// AbandonedMessage is recorded on processing jobs that stopped reporting.
const AbandonedMessage = "generation abandoned"

// SweepResult summarizes one eviction pass.
type SweepResult struct {
	Evicted   int
	Abandoned int
}

// Sweeper evicts finished jobs after a TTL and fails processing jobs whose
// task stopped reporting.
type Sweeper struct {
	repo       domain.JobRepository
	logger     infra.Logger
	ttl        time.Duration
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time

	// Active reports whether a job still has a live task in this process.
	// Such jobs are never marked abandoned.
	Active func(jobID string) bool
}

func NewSweeper(repo domain.JobRepository, cfg infra.JobsConfig, logger infra.Logger) *Sweeper {
	return &Sweeper{
		repo:       repo,
		logger:     logger,
		ttl:        cfg.TTL,
		staleAfter: cfg.StaleAfter,
		interval:   cfg.SweepInterval,
		now:        time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.interval).Dur("ttl", s.ttl).Msg("sweeper: started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper: stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("sweeper: pass failed")
			}
		}
	}
}

// SweepOnce runs a single eviction pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	if s.staleAfter > 0 {
		stale, err := s.repo.ListProcessingBefore(ctx, now.Add(-s.staleAfter))
		if err != nil {
			return res, err
		}
		for _, job := range stale {
			if s.Active != nil && s.Active(job.ID) {
				continue
			}
			_, err := s.repo.Update(ctx, job.ID, domain.FailedPatch(AbandonedMessage, nil))
			switch {
			case err == nil:
				res.Abandoned++
				s.logger.Warn().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("sweeper: job abandoned")
			case errors.Is(err, domain.ErrJobTerminal), errors.Is(err, domain.ErrNotFound):
			default:
				return res, err
			}
		}
	}

	if s.ttl > 0 {
		n, err := s.repo.DeleteTerminalBefore(ctx, now.Add(-s.ttl))
		if err != nil {
			return res, err
		}
		res.Evicted = n
	}

	if res.Evicted > 0 || res.Abandoned > 0 {
		s.logger.Info().Int("evicted", res.Evicted).Int("abandoned", res.Abandoned).Msg("sweeper: pass complete")
	}
	return res, nil
}
