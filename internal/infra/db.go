package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	minPoolConns   = 4
	maxPoolConns   = 32
	connectTimeout = 10 * time.Second
)

// NewDBPool connects the postgres job store and pings it so a bad
// DATABASE_URL fails at startup rather than on the first submit.
func NewDBPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	poolCfg, err := jobsPoolConfig(cfg.Jobs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// jobsPoolConfig sizes the pool for the runner: every concurrent task writes
// progress while requests keep polling, so a capped runner gets its cap plus
// headroom and an uncapped one gets the upper bound.
func jobsPoolConfig(jobs JobsConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(jobs.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	conns := int32(maxPoolConns)
	if jobs.MaxConcurrent > 0 {
		conns = int32(min(max(jobs.MaxConcurrent+minPoolConns, minPoolConns), maxPoolConns))
	}
	poolCfg.MaxConns = conns
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 15 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	return poolCfg, nil
}

// IsNoRows reports whether err signals an empty result set.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
