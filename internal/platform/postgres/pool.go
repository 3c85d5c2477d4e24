// Package postgres wires a pgx connection pool from configuration.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seagull-retail/api/internal/platform/config"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultMaxConnLifetime = 30 * time.Minute
	defaultMaxConnIdleTime = 5 * time.Minute
	defaultHealthCheck     = time.Minute
)

// PoolOption customises pool construction.
type PoolOption func(*poolOptions)

type poolOptions struct {
	connectTimeout time.Duration
	minConns       int32
}

// WithConnectTimeout bounds the initial connect and ping.
func WithConnectTimeout(timeout time.Duration) PoolOption {
	return func(o *poolOptions) {
		if timeout > 0 {
			o.connectTimeout = timeout
		}
	}
}

// WithMinConns keeps the given number of idle connections open.
func WithMinConns(n int32) PoolOption {
	return func(o *poolOptions) {
		if n >= 0 {
			o.minConns = n
		}
	}
}

// NewPool parses the DSN, applies pool limits and verifies connectivity with a ping.
func NewPool(ctx context.Context, cfg config.PostgresConfig, opts ...PoolOption) (*pgxpool.Pool, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	options := poolOptions{connectTimeout: defaultConnectTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if options.minConns > 0 && options.minConns <= poolCfg.MaxConns {
		poolCfg.MinConns = options.minConns
	}
	poolCfg.MaxConnLifetime = defaultMaxConnLifetime
	poolCfg.MaxConnIdleTime = defaultMaxConnIdleTime
	poolCfg.HealthCheckPeriod = defaultHealthCheck

	connectCtx, cancel := context.WithTimeout(ctx, options.connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}
