package pgx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config describes how to reach the database.
type Config struct {
	ConnString string `mapstructure:"connString"`
	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	// Retries is the number of attempts after the first one.
	Retries uint64        `mapstructure:"retries"`
	Tunnel  *TunnelConfig `mapstructure:"tunnel"`
}

// Handle owns a pool and, when the database is reached over SSH, the tunnel
// under it.
type Handle struct {
	Pool   *pgxpool.Pool
	tunnel io.Closer
}

// Close closes the pool, then the tunnel. Both are attempted.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	var errs []error
	if h.Pool != nil {
		h.Pool.Close()
	}
	if h.tunnel != nil {
		if err := h.tunnel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tunnel: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Connect opens a pool and pings it, retrying with exponential backoff. With
// a tunnel configured, the SSH connection is opened first and every database
// connection is dialed through it.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Handle, error) {
	if logger == nil {
		logger = zap.L()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	h := &Handle{}
	if cfg.Tunnel != nil && cfg.Tunnel.Host != "" {
		tun, err := OpenTunnel(*cfg.Tunnel, logger)
		if err != nil {
			return nil, err
		}
		h.tunnel = tun
		poolCfg.ConnConfig.DialFunc = tun.DialContext
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	attempt := 0
	op := func() error {
		attempt++
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating pool: %w", err))
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return fmt.Errorf("ping connection: %w", err)
		}
		h.Pool = pool
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("database not ready", zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.Retries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, errors.Join(err, h.Close())
	}
	logger.Info("connected to database", zap.Int("attempts", attempt), zap.Bool("tunnel", h.tunnel != nil))
	return h, nil
}
