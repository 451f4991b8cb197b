package gstsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ReconnectConfig configures exponential backoff reconnection.
type ReconnectConfig struct {
	MaxRetries    int           // Maximum consecutive failed attempts (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Retry delay cap (default: 30 seconds)
}

// DefaultReconnectConfig returns the default reconnection configuration.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	d := DefaultReconnectConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = d.MaxRetryDelay
	}
	return c
}

// reconnectState tracks consecutive failures. The session function resets
// it once the pipeline reaches PLAYING.
type reconnectState struct {
	currentRetries atomic.Int32
	reconnects     atomic.Uint32
}

func (s *reconnectState) reset() {
	if s.currentRetries.Swap(0) != 0 {
		slog.Debug("gstsource: reconnect state reset")
	}
}

// sessionFunc runs one pipeline session. It returns nil on graceful
// shutdown and an error when the pipeline fails.
type sessionFunc func(ctx context.Context) error

// runWithReconnect runs fn until it returns nil or ctx is cancelled,
// retrying failures with exponential backoff:
//
//	attempt 1: 1s, 2: 2s, 3: 4s, 4: 8s, 5: 16s, then give up
//
// A session that reached PLAYING resets the retry count, so only consecutive
// failures count toward MaxRetries.
func runWithReconnect(ctx context.Context, fn sessionFunc, cfg ReconnectConfig, state *reconnectState) error {
	for {
		if ctx.Err() != nil {
			slog.Info("gstsource: context cancelled, stopping reconnection")
			return ctx.Err()
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Error("gstsource: pipeline session failed", "error", err)

		attempt := int(state.currentRetries.Add(1))
		state.reconnects.Add(1)

		if attempt > cfg.MaxRetries {
			return fmt.Errorf("gstsource: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(attempt, cfg)
		slog.Warn("gstsource: retrying pipeline",
			"attempt", attempt,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			slog.Info("gstsource: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at maxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
