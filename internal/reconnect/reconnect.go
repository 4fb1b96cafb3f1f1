// Package reconnect retries a connect function with exponential backoff.
package reconnect

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Config contains configuration for exponential backoff reconnection
type Config struct {
	MaxRetries    int           // Maximum number of reconnection attempts (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)

	// Wait blocks for d or until ctx is done. Nil uses a timer.
	Wait func(ctx context.Context, d time.Duration) error
	// Logger receives attempt logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns default reconnection configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks the current state of reconnection attempts
type State struct {
	CurrentRetries int
	Reconnects     atomic.Uint32 // Total reconnection attempts over the state's lifetime
}

// ConnectFunc attempts to establish a connection
type ConnectFunc func(ctx context.Context) error

// Run executes connectFn with exponential backoff retry logic
//
// The first attempt runs immediately. On failure it waits
// RetryDelay * 2^(attempt-1), capped at MaxRetryDelay, and tries again.
// With default config: 1s, 2s, 4s, 8s, 16s, then gives up.
//
// Returns nil on the first successful attempt, an error once MaxRetries
// failures are exceeded, or ctx.Err() if cancelled.
func Run(ctx context.Context, connectFn ConnectFunc, cfg Config, state *State) error {
	wait := cfg.Wait
	if wait == nil {
		wait = timerWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := connectFn(ctx)
		if err == nil {
			state.CurrentRetries = 0
			logger.Info("reconnect: connection established")
			return nil
		}

		logger.Error("reconnect: connection failed", "error", err)

		state.CurrentRetries++
		state.Reconnects.Add(1)

		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("reconnect: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := Backoff(state.CurrentRetries, cfg)

		logger.Warn("reconnect: retrying connection",
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		if err := wait(ctx, delay); err != nil {
			logger.Info("reconnect: context cancelled during backoff")
			return err
		}
	}
}

// Backoff calculates the exponential backoff delay for a given attempt
//
// Formula: delay = retryDelay * 2^(attempt-1), capped at maxRetryDelay.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Beyond 2^30 the multiplication overflows; the cap applies long before.
	if attempt > 31 {
		return cfg.MaxRetryDelay
	}

	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}

func timerWait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
