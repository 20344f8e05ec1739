package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apipager_retries_total",
		Help: "Total number of retry attempts by stage",
	}, []string{"stage"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apipager_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by stage",
	}, []string{"stage"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// Delay is the pause between attempts. Zero retries immediately.
	Delay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       0,
	}
}

// retryFixed executes fn up to MaxAttempts times while it fails with a
// retryable error. The returned error wraps ErrRetryExhausted and the last
// failure once the budget is spent.
func retryFixed(ctx context.Context, cfg RetryConfig, stage Stage, logger zerolog.Logger, fn func(attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("stage", string(stage)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(stage)).Inc()
		logger.Warn().
			Err(err).
			Str("stage", string(stage)).
			Int("attempt", attempt).
			Dur("delay", cfg.Delay).
			Msg("Retrying request")

		if cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			case <-time.After(cfg.Delay):
			}
		}
	}

	retryExhaustedTotal.WithLabelValues(string(stage)).Inc()
	logger.Error().
		Str("stage", string(stage)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
