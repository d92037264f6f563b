package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures retry behavior with exponential backoff. The gateway
// layer owns retries; site adapters and the orchestrator never retry.
type Config struct {
	MaxRetries int           // maximum retry attempts after the first try
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on any single delay
	Multiplier float64       // exponential growth factor
	Jitter     bool          // randomize delays to avoid thundering herd
}

// DefaultConfig returns a retry configuration with sensible defaults for
// ticket-platform API calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do executes op with exponential backoff, retrying only errors that
// Retryable considers transient. It returns the last error when attempts are
// exhausted, or the context error on cancellation.
func Do(ctx context.Context, config Config, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !Retryable(lastErr) || attempt >= config.MaxRetries {
			return lastErr
		}

		delay := backoffDelay(config, attempt)
		log.Debug().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(lastErr).
			Msg("retrying platform call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func backoffDelay(config Config, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// Retryable reports whether an error looks like a transient platform or
// network failure worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	transient := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"no such host",
		"network unreachable",
		"broken pipe",
	}
	for _, t := range transient {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}
