package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Common errors
var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Config contains retry configuration
type Config struct {
	// MaxRetries is the maximum number of retry attempts (0 = initial attempt only)
	MaxRetries int
	// InitialInterval is the initial backoff interval
	InitialInterval time.Duration
	// MaxInterval caps the backoff interval
	MaxInterval time.Duration
	// Multiplier grows the interval after each retry
	Multiplier float64
	// JitterFactor adds ±N% random jitter to each interval
	JitterFactor float64
}

// DefaultConfig returns a small, bounded strategy suited to transient DB
// errors on the request path: 50ms, 100ms, 200ms.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError wraps an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retrier runs operations with exponential backoff
type Retrier struct {
	config *Config
}

// New creates a Retrier with the given configuration
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 50 * time.Millisecond
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retrier{config: config}
}

// Do runs op, retrying on failure until it succeeds, returns a permanent
// error, exhausts MaxRetries, or the context is done. The last error is
// returned wrapped so callers can still errors.Is/As against it.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.interval(attempt)):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
	}

	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}

func (r *Retrier) interval(attempt int) time.Duration {
	base := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if base > float64(r.config.MaxInterval) {
		base = float64(r.config.MaxInterval)
	}
	if r.config.JitterFactor > 0 {
		jitter := base * r.config.JitterFactor
		base = base - jitter + rand.Float64()*2*jitter
	}
	return time.Duration(base)
}
