// Package retry runs fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/fault"
	"github.com/vietddude/faultline/internal/metrics"
)

// Submitter receives terminal faults and recovery notices.
// *processor.Processor satisfies it.
type Submitter interface {
	Submit(err *fault.Error)
	Notice(category, message string, details map[string]any)
}

// Config defines retry behavior. Zero fields take the defaults.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// RetryCondition decides whether a failed attempt is retried.
	RetryCondition func(err *fault.Error) bool
	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, err *fault.Error, delay time.Duration)
	// Context is attached to faults normalized from failed attempts.
	Context map[string]any
}

// DefaultConfig provides the defaults.
var DefaultConfig = Config{
	MaxAttempts:   3,
	BaseDelay:     1 * time.Second,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultConfig.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = DefaultConfig.BackoffFactor
	}
	if c.RetryCondition == nil {
		c.RetryCondition = DefaultRetryCondition
	}
	return c
}

// DefaultRetryCondition retries network faults and server-side faults that
// look transient (no status, timeout, rate limit or 5xx). Open-circuit
// rejections are never retried.
func DefaultRetryCondition(err *fault.Error) bool {
	if err.Code() == fault.CodeCircuitOpen {
		return false
	}
	switch err.Kind() {
	case domain.KindNetwork:
		return true
	case domain.KindServerFault, domain.KindBackendFault:
		s := err.Status()
		return s == 0 || s == 408 || s == 429 || s >= 500
	default:
		return false
	}
}

// Backoff returns the wait before the attempt following attempt (1-based):
// min(BaseDelay * BackoffFactor^(attempt-1), MaxDelay).
func Backoff(attempt int, cfg Config) time.Duration {
	cfg = cfg.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return cfg.MaxDelay
	}
	return time.Duration(delay)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier carries the collaborators shared by every Execute call.
type Retrier struct {
	sub        Submitter
	normalizer fault.Normalizer
	sleep      Sleeper
	logger     *slog.Logger
}

// Option customises a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the context-aware timer wait.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithNormalizer sets the normalizer used for failed attempts.
func WithNormalizer(n fault.Normalizer) Option {
	return func(r *Retrier) { r.normalizer = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retrier) { r.logger = l }
}

// New creates a Retrier. sub may be nil, in which case faults are only
// returned.
func New(sub Submitter, opts ...Option) *Retrier {
	r := &Retrier{
		sub:    sub,
		sleep:  sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute calls op until it succeeds, the condition rejects the fault, or
// MaxAttempts is reached. The terminal fault is submitted and returned as a
// *fault.Error.
func Execute[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error), cfg Config) (T, error) {
	if r == nil {
		r = New(nil)
	}
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				metrics.RetryAttempts.WithLabelValues("recovered").Inc()
				r.notice(fmt.Sprintf("recovered after %d attempts", attempt), map[string]any{"attempts": attempt})
			} else {
				metrics.RetryAttempts.WithLabelValues("success").Inc()
			}
			return v, nil
		}

		fe := r.normalizer.NormalizeContext(ctx, err, cfg.Context)
		if attempt >= cfg.MaxAttempts {
			metrics.RetryAttempts.WithLabelValues("exhausted").Inc()
			return zero, r.fail(fe)
		}
		if !cfg.RetryCondition(fe) {
			metrics.RetryAttempts.WithLabelValues("not_retryable").Inc()
			return zero, r.fail(fe)
		}

		delay := Backoff(attempt, cfg)
		metrics.RetryAttempts.WithLabelValues("retry").Inc()
		metrics.RetryBackoff.Observe(delay.Seconds())
		r.logger.Debug("Retrying operation",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"kind", fe.Kind().String(),
			"error", fe.DeveloperMessage(),
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, fe, delay)
		}

		if err := r.sleep(ctx, delay); err != nil {
			metrics.RetryAttempts.WithLabelValues("cancelled").Inc()
			return zero, r.fail(fe)
		}
	}
}

func (r *Retrier) fail(fe *fault.Error) error {
	if r.sub != nil {
		r.sub.Submit(fe)
	}
	return fe
}

func (r *Retrier) notice(msg string, details map[string]any) {
	if r.sub != nil {
		r.sub.Notice("retry", msg, details)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
