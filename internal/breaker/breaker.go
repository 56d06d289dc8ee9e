// Package breaker guards resource keys with per-key circuit breakers layered
// over the retry orchestrator.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/fault"
	"github.com/vietddude/faultline/internal/metrics"
	"github.com/vietddude/faultline/internal/retry"
)

// Options configures one protected call. Zero fields take the defaults.
type Options struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	Retry            retry.Config
	// IsFailure decides whether a terminal fault counts against the circuit.
	IsFailure func(err *fault.Error) bool
}

// DefaultOptions provides the defaults.
var DefaultOptions = Options{
	FailureThreshold: 5,
	RecoveryTimeout:  60 * time.Second,
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultOptions.FailureThreshold
	}
	if o.RecoveryTimeout <= 0 {
		o.RecoveryTimeout = DefaultOptions.RecoveryTimeout
	}
	if o.IsFailure == nil {
		o.IsFailure = DefaultIsFailure
	}
	return o
}

// DefaultIsFailure counts every fault except caller mistakes, which say
// nothing about the health of the resource.
func DefaultIsFailure(err *fault.Error) bool {
	switch err.Kind() {
	case domain.KindValidation, domain.KindNotFound,
		domain.KindAuthentication, domain.KindAuthorization:
		return false
	default:
		return true
	}
}

type circuit struct {
	state   domain.CircuitState
	probing bool
}

// Breaker owns the circuit map. It is safe for concurrent use.
type Breaker struct {
	retrier *retry.Retrier
	sub     retry.Submitter
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	circuits map[string]*circuit
}

// Option customises a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// New creates a Breaker that runs admitted calls through r and submits
// open-circuit rejections to sub. Either may be nil.
func New(r *retry.Retrier, sub retry.Submitter, opts ...Option) *Breaker {
	if r == nil {
		r = retry.New(sub)
	}
	b := &Breaker{
		retrier:  r,
		sub:      sub,
		now:      time.Now,
		logger:   slog.Default(),
		circuits: make(map[string]*circuit),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs op under the circuit for key. Admitted calls go through the
// retry orchestrator; rejected calls never invoke op.
func Execute[T any](ctx context.Context, b *Breaker, key string, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var zero T
	probe, rejection := b.admit(key, opts)
	if rejection != nil {
		metrics.CircuitRejections.WithLabelValues(key).Inc()
		if b.sub != nil {
			b.sub.Submit(rejection)
		}
		return zero, rejection
	}
	if probe {
		defer func() {
			if r := recover(); r != nil {
				b.recordFailure(key, true, opts)
				panic(r)
			}
		}()
	}

	start := time.Now()
	v, err := retry.Execute(ctx, b.retrier, op, opts.Retry)
	if err != nil {
		metrics.OperationLatency.WithLabelValues(key, "failure").Observe(time.Since(start).Seconds())
		fe := fault.Normalize(err, nil)
		if opts.IsFailure(fe) {
			b.recordFailure(key, probe, opts)
		} else {
			// The resource answered; only the request was wrong.
			b.recordResponse(key, probe)
		}
		return zero, err
	}

	metrics.OperationLatency.WithLabelValues(key, "success").Observe(time.Since(start).Seconds())
	b.recordSuccess(key, probe)
	return v, nil
}

// admit decides whether a call may proceed. It reports whether the call is
// the half-open probe, or returns the rejection fault.
func (b *Breaker) admit(key string, opts Options) (probe bool, rejection *fault.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(key)
	switch c.state.Phase {
	case domain.PhaseClosed:
		return false, nil
	case domain.PhaseOpen:
		elapsed := b.now().Sub(c.state.LastFailureAt)
		if elapsed >= opts.RecoveryTimeout {
			b.transition(key, c, domain.PhaseHalfOpen)
			c.probing = true
			return true, nil
		}
		return false, openFault(key, c.state.Phase, opts.RecoveryTimeout-elapsed)
	default:
		if c.probing {
			return false, openFault(key, c.state.Phase, 0)
		}
		c.probing = true
		return true, nil
	}
}

// recordSuccess resets the circuit. A call admitted before the circuit
// opened cannot close it; Open is left only through the half-open probe.
func (b *Breaker) recordSuccess(key string, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(key)
	if c.state.Phase == domain.PhaseOpen && !probe {
		return
	}
	c.state.ConsecutiveFailures = 0
	c.state.LastFailureAt = time.Time{}
	if c.state.Phase != domain.PhaseClosed {
		c.probing = false
		b.transition(key, c, domain.PhaseClosed)
	}
}

func (b *Breaker) recordResponse(key string, probe bool) {
	if probe {
		b.recordSuccess(key, true)
	}
}

func (b *Breaker) recordFailure(key string, probe bool, opts Options) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(key)
	c.state.ConsecutiveFailures++
	c.state.LastFailureAt = b.now()

	switch {
	case probe && c.state.Phase == domain.PhaseHalfOpen:
		c.probing = false
		b.transition(key, c, domain.PhaseOpen)
	case c.state.Phase == domain.PhaseClosed && c.state.ConsecutiveFailures >= opts.FailureThreshold:
		b.transition(key, c, domain.PhaseOpen)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(key string, c *circuit, to domain.Phase) {
	from := c.state.Phase
	if from == to {
		return
	}
	c.state.Phase = to

	metrics.CircuitTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
	metrics.CircuitPhase.WithLabelValues(key).Set(float64(to))

	attrs := []any{
		"resource", key,
		"from", from.String(),
		"to", to.String(),
		"failures", c.state.ConsecutiveFailures,
	}
	if to == domain.PhaseOpen {
		b.logger.Warn("Circuit opened", attrs...)
	} else {
		b.logger.Info("Circuit state changed", attrs...)
	}
}

// get must be called with b.mu held.
func (b *Breaker) get(key string) *circuit {
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	return c
}

// State returns a copy of the state for key. Unknown keys read as a fresh
// closed circuit.
func (b *Breaker) State(key string) domain.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return domain.CircuitState{Phase: domain.PhaseClosed}
}

// Reset forgets the state for key, closing its circuit.
func (b *Breaker) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[key]; ok && c.state.Phase != domain.PhaseClosed {
		b.logger.Info("Circuit reset", "resource", key, "from", c.state.Phase.String())
	}
	delete(b.circuits, key)
	metrics.CircuitPhase.WithLabelValues(key).Set(float64(domain.PhaseClosed))
}

// Snapshot copies every tracked circuit.
func (b *Breaker) Snapshot() map[string]domain.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]domain.CircuitState, len(b.circuits))
	for k, c := range b.circuits {
		out[k] = c.state
	}
	return out
}

// Keys returns the tracked keys in sorted order.
func (b *Breaker) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.circuits))
	for k := range b.circuits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func openFault(key string, phase domain.Phase, retryAfter time.Duration) *fault.Error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return fault.New(domain.KindServerFault,
		fmt.Sprintf("circuit %s for %s", phase, key),
		fault.WithCode(fault.CodeCircuitOpen),
		fault.WithStatus(503),
		fault.WithContext(map[string]any{
			"resource":     key,
			"phase":        phase.String(),
			"retryAfterMs": retryAfter.Milliseconds(),
		}),
	)
}
