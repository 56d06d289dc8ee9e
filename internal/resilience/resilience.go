// Package resilience is the entry point application code uses. A Service
// bundles the normalizer, the error processor, the retry orchestrator and
// the circuit breaker so they share one queue and one circuit map.
package resilience

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vietddude/faultline/internal/breaker"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/events"
	"github.com/vietddude/faultline/internal/fault"
	"github.com/vietddude/faultline/internal/processor"
	"github.com/vietddude/faultline/internal/retry"
)

// Options wires a Service.
type Options struct {
	Processor    processor.Config
	Sinks        []processor.LogSink
	Bus          *events.Bus
	Connectivity fault.ConnectivityChecker
	Logger       *slog.Logger

	// Test hooks.
	Sleeper retry.Sleeper
	Clock   breaker.Option
}

// Service owns the process-wide resilience state.
type Service struct {
	normalizer fault.Normalizer
	processor  *processor.Processor
	retrier    *retry.Retrier
	breaker    *breaker.Breaker
	bus        *events.Bus
}

// New builds a Service. A nil Bus gets a fresh one.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}

	procOpts := []processor.Option{
		processor.WithPublisher(opts.Bus),
		processor.WithFallbackLogger(opts.Logger),
	}
	if len(opts.Sinks) > 0 {
		procOpts = append(procOpts, processor.WithSinks(opts.Sinks...))
	} else {
		procOpts = append(procOpts, processor.WithSinks(processor.NewSlogSink(opts.Logger)))
	}
	if opts.Connectivity != nil {
		procOpts = append(procOpts, processor.WithConnectivity(opts.Connectivity))
	}
	proc := processor.New(opts.Processor, procOpts...)

	normalizer := fault.Normalizer{Connectivity: opts.Connectivity}
	retryOpts := []retry.Option{retry.WithNormalizer(normalizer), retry.WithLogger(opts.Logger)}
	if opts.Sleeper != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(opts.Sleeper))
	}
	retrier := retry.New(proc, retryOpts...)

	breakerOpts := []breaker.Option{breaker.WithLogger(opts.Logger)}
	if opts.Clock != nil {
		breakerOpts = append(breakerOpts, opts.Clock)
	}

	return &Service{
		normalizer: normalizer,
		processor:  proc,
		retrier:    retrier,
		breaker:    breaker.New(retrier, proc, breakerOpts...),
		bus:        opts.Bus,
	}
}

// Normalize maps raw onto the fault taxonomy without submitting it.
func (s *Service) Normalize(raw error, ctx map[string]any) *fault.Error {
	return s.normalizer.Normalize(raw, ctx)
}

// SubmitError normalizes raw, queues it for processing and returns the
// normalized fault. It never blocks on side effects.
func (s *Service) SubmitError(raw error, ctx map[string]any) *fault.Error {
	fe := s.normalizer.Normalize(raw, ctx)
	s.processor.Submit(fe)
	return fe
}

// GetCircuitState returns the breaker state for key.
func (s *Service) GetCircuitState(key string) domain.CircuitState {
	return s.breaker.State(key)
}

// ResetCircuit closes the circuit for key.
func (s *Service) ResetCircuit(key string) {
	s.breaker.Reset(key)
}

// Circuits returns every tracked circuit.
func (s *Service) Circuits() map[string]domain.CircuitState {
	return s.breaker.Snapshot()
}

// Bus is the notification channel UI code subscribes to.
func (s *Service) Bus() *events.Bus { return s.bus }

// Processor exposes the error queue.
func (s *Service) Processor() *processor.Processor { return s.processor }

// Breaker exposes the circuit map.
func (s *Service) Breaker() *breaker.Breaker { return s.breaker }

// Retrier exposes the retry orchestrator.
func (s *Service) Retrier() *retry.Retrier { return s.retrier }

// Close drains the error queue.
func (s *Service) Close(ctx context.Context) error {
	return s.processor.Close(ctx)
}

// ExecuteWithRetry runs op with exponential backoff.
func ExecuteWithRetry[T any](ctx context.Context, s *Service, op func(ctx context.Context) (T, error), cfg retry.Config) (T, error) {
	return retry.Execute(ctx, s.retrier, op, cfg)
}

// ExecuteWithCircuitBreaker runs op behind the circuit for key, with retries.
func ExecuteWithCircuitBreaker[T any](ctx context.Context, s *Service, key string, op func(ctx context.Context) (T, error), opts breaker.Options) (T, error) {
	return breaker.Execute(ctx, s.breaker, key, op, opts)
}

var (
	defaultMu  sync.RWMutex
	defaultSvc *Service
)

// Default returns the process-wide Service, creating one with default
// options on first use.
func Default() *Service {
	defaultMu.RLock()
	s := defaultSvc
	defaultMu.RUnlock()
	if s != nil {
		return s
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSvc == nil {
		defaultSvc = New(Options{})
	}
	return defaultSvc
}

// SetDefault replaces the process-wide Service and returns the previous one.
func SetDefault(s *Service) *Service {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultSvc
	defaultSvc = s
	return prev
}
