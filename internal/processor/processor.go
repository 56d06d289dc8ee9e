// Package processor implements the process-wide error event pipeline.
//
// Faults are appended to a FIFO queue and drained by a single goroutine.
// Each entry's side effects (logging, UI broadcast, recovery) complete
// before the next entry starts, so log order matches submission order and
// recovery actions never interleave. Submit never blocks on side effects.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/events"
	"github.com/vietddude/faultline/internal/fault"
	"github.com/vietddude/faultline/internal/metrics"
)

// Publisher broadcasts notification events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// ConnectivityChecker reports whether the runtime is online.
type ConnectivityChecker interface {
	Online(ctx context.Context) bool
}

// Notice is an informational entry: logged, never broadcast.
type Notice struct {
	Category string
	Message  string
	Details  map[string]any
}

// Entry is one queued item. Exactly one of Err and Notice is set.
type Entry struct {
	ID         string
	EnqueuedAt time.Time
	Err        *fault.Error
	Notice     *Notice
}

// Config holds processor settings.
type Config struct {
	// Name labels this processor's metrics.
	Name              string
	RedirectDelay     time.Duration
	SideEffectTimeout time.Duration
}

// DefaultConfig returns the processor defaults.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		RedirectDelay:     1500 * time.Millisecond,
		SideEffectTimeout: 10 * time.Second,
	}
}

// Option customises a Processor.
type Option func(*Processor)

// WithSinks sets the logging collaborators, called in order for every entry.
func WithSinks(sinks ...LogSink) Option {
	return func(p *Processor) { p.sinks = sinks }
}

// WithPublisher sets the notification channel.
func WithPublisher(pub Publisher) Option {
	return func(p *Processor) { p.pub = pub }
}

// WithConnectivity sets the probe consulted for network faults.
func WithConnectivity(c ConnectivityChecker) Option {
	return func(p *Processor) { p.connectivity = c }
}

// WithFallbackLogger sets where failing side effects are reported.
func WithFallbackLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.fallback = l }
}

// WithScheduler replaces time.AfterFunc for delayed recovery actions.
func WithScheduler(schedule func(d time.Duration, f func())) Option {
	return func(p *Processor) { p.schedule = schedule }
}

// Processor owns the error queue and its drain loop.
type Processor struct {
	cfg          Config
	sinks        []LogSink
	pub          Publisher
	connectivity ConnectivityChecker
	fallback     *slog.Logger
	schedule     func(d time.Duration, f func())
	depth        prometheus.Gauge

	mu       sync.Mutex
	queue    []Entry
	draining bool
	closed   bool
	idle     chan struct{}

	redirectPending atomic.Bool
}

// New creates a processor. Without sinks it logs through slog.Default().
func New(cfg Config, opts ...Option) *Processor {
	def := DefaultConfig()
	if cfg.RedirectDelay <= 0 {
		cfg.RedirectDelay = def.RedirectDelay
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = def.SideEffectTimeout
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}

	p := &Processor{
		cfg:      cfg,
		depth:    metrics.ErrorQueueDepth.WithLabelValues(cfg.Name),
		fallback: slog.Default(),
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.sinks) == 0 {
		p.sinks = []LogSink{NewSlogSink(slog.Default())}
	}
	return p
}

// Submit enqueues a normalized fault. It returns immediately.
func (p *Processor) Submit(err *fault.Error) {
	if err == nil {
		return
	}
	p.enqueue(Entry{Err: err})
}

// Notice enqueues an informational event, such as a recovered retry.
func (p *Processor) Notice(category, message string, details map[string]any) {
	p.enqueue(Entry{Notice: &Notice{Category: category, Message: message, Details: details}})
}

func (p *Processor) enqueue(e Entry) {
	e.ID = uuid.NewString()
	e.EnqueuedAt = time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.fallback.Warn("Error processor closed, dropping entry", "entry", e.ID, "error", describe(e))
		return
	}
	p.queue = append(p.queue, e)
	p.depth.Set(float64(len(p.queue)))

	// The flag is checked and set in the same critical section, so at most
	// one drain goroutine exists.
	start := !p.draining
	if start {
		p.draining = true
		p.idle = make(chan struct{})
	}
	p.mu.Unlock()

	if start {
		go p.drain()
	}
}

// Len returns the number of entries waiting to be processed.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Flush blocks until the queue is empty and no drain is running.
func (p *Processor) Flush(ctx context.Context) error {
	for {
		p.mu.Lock()
		if !p.draining {
			p.mu.Unlock()
			return nil
		}
		idle := p.idle
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("flush error queue: %w", ctx.Err())
		case <-idle:
		}
	}
}

// Close flushes pending entries and rejects later submissions.
func (p *Processor) Close(ctx context.Context) error {
	err := p.Flush(ctx)
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return err
}

func (p *Processor) drain() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.draining = false
			close(p.idle)
			p.depth.Set(0)
			p.mu.Unlock()
			return
		}
		entry := p.queue[0]
		p.queue[0] = Entry{}
		p.queue = p.queue[1:]
		p.depth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		p.process(entry)
	}
}

func (p *Processor) process(e Entry) {
	rec := newRecord(e)
	p.step(e, "log", func(ctx context.Context) error { return p.log(ctx, rec) })

	if e.Err == nil {
		return
	}
	metrics.ErrorsProcessed.WithLabelValues(e.Err.Kind().String(), rec.Severity.String()).Inc()

	p.step(e, "notify", func(ctx context.Context) error {
		if p.pub == nil {
			return nil
		}
		return p.pub.Publish(ctx, events.Event{
			Topic:        events.TopicError,
			Notification: e.Err.Notification(),
		})
	})
	p.step(e, "recover", func(ctx context.Context) error { return p.runRecovery(ctx, e.Err) })
}

// step runs one side effect. Errors and panics are reported to the
// fallback logger and never escape the drain loop.
func (p *Processor) step(e Entry, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SideEffectTimeout)
	defer cancel()

	if err := safely(ctx, fn); err != nil {
		metrics.SideEffectFailures.WithLabelValues(name).Inc()
		p.fallback.Error("Error side effect failed",
			"step", name,
			"entry", e.ID,
			"fault", describe(e),
			"error", err,
		)
	}
}

func (p *Processor) log(ctx context.Context, rec Record) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := safely(ctx, func(ctx context.Context) error { return sink.Log(ctx, rec) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) runRecovery(ctx context.Context, fe *fault.Error) error {
	switch fe.Kind() {
	case domain.KindAuthentication:
		if fe.Status() == 401 {
			p.scheduleRedirect(fe)
		}
	case domain.KindNetwork:
		if p.connectivity != nil && p.pub != nil && !p.connectivity.Online(ctx) {
			return p.pub.Publish(ctx, events.Event{
				Topic:        events.TopicOffline,
				Notification: fe.Notification(),
			})
		}
	}
	return nil
}

// scheduleRedirect arms a single delayed redirect; further 401s arriving
// while one is pending are absorbed.
func (p *Processor) scheduleRedirect(fe *fault.Error) {
	if p.pub == nil || !p.redirectPending.CompareAndSwap(false, true) {
		return
	}
	n := fe.Notification()
	p.schedule(p.cfg.RedirectDelay, func() {
		defer p.redirectPending.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SideEffectTimeout)
		defer cancel()
		err := safely(ctx, func(ctx context.Context) error {
			return p.pub.Publish(ctx, events.Event{Topic: events.TopicRedirectLogin, Notification: n})
		})
		if err != nil {
			metrics.SideEffectFailures.WithLabelValues("redirect").Inc()
			p.fallback.Error("Redirect to login failed", "error", err)
		}
	})
}

func safely(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func describe(e Entry) string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Notice != nil {
		return e.Notice.Message
	}
	return ""
}
