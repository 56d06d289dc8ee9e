// Package connectivity reports whether the process can currently reach the
// network. It backs the normalizer's offline heuristic and the processor's
// offline signal.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Probe reports connectivity.
type Probe interface {
	Online(ctx context.Context) bool
}

// Static is a Probe with a fixed, settable answer.
type Static struct {
	online atomic.Bool
}

// NewStatic creates a Static probe.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) Online(context.Context) bool { return s.online.Load() }

// Set changes the reported state.
func (s *Static) Set(online bool) { s.online.Store(online) }

// HTTPProbe issues a HEAD request to a well-known URL. Any HTTP response,
// whatever its status, counts as online. Results are cached for TTL so
// error storms do not turn into probe storms, and callers arriving while a
// check is in flight get the previous answer instead of waiting.
type HTTPProbe struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu        sync.Mutex
	checking  bool
	lastCheck time.Time
	lastValue bool
}

// NewHTTPProbe creates a probe against url.
func NewHTTPProbe(url string, timeout, ttl time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &HTTPProbe{
		url:       url,
		client:    &http.Client{Timeout: timeout},
		ttl:       ttl,
		lastValue: true,
	}
}

// Online returns the cached result or performs a fresh check. The check
// is bounded by ctx; a check cut short by ctx keeps the previous answer.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	p.mu.Lock()
	fresh := !p.lastCheck.IsZero() && time.Since(p.lastCheck) < p.ttl
	if fresh || p.checking {
		v := p.lastValue
		p.mu.Unlock()
		return v
	}
	p.checking = true
	p.mu.Unlock()

	online, conclusive := p.check(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.checking = false
	if conclusive {
		p.lastValue = online
		p.lastCheck = time.Now()
	}
	return p.lastValue
}

func (p *HTTPProbe) check(ctx context.Context) (online, conclusive bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		slog.Warn("Connectivity probe misconfigured", "url", p.url, "error", err)
		return true, true
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, false
		}
		slog.Debug("Connectivity probe failed", "url", p.url, "error", err)
		return false, true
	}
	_ = resp.Body.Close()
	return true, true
}
