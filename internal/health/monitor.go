package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

// CircuitSource exposes breaker state. *breaker.Breaker satisfies it.
type CircuitSource interface {
	Snapshot() map[string]domain.CircuitState
	Reset(key string)
}

// QueueSource exposes the error queue depth. *processor.Processor satisfies it.
type QueueSource interface {
	Len() int
}

// Checker pings a dependency.
type Checker func(ctx context.Context) error

// Monitor aggregates health status from the breaker, the error queue and
// any registered dependencies.
type Monitor struct {
	circuits      CircuitSource
	queue         QueueSource
	queueCritical int

	mu     sync.RWMutex
	checks map[string]Checker
}

// NewMonitor creates a new health monitor. A queue deeper than
// queueCritical reports critical; zero disables the check.
func NewMonitor(circuits CircuitSource, queue QueueSource, queueCritical int) *Monitor {
	return &Monitor{
		circuits:      circuits,
		queue:         queue,
		queueCritical: queueCritical,
		checks:        make(map[string]Checker),
	}
}

// AddCheck registers a dependency checker under name.
func (m *Monitor) AddCheck(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = c
}

// CheckHealth builds a report. Open or half-open circuits and failing
// dependencies degrade the system.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Circuits:     make(map[string]CircuitHealth),
	}

	if m.circuits != nil {
		for key, st := range m.circuits.Snapshot() {
			h := CircuitHealth{
				Resource:            key,
				Status:              StatusHealthy,
				Phase:               st.Phase,
				ConsecutiveFailures: st.ConsecutiveFailures,
			}
			if !st.LastFailureAt.IsZero() {
				at := st.LastFailureAt
				h.LastFailureAt = &at
			}
			if st.Phase != domain.PhaseClosed {
				h.Status = StatusDegraded
			}
			report.Circuits[key] = h
			report.SystemStatus = worst(report.SystemStatus, h.Status)
		}
	}

	if m.queue != nil {
		report.QueueDepth = m.queue.Len()
		if m.queueCritical > 0 && report.QueueDepth > m.queueCritical {
			report.SystemStatus = StatusCritical
		}
	}

	m.mu.RLock()
	checks := make(map[string]Checker, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	m.mu.RUnlock()

	if len(checks) > 0 {
		report.Dependencies = make(map[string]DependencyHealth, len(checks))
		for name, check := range checks {
			cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := check(cctx)
			cancel()

			dep := DependencyHealth{Status: StatusHealthy}
			if err != nil {
				dep = DependencyHealth{Status: StatusDegraded, Error: err.Error()}
			}
			report.Dependencies[name] = dep
			report.SystemStatus = worst(report.SystemStatus, dep.Status)
		}
	}

	return report
}

// Reset closes the circuit for key.
func (m *Monitor) Reset(key string) {
	if m.circuits != nil {
		m.circuits.Reset(key)
	}
}

// Circuits returns the raw breaker snapshot.
func (m *Monitor) Circuits() map[string]domain.CircuitState {
	if m.circuits == nil {
		return map[string]domain.CircuitState{}
	}
	return m.circuits.Snapshot()
}

func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
