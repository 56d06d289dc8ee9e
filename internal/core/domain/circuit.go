package domain

import (
	"fmt"
	"time"
)

// Phase is the state of a circuit breaker for a single resource key.
type Phase int

const (
	PhaseClosed Phase = iota
	PhaseOpen
	PhaseHalfOpen
)

func (p Phase) String() string {
	switch p {
	case PhaseClosed:
		return "closed"
	case PhaseOpen:
		return "open"
	case PhaseHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "closed":
		*p = PhaseClosed
	case "open":
		*p = PhaseOpen
	case "half_open":
		*p = PhaseHalfOpen
	default:
		return fmt.Errorf("unknown circuit phase %q", b)
	}
	return nil
}

// CircuitState is a read-only view of one resource key's breaker state.
type CircuitState struct {
	Phase               Phase     `json:"phase"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at"` // zero when no failure recorded
}
