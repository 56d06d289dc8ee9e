// Package health provides system health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// CircuitHealth contains the breaker view of one resource key.
type CircuitHealth struct {
	Resource            string       `json:"resource"`
	Status              SystemStatus `json:"status"`
	Phase               domain.Phase `json:"phase"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
}

// DependencyHealth is the result of pinging an optional backing service.
type DependencyHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                `json:"system_status"`
	QueueDepth   int                         `json:"queue_depth"`
	Circuits     map[string]CircuitHealth    `json:"circuits"`
	Dependencies map[string]DependencyHealth `json:"dependencies,omitempty"`
}
