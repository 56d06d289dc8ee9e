package domain

import "time"

// AuditEntry is the serialized form of a processed queue entry written to
// external audit sinks. The original cause is never included.
type AuditEntry struct {
	ID          string         `json:"id"`
	Severity    Severity       `json:"severity"`
	Category    string         `json:"category"`
	Kind        string         `json:"kind,omitempty"`
	Code        string         `json:"code,omitempty"`
	Status      int            `json:"status,omitempty"`
	Message     string         `json:"message"`
	UserMessage string         `json:"user_message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}
