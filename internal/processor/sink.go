package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/fault"
)

// LevelCritical is the slog level used for ServerFault and BackendFault.
const LevelCritical = slog.LevelError + 4

// LogSink is the logging collaborator. Implementations are called from the
// drain loop, one entry at a time.
type LogSink interface {
	Log(ctx context.Context, rec Record) error
}

// Record is what a LogSink receives for each entry.
type Record struct {
	EntryID  string
	Severity domain.Severity
	Category string
	Message  string
	Fault    *fault.Error // nil for notices
	Details  map[string]any
	At       time.Time
}

func newRecord(e Entry) Record {
	rec := Record{EntryID: e.ID, At: e.EnqueuedAt}
	switch {
	case e.Err != nil:
		rec.Severity = e.Err.Severity()
		rec.Category = e.Err.Kind().String()
		rec.Message = e.Err.DeveloperMessage()
		rec.Fault = e.Err
		rec.Details = e.Err.Context()
	case e.Notice != nil:
		rec.Severity = domain.SeverityInfo
		rec.Category = e.Notice.Category
		rec.Message = e.Notice.Message
		rec.Details = e.Notice.Details
	}
	return rec
}

// Audit flattens the record for external sinks. The cause chain is left out.
func (r Record) Audit() domain.AuditEntry {
	entry := domain.AuditEntry{
		ID:         r.EntryID,
		Severity:   r.Severity,
		Category:   r.Category,
		Message:    r.Message,
		Details:    r.Details,
		OccurredAt: r.At,
	}
	if r.Fault != nil {
		entry.Kind = r.Fault.Kind().String()
		entry.Code = r.Fault.Code()
		entry.Status = r.Fault.Status()
		entry.UserMessage = r.Fault.UserMessage()
	}
	return entry
}

// SlogSink writes records to a slog.Logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing to logger (slog.Default() when nil).
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Log(ctx context.Context, rec Record) error {
	attrs := []any{"entry", rec.EntryID, "category", rec.Category}
	if rec.Fault != nil {
		attrs = append(attrs,
			"kind", rec.Fault.Kind().String(),
			"user_message", rec.Fault.UserMessage(),
		)
		if code := rec.Fault.Code(); code != "" {
			attrs = append(attrs, "code", code)
		}
		if status := rec.Fault.Status(); status != 0 {
			attrs = append(attrs, "status", status)
		}
		if cause := errors.Unwrap(rec.Fault); cause != nil {
			attrs = append(attrs, "cause", cause.Error())
		}
	}
	if len(rec.Details) > 0 {
		attrs = append(attrs, "details", rec.Details)
	}
	s.logger.Log(ctx, SlogLevel(rec.Severity), rec.Message, attrs...)
	return nil
}

// SlogLevel maps a severity onto a slog level.
func SlogLevel(s domain.Severity) slog.Level {
	switch s {
	case domain.SeverityInfo:
		return slog.LevelInfo
	case domain.SeverityWarn:
		return slog.LevelWarn
	case domain.SeverityCritical:
		return LevelCritical
	default:
		return slog.LevelError
	}
}
