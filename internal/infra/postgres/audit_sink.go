package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/metrics"
	"github.com/vietddude/faultline/internal/processor"
)

// AuditSink persists processed entries to the error_audit table.
type AuditSink struct {
	db *DB
}

// NewAuditSink creates an audit sink on db.
func NewAuditSink(db *DB) *AuditSink {
	return &AuditSink{db: db}
}

type auditRow struct {
	ID          string    `db:"id"`
	Severity    string    `db:"severity"`
	Category    string    `db:"category"`
	Kind        string    `db:"kind"`
	Code        string    `db:"code"`
	Status      int       `db:"status"`
	Message     string    `db:"message"`
	UserMessage string    `db:"user_message"`
	Details     []byte    `db:"details"`
	OccurredAt  time.Time `db:"occurred_at"`
}

const insertAudit = `
INSERT INTO error_audit (id, severity, category, kind, code, status, message, user_message, details, occurred_at)
VALUES (:id, :severity, :category, :kind, :code, :status, :message, :user_message, :details, :occurred_at)
ON CONFLICT (id) DO NOTHING`

// Log implements processor.LogSink.
func (s *AuditSink) Log(ctx context.Context, rec processor.Record) error {
	row, err := toRow(rec.Audit())
	if err != nil {
		metrics.AuditWrites.WithLabelValues("postgres", "error").Inc()
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, insertAudit, row); err != nil {
		metrics.AuditWrites.WithLabelValues("postgres", "error").Inc()
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	metrics.AuditWrites.WithLabelValues("postgres", "ok").Inc()
	return nil
}

// Recent returns up to n entries, newest first.
func (s *AuditSink) Recent(ctx context.Context, n int) ([]domain.AuditEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, severity, category, kind, code, status, message, user_message, details, occurred_at
		FROM error_audit
		ORDER BY occurred_at DESC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteOlderThan removes entries that occurred before cutoff.
func (s *AuditSink) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM error_audit WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit entries: %w", err)
	}
	return res.RowsAffected()
}

func toRow(e domain.AuditEntry) (auditRow, error) {
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return auditRow{}, fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = b
	}
	return auditRow{
		ID:          e.ID,
		Severity:    e.Severity.String(),
		Category:    e.Category,
		Kind:        e.Kind,
		Code:        e.Code,
		Status:      e.Status,
		Message:     e.Message,
		UserMessage: e.UserMessage,
		Details:     details,
		OccurredAt:  e.OccurredAt,
	}, nil
}

func fromRow(r auditRow) (domain.AuditEntry, error) {
	e := domain.AuditEntry{
		ID:          r.ID,
		Category:    r.Category,
		Kind:        r.Kind,
		Code:        r.Code,
		Status:      r.Status,
		Message:     r.Message,
		UserMessage: r.UserMessage,
		OccurredAt:  r.OccurredAt,
	}
	if err := e.Severity.UnmarshalText([]byte(r.Severity)); err != nil {
		return e, err
	}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &e.Details); err != nil {
			return e, fmt.Errorf("invalid audit details: %w", err)
		}
		if len(e.Details) == 0 {
			e.Details = nil
		}
	}
	return e, nil
}
