package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/metrics"
	"github.com/vietddude/faultline/internal/processor"
)

// AuditSink keeps the most recent processed entries in a capped Redis list,
// newest first.
type AuditSink struct {
	client *Client
}

// NewAuditSink creates an audit sink on client.
func NewAuditSink(client *Client) *AuditSink {
	return &AuditSink{client: client}
}

// Log implements processor.LogSink.
func (s *AuditSink) Log(ctx context.Context, rec processor.Record) error {
	payload, err := json.Marshal(rec.Audit())
	if err != nil {
		metrics.AuditWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	key := s.client.cfg.AuditKey
	_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, s.client.cfg.AuditMaxLen-1)
		return nil
	})
	if err != nil {
		metrics.AuditWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	metrics.AuditWrites.WithLabelValues("redis", "ok").Inc()
	return nil
}

// Recent returns up to n entries, newest first.
func (s *AuditSink) Recent(ctx context.Context, n int) ([]domain.AuditEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.rdb.LRange(ctx, s.client.cfg.AuditKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(raw))
	for _, item := range raw {
		var e domain.AuditEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("invalid audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
