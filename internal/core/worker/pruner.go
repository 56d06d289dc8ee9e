package worker

import (
	"context"
	"log/slog"
	"time"
)

// AuditStore deletes audit entries older than a cutoff.
type AuditStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes old audit entries based on retention policy.
type Pruner struct {
	retention time.Duration
	store     AuditStore
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, store AuditStore) *Pruner {
	return &Pruner{
		retention: retention,
		store:     store,
		now:       time.Now,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)

	n, err := p.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune audit entries", "cutoff", cutoff, "error", err)
		return
	}
	if n > 0 {
		slog.Info("Pruned audit entries", "deleted", n, "cutoff", cutoff)
	}
}
