package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/events"
)

// Mirror republishes bus events on a Redis channel so other processes (a
// dashboard, a second UI shell) see the same notifications.
type Mirror struct {
	client *Client
	unsubs []func()
}

type mirroredEvent struct {
	Topic events.Topic `json:"topic"`
	domain.Notification
	At time.Time `json:"at"`
}

// NewMirror creates a mirror on client.
func NewMirror(client *Client) *Mirror {
	return &Mirror{client: client}
}

// Attach subscribes the mirror to every notification topic on bus.
func (m *Mirror) Attach(bus *events.Bus) {
	for _, topic := range []events.Topic{events.TopicError, events.TopicOffline, events.TopicRedirectLogin} {
		m.unsubs = append(m.unsubs, bus.Subscribe(topic, m.handle))
	}
	slog.Info("Mirroring notifications to redis", "channel", m.client.cfg.Channel)
}

// Detach removes the bus subscriptions.
func (m *Mirror) Detach() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

func (m *Mirror) handle(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(mirroredEvent{
		Topic:        ev.Topic,
		Notification: ev.Notification,
		At:           ev.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := m.client.rdb.Publish(ctx, m.client.cfg.Channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
