// Package events is the in-process publish/subscribe channel used to
// broadcast fault notifications and recovery signals to UI collaborators.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Topic names a broadcast channel.
type Topic string

const (
	// TopicError carries one notification per processed fault.
	TopicError Topic = "app:error"
	// TopicOffline is raised when a network fault coincides with lost connectivity.
	TopicOffline Topic = "app:offline"
	// TopicRedirectLogin asks the session collaborator to send the user to sign in.
	TopicRedirectLogin Topic = "app:redirect-login"
)

// Event is delivered to subscribers.
type Event struct {
	Topic        Topic
	Notification domain.Notification
	At           time.Time
}

// Handler consumes events. A returned error is reported to the publisher.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers h for topic and returns a func that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber of ev.Topic. A failing or
// panicking subscriber does not prevent delivery to the others; their
// errors are joined.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[ev.Topic]...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := deliver(ctx, s.handler, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func deliver(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber for %s panicked: %v", ev.Topic, r)
		}
	}()
	return h(ctx, ev)
}
