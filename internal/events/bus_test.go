package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/core/domain"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(TopicError, func(_ context.Context, ev Event) error {
		got = append(got, "toast:"+ev.Notification.UserMessage)
		return nil
	})
	bus.Subscribe(TopicError, func(_ context.Context, ev Event) error {
		got = append(got, "banner:"+ev.Notification.UserMessage)
		return nil
	})
	bus.Subscribe(TopicOffline, func(context.Context, Event) error {
		got = append(got, "offline")
		return nil
	})

	err := bus.Publish(context.Background(), Event{
		Topic:        TopicError,
		Notification: domain.Notification{Kind: domain.KindNetwork, UserMessage: "down"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"toast:down", "banner:down"}, got)
}

func TestBus_IsolatesFailingSubscribers(t *testing.T) {
	bus := NewBus()
	delivered := 0

	bus.Subscribe(TopicError, func(context.Context, Event) error { panic("render failed") })
	bus.Subscribe(TopicError, func(context.Context, Event) error { return errors.New("closed") })
	bus.Subscribe(TopicError, func(context.Context, Event) error {
		delivered++
		return nil
	})

	err := bus.Publish(context.Background(), Event{Topic: TopicError})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: render failed")
	assert.Contains(t, err.Error(), "closed")
	assert.Equal(t, 1, delivered)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe(TopicRedirectLogin, func(context.Context, Event) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, bus.Subscribers(TopicRedirectLogin))

	unsubscribe()
	unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicRedirectLogin}))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.Subscribers(TopicRedirectLogin))
}

func TestBus_StampsTime(t *testing.T) {
	bus := NewBus()
	var at Event
	bus.Subscribe(TopicOffline, func(_ context.Context, ev Event) error {
		at = ev
		return nil
	})
	require.NoError(t, bus.Publish(context.Background(), Event{Topic: TopicOffline}))
	assert.False(t, at.At.IsZero())
}
