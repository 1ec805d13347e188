// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *MemoryEventBus {
	t.Helper()
	bus := NewMemoryEventBus(MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestMemoryEventBus_PublishAssignsFields(t *testing.T) {
	bus := newTestBus(t)

	var received Event
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		received = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventInstanceCreated, Instance: "abc"}))

	assert.NotEmpty(t, received.ID)
	assert.False(t, received.Timestamp.IsZero())
	assert.Equal(t, "abc", received.Instance)
}

func TestMemoryEventBus_SubscribePattern(t *testing.T) {
	bus := newTestBus(t)

	var instanceEvents, processEvents int
	_, err := bus.Subscribe("instance.*", func(ctx context.Context, e Event) error {
		instanceEvents++
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(EventProcessExited, func(ctx context.Context, e Event) error {
		processEvents++
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: EventInstanceStarted})
	bus.Publish(ctx, Event{Type: EventInstanceStopped})
	bus.Publish(ctx, Event{Type: EventProcessExited})
	bus.Publish(ctx, Event{Type: EventProcessStarted})

	assert.Equal(t, 2, instanceEvents)
	assert.Equal(t, 1, processEvents)
}

func TestMemoryEventBus_SubscribeAsync(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan Event, 1)
	_, err := bus.SubscribeAsync("console.*", func(ctx context.Context, e Event) error {
		received <- e
		return nil
	}, 10)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventConsoleAlarm}))

	select {
	case e := <-received:
		assert.Equal(t, EventConsoleAlarm, e.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async event")
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := newTestBus(t)

	var count atomic.Int32
	id, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: EventHubShutdown})
	require.NoError(t, bus.Unsubscribe(id))
	bus.Publish(context.Background(), Event{Type: EventHubShutdown})

	assert.Equal(t, int32(1), count.Load())
	assert.ErrorIs(t, bus.Unsubscribe(id), ErrSubscriptionNotFound)
}

func TestMemoryEventBus_HandlerPanicAndError(t *testing.T) {
	bus := newTestBus(t)

	var reached bool
	bus.Subscribe("*", func(ctx context.Context, e Event) error { panic("boom") })
	bus.Subscribe("*", func(ctx context.Context, e Event) error { return errors.New("nope") })
	bus.Subscribe("*", func(ctx context.Context, e Event) error {
		reached = true
		return nil
	})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), Event{Type: EventInstanceDeleted})
	})
	assert.True(t, reached)
}

func TestMemoryEventBus_History(t *testing.T) {
	bus := newTestBus(t)

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: EventInstanceCreated, Instance: "a"})
	bus.Publish(ctx, Event{Type: EventInstanceCreated, Instance: "b"})

	events, err := bus.History(EventFilter{Instance: "b"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].Instance)
}

func TestMemoryEventBus_Closed(t *testing.T) {
	bus := NewMemoryEventBus(MemoryBusConfig{})
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: EventHubShutdown}), ErrBusClosed)
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)
}
