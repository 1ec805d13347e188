// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(maxEvents int, maxAge time.Duration) *EventHistory {
	return NewEventHistory(EventHistoryConfig{MaxEvents: maxEvents, MaxAge: maxAge})
}

func TestEventHistory_MaxEvents(t *testing.T) {
	history := newTestHistory(5, time.Hour)
	defer history.Close()

	now := time.Now()
	for i := 0; i < 10; i++ {
		history.Add(Event{ID: fmt.Sprint(i), Type: EventProcessStarted, Timestamp: now.Add(time.Duration(i) * time.Millisecond)})
	}

	events, err := history.Query(EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "5", events[0].ID)
	assert.Equal(t, "9", events[4].ID)
}

func TestEventHistory_QueryFilters(t *testing.T) {
	history := newTestHistory(100, time.Hour)
	defer history.Close()

	base := time.Now().Add(-time.Minute)
	history.Add(Event{ID: "1", Type: EventInstanceCreated, Instance: "a", Timestamp: base})
	history.Add(Event{ID: "2", Type: EventProcessStarted, Instance: "a", Timestamp: base.Add(time.Second)})
	history.Add(Event{ID: "3", Type: EventProcessStarted, Instance: "b", Timestamp: base.Add(2 * time.Second)})
	history.Add(Event{ID: "4", Type: EventHubShutdown, Timestamp: base.Add(3 * time.Second)})

	ids := func(filter EventFilter) []string {
		events, err := history.Query(filter)
		require.NoError(t, err)
		var out []string
		for _, e := range events {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []string{"2", "3"}, ids(EventFilter{Types: []string{"process.*"}}))
	assert.Equal(t, []string{"1", "2"}, ids(EventFilter{Instance: "a"}))
	assert.Equal(t, []string{"3", "4"}, ids(EventFilter{Since: base.Add(1500 * time.Millisecond)}))
	assert.Equal(t, []string{"1"}, ids(EventFilter{Until: base.Add(500 * time.Millisecond)}))
	assert.Equal(t, []string{"4"}, ids(EventFilter{Limit: 1}))
}

func TestEventHistory_Prune(t *testing.T) {
	history := newTestHistory(100, time.Minute)
	defer history.Close()

	history.Add(Event{ID: "old", Type: EventProcessExited, Timestamp: time.Now().Add(-time.Hour)})
	history.Add(Event{ID: "new", Type: EventProcessExited, Timestamp: time.Now()})

	require.NoError(t, history.Prune())

	events, err := history.Query(EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].ID)
}

func TestEventHistory_MaxPerInstance(t *testing.T) {
	history := NewEventHistory(EventHistoryConfig{MaxEvents: 100, MaxAge: time.Hour, MaxPerInstance: 3})
	defer history.Close()

	now := time.Now()
	history.Add(Event{ID: "quiet", Type: EventInstanceCreated, Instance: "b", Timestamp: now})
	for i := 0; i < 6; i++ {
		history.Add(Event{ID: fmt.Sprint("loop-", i), Type: EventProcessExited, Instance: "a", Timestamp: now.Add(time.Duration(i+1) * time.Millisecond)})
	}
	history.Add(Event{ID: "hub", Type: EventHubShutdown, Timestamp: now.Add(time.Second)})

	events, err := history.Query(EventFilter{})
	require.NoError(t, err)
	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"quiet", "loop-3", "loop-4", "loop-5", "hub"}, ids)
	assert.Equal(t, 3, history.Count("a"))
	assert.Equal(t, 1, history.Count("b"))

	none, err := history.Query(EventFilter{Instance: "missing"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventHistory_CountsFollowTrimAndPrune(t *testing.T) {
	history := newTestHistory(2, time.Minute)
	defer history.Close()

	history.Add(Event{ID: "1", Type: EventProcessStarted, Instance: "a", Timestamp: time.Now().Add(-time.Hour)})
	history.Add(Event{ID: "2", Type: EventProcessStarted, Instance: "b", Timestamp: time.Now()})
	history.Add(Event{ID: "3", Type: EventProcessStarted, Instance: "b", Timestamp: time.Now()})
	assert.Equal(t, 0, history.Count("a"))
	assert.Equal(t, 2, history.Count("b"))

	history.Add(Event{ID: "4", Type: EventProcessStarted, Instance: "a", Timestamp: time.Now().Add(-time.Hour)})
	require.NoError(t, history.Prune())
	assert.Equal(t, 0, history.Count("a"))
	assert.Equal(t, 1, history.Count("b"))
}
