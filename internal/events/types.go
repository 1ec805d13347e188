// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process event bus that carries instance
// lifecycle notifications to API clients.
package events

import (
	"context"
	"time"
)

// Event is an immutable notification about something that happened in the hub.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Instance  string                 `json:"instance,omitempty"` // instance id, empty for hub-wide events
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types    []string  // Event types to match (supports wildcards)
	Instance string    // Filter by instance id
	Since    time.Time // Events after this time
	Until    time.Time // Events before this time
	Limit    int       // Maximum events to return, newest kept
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Event types
const (
	EventInstanceCreated = "instance.created"
	EventInstanceRenamed = "instance.renamed"
	EventInstanceDeleted = "instance.deleted"
	EventInstanceStarted = "instance.started"
	EventInstanceStopped = "instance.stopped"

	EventProcessStarted     = "process.started"
	EventProcessExited      = "process.exited"
	EventProcessSpawnFailed = "process.spawn_failed"

	EventConsoleAlarm        = "console.alarm"
	EventConsoleAlarmCleared = "console.alarm_cleared"
	EventConsoleClosed       = "console.closed"

	EventHubShutdown = "hub.shutdown"
)
