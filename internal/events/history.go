// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sort"
	"sync"
	"time"
)

// EventHistoryConfig configures event history.
type EventHistoryConfig struct {
	MaxEvents      int
	MaxAge         time.Duration
	MaxPerInstance int // 0 means only MaxEvents applies
}

// EventHistory keeps recent events so clients that connect late can catch up.
// Besides the global bounds, each instance may be capped so one instance
// restarting in a loop cannot push every other instance out of the history.
type EventHistory struct {
	mu             sync.RWMutex
	events         []Event
	perInstance    map[string]int
	maxEvents      int
	maxAge         time.Duration
	maxPerInstance int
	matcher        *PatternMatcher
}

// NewEventHistory creates a new event history.
func NewEventHistory(cfg EventHistoryConfig) *EventHistory {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.MaxPerInstance < 0 {
		cfg.MaxPerInstance = 0
	}

	return &EventHistory{
		events:         make([]Event, 0),
		perInstance:    make(map[string]int),
		maxEvents:      cfg.MaxEvents,
		maxAge:         cfg.MaxAge,
		maxPerInstance: cfg.MaxPerInstance,
		matcher:        NewPatternMatcher(),
	}
}

// Add stores an event in history.
func (h *EventHistory) Add(event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, event)
	if event.Instance != "" {
		h.perInstance[event.Instance]++

		// Drop this instance's oldest event rather than someone else's
		if h.maxPerInstance > 0 && h.perInstance[event.Instance] > h.maxPerInstance {
			h.dropOldest(event.Instance)
		}
	}

	// Enforce max events limit
	if len(h.events) > h.maxEvents {
		h.trim(len(h.events) - h.maxEvents)
	}
	return nil
}

// dropOldest removes the first event belonging to instance.
func (h *EventHistory) dropOldest(instance string) {
	for i, e := range h.events {
		if e.Instance == instance {
			h.events = append(h.events[:i], h.events[i+1:]...)
			h.forget(instance)
			return
		}
	}
}

// trim removes the n oldest events.
func (h *EventHistory) trim(n int) {
	for _, e := range h.events[:n] {
		h.forget(e.Instance)
	}
	h.events = h.events[n:]
}

func (h *EventHistory) forget(instance string) {
	if instance == "" {
		return
	}
	if h.perInstance[instance]--; h.perInstance[instance] <= 0 {
		delete(h.perInstance, instance)
	}
}

// Query retrieves events matching filter, oldest first.
func (h *EventHistory) Query(filter EventFilter) ([]Event, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, 0)

	// Nothing recorded for this instance, skip the scan
	if filter.Instance != "" && h.perInstance[filter.Instance] == 0 {
		return result, nil
	}

	for _, event := range h.events {
		if h.matchesFilter(event, filter) {
			result = append(result, event)
		}
	}

	// Concurrent publishers may append slightly out of timestamp order
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	// Apply limit, keeping the newest
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}

	return result, nil
}

// Count returns how many events are held for instance.
func (h *EventHistory) Count(instance string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.perInstance[instance]
}

// matchesFilter checks if an event matches the filter criteria.
func (h *EventHistory) matchesFilter(event Event, filter EventFilter) bool {
	if len(filter.Types) > 0 && !h.matchesAnyType(event.Type, filter.Types) {
		return false
	}
	if filter.Instance != "" && event.Instance != filter.Instance {
		return false
	}

	// Time window
	if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && event.Timestamp.After(filter.Until) {
		return false
	}
	return true
}

func (h *EventHistory) matchesAnyType(eventType string, patterns []string) bool {
	for _, pattern := range patterns {
		if h.matcher.Match(eventType, pattern) {
			return true
		}
	}
	return false
}

// Prune removes events older than max age or exceeding max count.
func (h *EventHistory) Prune() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-h.maxAge)
	filtered := make([]Event, 0, len(h.events))
	counts := make(map[string]int, len(h.perInstance))

	for _, event := range h.events {
		if event.Timestamp.After(cutoff) {
			filtered = append(filtered, event)
			if event.Instance != "" {
				counts[event.Instance]++
			}
		}
	}

	h.events = filtered
	h.perInstance = counts

	// Enforce max events limit
	if len(h.events) > h.maxEvents {
		h.trim(len(h.events) - h.maxEvents)
	}
	return nil
}

// Close releases resources.
func (h *EventHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
	h.perInstance = make(map[string]int)
	return nil
}
