// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import "time"

// Instance kinds.
const (
	KindApp     = "app"
	KindMonitor = "monitor"
)

// Slot states.
const (
	SlotRunning    = "running"
	SlotTerminated = "terminated"
	SlotFailed     = "failed"
)

// Instance is an instance and the state of its consoles.
type Instance struct {
	// ID is the instance's stable identifier.
	ID string `json:"id"`

	// Name is the display name. It may change; ID does not.
	Name string `json:"name"`

	// Dir is the instance's directory on the daemon's host.
	Dir string `json:"dir"`

	// Kind is "app" or "monitor".
	Kind string `json:"kind"`

	// Running is true while at least one console has a live process.
	Running bool `json:"running"`

	// Alarm is true when any console matched an alarm pattern.
	Alarm bool `json:"alarm"`

	// Blink is the alarm indicator's current phase.
	Blink bool `json:"blink"`

	// Slots holds one entry per console, ordered by index.
	Slots []Slot `json:"slots"`
}

// Slot is one command and its console.
type Slot struct {
	Index        int       `json:"index"`
	Command      string    `json:"command"`
	Title        string    `json:"title"`
	State        string    `json:"state"`
	PID          int       `json:"pid,omitempty"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	ExitedAt     time.Time `json:"exited_at,omitempty"`
	Children     []string  `json:"children,omitempty"`
	InputEnabled bool      `json:"input_enabled"`
	Alarm        bool      `json:"alarm"`
	Seq          int64     `json:"seq"`
	Error        string    `json:"error,omitempty"`
}

// Console is console text appended after a sequence number.
type Console struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	Seq          int64  `json:"seq"`
	Alarm        bool   `json:"alarm"`
	InputEnabled bool   `json:"input_enabled"`
	Closed       bool   `json:"closed"`
}

// File is the content of an instance's commands or rules file.
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// DeleteResult reports a deletion. Warning is set when the instance was
// removed but its directory could not be.
type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Warning string `json:"warning,omitempty"`
}

// ShutdownSummary lists the instances that a shutdown would stop.
type ShutdownSummary struct {
	AnyRunning bool     `json:"any_running"`
	Running    []string `json:"running"`
}

// VersionInfo describes the daemon.
type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
}

// Event is a notification from the daemon's event bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Instance  string                 `json:"instance,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}
