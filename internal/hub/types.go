// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"context"
	"errors"
	"time"

	"github.com/wingedpig/instancehub/internal/instance"
	"github.com/wingedpig/instancehub/internal/supervisor"
)

var (
	// ErrAlreadyRunning is returned when starting an instance that has at
	// least one live process.
	ErrAlreadyRunning = errors.New("instance is already running, stop it first")

	// ErrSlotNotFound is returned for console indexes the instance does not have.
	ErrSlotNotFound = errors.New("console not found")
)

// SlotState is the lifecycle state of a command slot.
type SlotState string

const (
	SlotRunning    SlotState = "running"
	SlotTerminated SlotState = "terminated"
	SlotFailed     SlotState = "failed" // the shell could not be spawned
)

// SlotStatus is a snapshot of one command slot and its console.
type SlotStatus struct {
	Index        int       `json:"index"`
	Command      string    `json:"command"`
	Title        string    `json:"title"`
	State        SlotState `json:"state"`
	PID          int       `json:"pid,omitempty"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	ExitedAt     time.Time `json:"exited_at,omitempty"`
	Children     []string  `json:"children,omitempty"`
	InputEnabled bool      `json:"input_enabled"`
	Alarm        bool      `json:"alarm"`
	Sequence     int64     `json:"seq"`
	Error        string    `json:"error,omitempty"`
}

// InstanceStatus is a snapshot of an instance and its slots.
type InstanceStatus struct {
	instance.Instance
	Running bool         `json:"running"`
	Alarm   bool         `json:"alarm"`
	Blink   bool         `json:"blink"` // alarm indicator phase, toggled by the blinker
	Slots   []SlotStatus `json:"slots"`
}

// ProcessStarter starts shell processes. *supervisor.Supervisor implements it.
type ProcessStarter interface {
	Start(ctx context.Context, spec supervisor.Spec, cb supervisor.Callbacks) (*supervisor.Process, error)
}
