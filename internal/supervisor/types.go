// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"strings"
	"time"
)

// SlotKey identifies a command slot: the index-th command of an instance.
type SlotKey struct {
	InstanceID string `json:"instance_id"`
	Index      int    `json:"index"`
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s[%d]", k.InstanceID, k.Index)
}

// ProcessState represents the state of a shell process.
type ProcessState int

const (
	StateStarting ProcessState = iota
	StateRunning
	StateTerminated
)

func (s ProcessState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (s ProcessState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ProcessStatus is a snapshot of a process.
type ProcessStatus struct {
	State     ProcessState `json:"state"`
	PID       int          `json:"pid,omitempty"`
	ExitCode  int          `json:"exit_code"`
	StartedAt time.Time    `json:"started_at"`
	ExitedAt  time.Time    `json:"exited_at,omitempty"`
}

// Spec describes one process to start.
type Spec struct {
	Key     SlotKey
	Command string            // written to the shell's stdin; empty for a bare shell
	Dir     string            // working directory
	Env     map[string]string // added to the inherited environment
}

// Callbacks receive process notifications. OnOutput calls for one process
// are sequential and in the order the OS delivered the bytes. OnExit is
// called exactly once, after the last OnOutput.
type Callbacks struct {
	OnStart  func(key SlotKey, pid int)
	OnOutput func(key SlotKey, text string)
	OnExit   func(key SlotKey, exitCode int)
}

// SpawnError reports that the shell could not be started.
type SpawnError struct {
	Key   SlotKey
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s for %s: %v", e.Shell, e.Key, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Options configure how shells are spawned.
type Options struct {
	Shell    []string          // interpreter and its arguments
	Env      map[string]string // added to every process
	PTY      bool              // run the shell on a pseudo-terminal (Unix only)
	Encoding string            // console code page tried before UTF-8
}

func (o Options) shellString() string {
	return strings.Join(o.Shell, " ")
}
