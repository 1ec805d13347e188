// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package supervisor spawns and kills the interactive shells behind command
// slots. It keeps no table of its own: callers hold the *Process handles.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/wingedpig/instancehub/internal/console"
)

const (
	readBufferSize = 32 * 1024

	// drainTimeout bounds how long output is read after the shell exits.
	// Background jobs that inherited the output pipe would otherwise keep
	// the reader alive forever.
	drainTimeout = 2 * time.Second
)

// Supervisor starts shell processes with a fixed set of options.
type Supervisor struct {
	opts Options
}

// New creates a supervisor.
func New(opts Options) *Supervisor {
	return &Supervisor{opts: opts}
}

// Process is one running (or finished) shell.
type Process struct {
	key     SlotKey
	command string
	cb      Callbacks
	decoder *console.Decoder

	mu        sync.RWMutex
	cmd       *exec.Cmd
	state     ProcessState
	pid       int
	exitCode  int
	startedAt time.Time
	exitedAt  time.Time

	inputMu sync.Mutex
	stdin   io.Writer
	running atomic.Bool

	output     io.ReadCloser
	outputDone chan struct{}
	exitDone   chan struct{}
}

// Start spawns the shell for spec and, if spec.Command is non-empty, types
// it into the shell followed by a newline. The shell stays alive afterwards
// for interactive input.
func (s *Supervisor) Start(ctx context.Context, spec Spec, cb Callbacks) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.opts.Shell) == 0 {
		return nil, &SpawnError{Key: spec.Key, Err: errors.New("no shell configured")}
	}

	decoder, err := console.NewDecoder(s.opts.Encoding)
	if err != nil {
		return nil, err
	}

	p := &Process{
		key:        spec.Key,
		command:    spec.Command,
		cb:         cb,
		decoder:    decoder,
		state:      StateStarting,
		outputDone: make(chan struct{}),
		exitDone:   make(chan struct{}),
	}

	cmd := exec.Command(s.opts.Shell[0], s.opts.Shell[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for k, v := range s.opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if s.opts.PTY {
		ptmx, err := startPTY(cmd)
		if err != nil {
			return nil, &SpawnError{Key: spec.Key, Shell: s.opts.shellString(), Err: err}
		}
		p.stdin = ptmx
		p.output = ptmx
	} else {
		setProcAttrs(cmd)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, &SpawnError{Key: spec.Key, Shell: s.opts.shellString(), Err: err}
		}

		// stdout and stderr share one pipe so output stays in OS order
		r, w, err := os.Pipe()
		if err != nil {
			return nil, &SpawnError{Key: spec.Key, Shell: s.opts.shellString(), Err: err}
		}
		cmd.Stdout = w
		cmd.Stderr = w

		if err := cmd.Start(); err != nil {
			r.Close()
			w.Close()
			return nil, &SpawnError{Key: spec.Key, Shell: s.opts.shellString(), Err: err}
		}
		// The child holds its own copy of the write end
		w.Close()

		p.stdin = stdin
		p.output = r
	}

	p.mu.Lock()
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()
	p.state = StateRunning
	p.mu.Unlock()
	p.running.Store(true)

	if cb.OnStart != nil {
		cb.OnStart(p.key, p.pid)
	}

	go p.readOutput()
	go p.waitForExit()

	if spec.Command != "" {
		if err := p.WriteInput(spec.Command); err != nil {
			log.Printf("Process %s: write initial command: %v", p.key, err)
		}
	}

	return p, nil
}

// Key returns the slot the process belongs to.
func (p *Process) Key() SlotKey {
	return p.key
}

// Command returns the command typed into the shell at start.
func (p *Process) Command() string {
	return p.command
}

// Status returns a snapshot of the process state.
func (p *Process) Status() ProcessStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProcessStatus{
		State:     p.state,
		PID:       p.pid,
		ExitCode:  p.exitCode,
		StartedAt: p.startedAt,
		ExitedAt:  p.exitedAt,
	}
}

// Running reports whether the process has not terminated yet.
func (p *Process) Running() bool {
	return p.running.Load()
}

// Done is closed once the process has terminated and OnExit has returned.
func (p *Process) Done() <-chan struct{} {
	return p.exitDone
}

// WriteInput types text followed by a newline into the shell. Input for a
// process that has terminated is dropped without error.
func (p *Process) WriteInput(text string) error {
	if !p.running.Load() {
		return nil
	}

	p.inputMu.Lock()
	defer p.inputMu.Unlock()

	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		if !p.running.Load() {
			return nil
		}
		return fmt.Errorf("write input to %s: %w", p.key, err)
	}
	return nil
}

// Kill terminates the shell and everything it started immediately, then
// waits until the exit has been handled or ctx is done. Killing a process
// that already terminated is a no-op.
func (p *Process) Kill(ctx context.Context) error {
	p.mu.RLock()
	cmd := p.cmd
	running := p.state == StateRunning
	p.mu.RUnlock()

	if running && cmd != nil && cmd.Process != nil {
		if err := killTree(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Printf("Process %s: kill: %v", p.key, err)
		}
	}

	select {
	case <-p.exitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Children returns the executable names of the shell's direct children,
// i.e. whatever the shell is currently running.
func (p *Process) Children() []string {
	p.mu.RLock()
	pid, state := p.pid, p.state
	p.mu.RUnlock()

	if state != StateRunning || pid == 0 {
		return nil
	}

	procs, err := ps.Processes()
	if err != nil {
		return nil
	}
	var names []string
	for _, proc := range procs {
		if proc.PPid() == pid {
			names = append(names, proc.Executable())
		}
	}
	return names
}

func (p *Process) readOutput() {
	defer close(p.outputDone)

	buf := make([]byte, readBufferSize)
	for {
		n, err := p.output.Read(buf)
		if n > 0 {
			p.emit(p.decoder.Decode(buf[:n]))
		}
		if err != nil {
			// EOF for pipes; EIO once a pty's last writer is gone
			return
		}
	}
}

func (p *Process) emit(text string) {
	if text != "" && p.cb.OnOutput != nil {
		p.cb.OnOutput(p.key, text)
	}
}

func (p *Process) waitForExit() {
	err := p.cmd.Wait()
	p.running.Store(false)

	select {
	case <-p.outputDone:
	case <-time.After(drainTimeout):
		log.Printf("Process %s: output still open %s after exit, closing", p.key, drainTimeout)
		p.output.Close()
		<-p.outputDone
	}
	p.output.Close()
	p.emit(p.decoder.Flush())

	code := exitCode(err)

	p.mu.Lock()
	p.state = StateTerminated
	p.exitCode = code
	p.exitedAt = time.Now()
	p.mu.Unlock()

	if p.cb.OnExit != nil {
		p.cb.OnExit(p.key, code)
	}
	close(p.exitDone)
}

// exitCode maps a Wait error to an exit code; -1 when the process was
// killed by a signal or the code is otherwise unknown.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
