// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/instancehub/internal/config"
	"github.com/wingedpig/instancehub/internal/console"
	"github.com/wingedpig/instancehub/internal/events"
	"github.com/wingedpig/instancehub/internal/instance"
	"github.com/wingedpig/instancehub/internal/supervisor"
)

const (
	finishedFormat       = "\n--- process finished (code %d) ---\n"
	defaultBlinkInterval = 500 * time.Millisecond
)

// Options configure a Controller.
type Options struct {
	Store         *instance.Store
	Starter       ProcessStarter
	Bus           events.EventBus // optional
	AlarmPatterns []string        // nil selects console.DefaultAlarmPatterns
	BlinkInterval time.Duration
	Hub           config.HubContext
}

// Controller owns the table of running instances. Each instance has a set
// of slots, one per command line, holding the slot's process and console.
type Controller struct {
	store         *instance.Store
	starter       ProcessStarter
	bus           events.EventBus
	expander      *config.TemplateExpander
	hub           config.HubContext
	patterns      []string
	blinkInterval time.Duration

	mu        sync.Mutex
	instances map[string]*runtime
	blink     bool
}

type runtime struct {
	slots    map[int]*slot
	running  bool // last published aggregate state
	deleting bool
}

type slot struct {
	index    int
	command  string // unexpanded, as written in the command file
	proc     *supervisor.Process
	live     bool
	spawnErr error
	sink     *console.Sink
}

func (rt *runtime) anyLive() bool {
	for _, sl := range rt.slots {
		if sl.live {
			return true
		}
	}
	return false
}

func (rt *runtime) liveProcesses() []*supervisor.Process {
	var procs []*supervisor.Process
	for _, sl := range rt.slots {
		if sl.live {
			procs = append(procs, sl.proc)
		}
	}
	return procs
}

// NewController creates a controller.
func NewController(opts Options) *Controller {
	patterns := opts.AlarmPatterns
	if patterns == nil {
		patterns = console.DefaultAlarmPatterns
	}
	interval := opts.BlinkInterval
	if interval <= 0 {
		interval = defaultBlinkInterval
	}
	return &Controller{
		store:         opts.Store,
		starter:       opts.Starter,
		bus:           opts.Bus,
		expander:      config.NewTemplateExpander(),
		hub:           opts.Hub,
		patterns:      patterns,
		blinkInterval: interval,
		instances:     make(map[string]*runtime),
	}
}

// runtime returns the runtime entry for id, creating it. Caller holds c.mu.
func (c *Controller) runtime(id string) *runtime {
	rt, ok := c.instances[id]
	if !ok {
		rt = &runtime{slots: make(map[int]*slot)}
		c.instances[id] = rt
	}
	return rt
}

// CreateInstance creates a new instance and its directory.
func (c *Controller) CreateInstance(name string, kind instance.Kind) (instance.Instance, error) {
	inst, err := c.store.Create(name, kind)
	if err != nil {
		return instance.Instance{}, err
	}
	log.Printf("Instance %s created (%s, %s)", inst.Name, inst.ID, inst.Kind)
	c.publish(events.EventInstanceCreated, inst.ID, map[string]interface{}{
		"name": inst.Name,
		"kind": string(inst.Kind),
		"dir":  inst.Dir,
	})
	return inst, nil
}

// RenameInstance changes an instance's display name.
func (c *Controller) RenameInstance(id, name string) (instance.Instance, error) {
	inst, err := c.store.Rename(id, name)
	if err != nil {
		return instance.Instance{}, err
	}
	log.Printf("Instance %s renamed to %s", id, inst.Name)
	c.publish(events.EventInstanceRenamed, id, map[string]interface{}{"name": inst.Name})
	return inst, nil
}

// DeleteInstance stops the instance if it runs, discards its consoles and
// deletes it. A *instance.DirRemovalError is returned when the directory
// could not be removed; the instance is gone from the index regardless.
func (c *Controller) DeleteInstance(ctx context.Context, id string) error {
	inst, err := c.store.Get(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	rt := c.runtime(id)
	rt.deleting = true
	procs := rt.liveProcesses()
	c.mu.Unlock()

	if err := killAll(ctx, procs); err != nil {
		c.mu.Lock()
		rt.deleting = false
		c.mu.Unlock()
		return fmt.Errorf("stop instance: %w", err)
	}

	err = c.store.Delete(id)
	var dirErr *instance.DirRemovalError
	if err != nil && !errors.As(err, &dirErr) {
		c.mu.Lock()
		rt.deleting = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	delete(c.instances, id)
	c.mu.Unlock()
	for _, sl := range rt.slots {
		sl.sink.Close()
	}

	if dirErr != nil {
		log.Printf("Instance %s deleted, but its directory could not be removed: %v", inst.Name, dirErr.Err)
	} else {
		log.Printf("Instance %s deleted", inst.Name)
	}
	c.publish(events.EventInstanceDeleted, id, map[string]interface{}{"name": inst.Name})
	return err
}

// StartInstance spawns one process per command line. Consoles from a
// previous run are replaced. When some commands fail to spawn the others
// still start; the failing slots show the error text and the first spawn
// error is returned.
func (c *Controller) StartInstance(ctx context.Context, id string) error {
	inst, err := c.store.Get(id)
	if err != nil {
		return err
	}
	commands, err := instance.LoadCommands(inst.Dir)
	if err != nil {
		return err
	}

	c.mu.Lock()
	rt := c.runtime(id)
	if rt.deleting {
		c.mu.Unlock()
		return instance.ErrNotFound
	}
	if rt.anyLive() {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	old := rt.slots
	rt.slots = make(map[int]*slot, len(commands))
	var (
		firstErr error
		started  []*slot
		failed   []*slot
	)
	for i, command := range commands {
		sl, err := c.spawn(ctx, inst, i, command)
		rt.slots[i] = sl
		if err != nil {
			failed = append(failed, sl)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		started = append(started, sl)
	}
	becameRunning := len(started) > 0 && !rt.running
	if len(started) > 0 {
		rt.running = true
	}
	c.mu.Unlock()

	for _, sl := range old {
		sl.sink.Close()
	}
	for _, sl := range failed {
		c.reportSpawnFailure(inst, sl)
	}
	for _, sl := range started {
		c.publishStarted(inst, sl)
	}
	if becameRunning {
		log.Printf("Instance %s started (%d of %d consoles)", inst.Name, len(started), len(commands))
		c.publish(events.EventInstanceStarted, id, map[string]interface{}{"consoles": len(started)})
	}
	return firstErr
}

// StopInstance kills every live process of the instance and waits for
// them to exit. Consoles are kept. Stopping an instance that is not running
// does nothing.
func (c *Controller) StopInstance(ctx context.Context, id string) error {
	inst, err := c.store.Get(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	var procs []*supervisor.Process
	if rt, ok := c.instances[id]; ok {
		procs = rt.liveProcesses()
	}
	c.mu.Unlock()

	if len(procs) == 0 {
		log.Printf("Instance %s is not running", inst.Name)
		return nil
	}
	log.Printf("Instance %s: stopping %d processes", inst.Name, len(procs))
	return killAll(ctx, procs)
}

// StopAll stops every running instance in parallel.
func (c *Controller) StopAll(ctx context.Context) error {
	c.mu.Lock()
	byInstance := make(map[string][]*supervisor.Process)
	for id, rt := range c.instances {
		if procs := rt.liveProcesses(); len(procs) > 0 {
			byInstance[id] = procs
		}
	}
	c.mu.Unlock()

	if len(byInstance) == 0 {
		return nil
	}
	log.Printf("Stopping %d running instances", len(byInstance))

	var g errgroup.Group
	for id, procs := range byInstance {
		g.Go(func() error {
			if err := killAll(ctx, procs); err != nil {
				return fmt.Errorf("stop instance %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func killAll(ctx context.Context, procs []*supervisor.Process) error {
	var g errgroup.Group
	for _, p := range procs {
		g.Go(func() error { return p.Kill(ctx) })
	}
	return g.Wait()
}

// IsRunning reports whether at least one process of the instance is live.
func (c *Controller) IsRunning(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.instances[id]
	return ok && rt.anyLive()
}

// AnyRunning reports whether any instance is running.
func (c *Controller) AnyRunning() bool {
	return len(c.RunningInstances()) > 0
}

// RunningInstances returns the ids of running instances, sorted.
func (c *Controller) RunningInstances() []string {
	c.mu.Lock()
	var ids []string
	for id, rt := range c.instances {
		if rt.anyLive() {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// RestartCommand stores text as the index-th command, kills the process in
// that slot and starts a fresh one with a new console. Other slots are not
// touched. index may equal the current number of commands to add one.
func (c *Controller) RestartCommand(ctx context.Context, id string, index int, text string) error {
	inst, err := c.store.Get(id)
	if err != nil {
		return err
	}
	commands, err := instance.LoadCommands(inst.Dir)
	if err != nil {
		return err
	}
	n := len(commands)
	if n == 1 && commands[0] == "" {
		n = 0
	}
	if index < 0 || index > n {
		return fmt.Errorf("%w: index %d, instance has %d commands", ErrSlotNotFound, index, n)
	}
	if err := instance.ReplaceCommand(inst.Dir, index, text); err != nil {
		return err
	}
	commands, err = instance.LoadCommands(inst.Dir)
	if err != nil {
		return err
	}
	command := commands[index]

	c.mu.Lock()
	old := c.runtime(id).slots[index]
	var oldProc *supervisor.Process
	if old != nil && old.live {
		oldProc = old.proc
	}
	c.mu.Unlock()

	if oldProc != nil {
		if err := oldProc.Kill(ctx); err != nil {
			return fmt.Errorf("stop console %d: %w", index, err)
		}
	}

	c.mu.Lock()
	rt := c.runtime(id)
	if rt.deleting {
		c.mu.Unlock()
		return instance.ErrNotFound
	}
	if cur := rt.slots[index]; cur != nil && cur != old && cur.live {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	sl, err := c.spawn(ctx, inst, index, command)
	rt.slots[index] = sl
	becameRunning := err == nil && !rt.running
	if err == nil {
		rt.running = true
	}
	c.mu.Unlock()

	if old != nil {
		old.sink.Close()
	}
	if err != nil {
		c.reportSpawnFailure(inst, sl)
		return err
	}
	log.Printf("Instance %s: console %d restarted", inst.Name, index)
	c.publishStarted(inst, sl)
	if becameRunning {
		c.publish(events.EventInstanceStarted, id, map[string]interface{}{"consoles": 1})
	}
	return nil
}

// WriteInput sends a line to the process of a slot. It does nothing when
// the process has already terminated.
func (c *Controller) WriteInput(id string, index int, text string) error {
	sink, err := c.Console(id, index)
	if err != nil {
		return err
	}
	if err := sink.AcceptInput(text); err != nil && !errors.Is(err, console.ErrInputDisabled) {
		return err
	}
	return nil
}

// CloseConsole kills the slot's process if it is live and discards the
// console.
func (c *Controller) CloseConsole(ctx context.Context, id string, index int) error {
	if _, err := c.store.Get(id); err != nil {
		return err
	}
	c.mu.Lock()
	var sl *slot
	if rt, ok := c.instances[id]; ok {
		sl = rt.slots[index]
	}
	var proc *supervisor.Process
	if sl != nil && sl.live {
		proc = sl.proc
	}
	c.mu.Unlock()

	if sl == nil {
		return ErrSlotNotFound
	}
	if proc != nil {
		if err := proc.Kill(ctx); err != nil {
			return fmt.Errorf("stop console %d: %w", index, err)
		}
	}

	c.mu.Lock()
	if rt, ok := c.instances[id]; ok && rt.slots[index] == sl {
		delete(rt.slots, index)
	}
	c.mu.Unlock()

	sl.sink.Close()
	c.publish(events.EventConsoleClosed, id, map[string]interface{}{"index": index})
	return nil
}

// DisableAlarm clears the alarm of one console, or of every console of the
// instance when index is negative.
func (c *Controller) DisableAlarm(id string, index int) error {
	if _, err := c.store.Get(id); err != nil {
		return err
	}
	c.mu.Lock()
	var slots []*slot
	if rt, ok := c.instances[id]; ok {
		if index < 0 {
			for _, sl := range rt.slots {
				slots = append(slots, sl)
			}
		} else if sl, ok := rt.slots[index]; ok {
			slots = append(slots, sl)
		}
	}
	c.mu.Unlock()

	if index >= 0 && len(slots) == 0 {
		return ErrSlotNotFound
	}
	for _, sl := range slots {
		if sl.sink.ClearAlarm() {
			c.publish(events.EventConsoleAlarmCleared, id, map[string]interface{}{"index": sl.index})
		}
	}
	return nil
}

// Console returns the console sink of a slot.
func (c *Controller) Console(id string, index int) (*console.Sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rt, ok := c.instances[id]; ok {
		if sl, ok := rt.slots[index]; ok {
			return sl.sink, nil
		}
	}
	if _, err := c.store.Get(id); err != nil {
		return nil, err
	}
	return nil, ErrSlotNotFound
}

// Status returns a snapshot of one instance including the child processes
// of its shells.
func (c *Controller) Status(id string) (InstanceStatus, error) {
	inst, err := c.store.Get(id)
	if err != nil {
		return InstanceStatus{}, err
	}
	return c.snapshot(inst, true), nil
}

// List returns snapshots of every instance, sorted by name.
func (c *Controller) List() ([]InstanceStatus, error) {
	insts, err := c.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]InstanceStatus, 0, len(insts))
	for _, inst := range insts {
		out = append(out, c.snapshot(inst, false))
	}
	return out, nil
}

func (c *Controller) snapshot(inst instance.Instance, children bool) InstanceStatus {
	st := InstanceStatus{Instance: inst, Slots: []SlotStatus{}}
	var procs []*supervisor.Process

	c.mu.Lock()
	if rt, ok := c.instances[inst.ID]; ok {
		st.Running = rt.anyLive()
		for _, sl := range rt.slots {
			st.Slots = append(st.Slots, sl.status())
			if sl.live {
				procs = append(procs, sl.proc)
			} else {
				procs = append(procs, nil)
			}
		}
	}
	blink := c.blink
	c.mu.Unlock()

	for i := range st.Slots {
		if children && procs[i] != nil {
			st.Slots[i].Children = procs[i].Children()
		}
		if st.Slots[i].Alarm {
			st.Alarm = true
		}
	}
	sort.Slice(st.Slots, func(i, j int) bool { return st.Slots[i].Index < st.Slots[j].Index })
	st.Blink = st.Alarm && blink
	return st
}

// status snapshots a slot. Caller holds c.mu.
func (sl *slot) status() SlotStatus {
	ss := SlotStatus{
		Index:        sl.index,
		Command:      sl.command,
		Title:        console.Title(sl.command, sl.index),
		InputEnabled: sl.sink.InputEnabled(),
		Alarm:        sl.sink.Alarm(),
		Sequence:     sl.sink.Sequence(),
	}
	if sl.spawnErr != nil {
		ss.State = SlotFailed
		ss.Error = sl.spawnErr.Error()
		return ss
	}
	ps := sl.proc.Status()
	ss.PID = ps.PID
	ss.StartedAt = ps.StartedAt
	if sl.live {
		ss.State = SlotRunning
		return ss
	}
	ss.State = SlotTerminated
	code := ps.ExitCode
	ss.ExitCode = &code
	ss.ExitedAt = ps.ExitedAt
	return ss
}

// ReadFile returns the content of one of the instance's editable files.
func (c *Controller) ReadFile(id, name string) (string, error) {
	inst, err := c.store.Get(id)
	if err != nil {
		return "", err
	}
	return instance.ReadFile(inst.Dir, name)
}

// WriteFile replaces one of the instance's editable files. With restart set
// the instance is stopped if it runs and then started.
func (c *Controller) WriteFile(ctx context.Context, id, name, content string, restart bool) error {
	inst, err := c.store.Get(id)
	if err != nil {
		return err
	}
	if err := instance.WriteFile(inst.Dir, name, content); err != nil {
		return err
	}
	if !restart {
		return nil
	}
	if err := c.StopInstance(ctx, id); err != nil {
		return err
	}
	return c.StartInstance(ctx, id)
}

// SaveCommands replaces the command file, optionally restarting the instance.
func (c *Controller) SaveCommands(ctx context.Context, id, content string, restart bool) error {
	return c.WriteFile(ctx, id, instance.CommandsFile, content, restart)
}

// Run toggles the alarm blink phase until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.blinkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.blink = !c.blink
			c.mu.Unlock()
		}
	}
}

// spawn creates a slot with a fresh console and starts its process. On
// failure the slot is returned with spawnErr set. Caller holds c.mu; the
// process callbacks take c.mu themselves, so nothing here may wait for them.
func (c *Controller) spawn(ctx context.Context, inst instance.Instance, index int, command string) (*slot, error) {
	sl := &slot{
		index:   index,
		command: command,
		sink:    c.newSink(inst.ID, index),
	}

	expanded, err := c.expander.Expand(command, &config.TemplateContext{
		Hub:      c.hub,
		Instance: config.InstanceContext{ID: inst.ID, Name: inst.Name, Dir: inst.Dir},
	})
	if err != nil {
		sl.spawnErr = fmt.Errorf("expand command: %w", err)
		return sl, sl.spawnErr
	}

	sink := sl.sink
	key := supervisor.SlotKey{InstanceID: inst.ID, Index: index}
	proc, err := c.starter.Start(ctx, supervisor.Spec{
		Key:     key,
		Command: expanded,
		Dir:     inst.Dir,
		Env:     slotEnv(inst, index),
	}, supervisor.Callbacks{
		OnStart: func(_ supervisor.SlotKey, pid int) {
			log.Printf("Instance %s: console %d started (PID %d)", inst.Name, index, pid)
		},
		OnOutput: func(_ supervisor.SlotKey, text string) {
			sink.Append(text)
		},
		OnExit: func(key supervisor.SlotKey, code int) {
			c.handleExit(key, sink, code)
		},
	})
	if err != nil {
		sl.spawnErr = err
		return sl, err
	}

	sl.proc = proc
	sl.live = true
	sink.BindInput(proc.WriteInput)
	sink.SetInputEnabled(true)
	return sl, nil
}

func slotEnv(inst instance.Instance, index int) map[string]string {
	return map[string]string{
		"INSTANCEHUB_INSTANCE_ID":   inst.ID,
		"INSTANCEHUB_INSTANCE_NAME": inst.Name,
		"INSTANCEHUB_CONSOLE":       strconv.Itoa(index),
		"PYTHONIOENCODING":          "utf-8",
		"PYTHONUNBUFFERED":          "1",
	}
}

func (c *Controller) newSink(id string, index int) *console.Sink {
	return console.NewSink(
		console.WithMatcher(console.NewSubstringMatcher(c.patterns...)),
		console.WithAlarmHandler(func() {
			c.publish(events.EventConsoleAlarm, id, map[string]interface{}{"index": index})
		}),
	)
}

// handleExit runs once per process, after its last output. The slot is
// only marked finished if sink still belongs to it; a restarted slot
// already carries a new console.
func (c *Controller) handleExit(key supervisor.SlotKey, sink *console.Sink, code int) {
	stopped := false
	c.mu.Lock()
	if rt, ok := c.instances[key.InstanceID]; ok {
		if sl, ok := rt.slots[key.Index]; ok && sl.sink == sink {
			sl.live = false
		}
		if rt.running && !rt.anyLive() {
			rt.running = false
			stopped = true
		}
	}
	c.mu.Unlock()

	sink.SetInputEnabled(false)
	sink.Append(fmt.Sprintf(finishedFormat, code))

	log.Printf("Instance %s: console %d finished (code %d)", key.InstanceID, key.Index, code)
	c.publish(events.EventProcessExited, key.InstanceID, map[string]interface{}{
		"index":     key.Index,
		"exit_code": code,
	})
	if stopped {
		log.Printf("Instance %s stopped", key.InstanceID)
		c.publish(events.EventInstanceStopped, key.InstanceID, nil)
	}
}

func (c *Controller) reportSpawnFailure(inst instance.Instance, sl *slot) {
	sl.sink.Append(fmt.Sprintf("Failed to start %q: %v\n", sl.command, sl.spawnErr))
	log.Printf("Instance %s: console %d failed to start: %v", inst.Name, sl.index, sl.spawnErr)
	c.publish(events.EventProcessSpawnFailed, inst.ID, map[string]interface{}{
		"index":   sl.index,
		"command": sl.command,
		"error":   sl.spawnErr.Error(),
	})
}

func (c *Controller) publishStarted(inst instance.Instance, sl *slot) {
	c.publish(events.EventProcessStarted, inst.ID, map[string]interface{}{
		"index":   sl.index,
		"command": sl.command,
		"pid":     sl.proc.Status().PID,
	})
}

func (c *Controller) publish(eventType, instanceID string, payload map[string]interface{}) {
	if c.bus == nil {
		return
	}
	err := c.bus.Publish(context.Background(), events.Event{
		Type:     eventType,
		Instance: instanceID,
		Payload:  payload,
	})
	if err != nil && !errors.Is(err, events.ErrBusClosed) {
		log.Printf("Failed to publish %s: %v", eventType, err)
	}
}
