// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package hub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/instancehub/internal/config"
	"github.com/wingedpig/instancehub/internal/events"
	"github.com/wingedpig/instancehub/internal/instance"
	"github.com/wingedpig/instancehub/internal/kvstore"
	"github.com/wingedpig/instancehub/internal/supervisor"
)

const waitFor = 5 * time.Second

func newTestController(t *testing.T, shell ...string) (*Controller, *events.MemoryEventBus) {
	t.Helper()
	c, bus, _ := newTestControllerWithStore(t, shell)
	return c, bus
}

func newTestControllerWithStore(t *testing.T, shell []string, opts ...instance.StoreOption) (*Controller, *events.MemoryEventBus, kvstore.Store) {
	t.Helper()
	if len(shell) == 0 {
		shell = []string{"/bin/sh"}
	}
	dir := t.TempDir()
	kv, err := kvstore.NewFileStore(filepath.Join(dir, "hub.json"))
	require.NoError(t, err)
	bus := events.NewMemoryEventBus(events.MemoryBusConfig{HistoryMaxEvents: 1000, HistoryMaxAge: time.Hour})

	c := NewController(Options{
		Store:         instance.NewStore(kv, filepath.Join(dir, "instances"), opts...),
		Starter:       supervisor.New(supervisor.Options{Shell: shell}),
		Bus:           bus,
		BlinkInterval: 10 * time.Millisecond,
		Hub:           config.HubContext{Executable: "/usr/local/bin/instancehub", DataDir: dir},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = c.StopAll(ctx)
		bus.Close()
		kv.Close()
	})
	return c, bus, kv
}

func createWithCommands(t *testing.T, c *Controller, name, commands string) instance.Instance {
	t.Helper()
	inst, err := c.CreateInstance(name, instance.KindApp)
	require.NoError(t, err)
	require.NoError(t, c.SaveCommands(context.Background(), inst.ID, commands, false))
	return inst
}

func waitStopped(t *testing.T, c *Controller, id string) {
	t.Helper()
	require.Eventually(t, func() bool { return !c.IsRunning(id) }, waitFor, 10*time.Millisecond)
}

func consoleText(t *testing.T, c *Controller, id string, index int) string {
	t.Helper()
	sink, err := c.Console(id, index)
	require.NoError(t, err)
	return sink.Text()
}

func eventTypes(t *testing.T, bus *events.MemoryEventBus, id string) []string {
	t.Helper()
	evts, err := bus.History(events.EventFilter{Instance: id})
	require.NoError(t, err)
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	return types
}

func TestController_StartAndStop(t *testing.T) {
	c, bus := newTestController(t)
	ctx := context.Background()
	inst := createWithCommands(t, c, "alpha", "# two long commands\nsleep 30\n\nsleep 30\n")

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	assert.True(t, c.IsRunning(inst.ID))
	assert.True(t, c.AnyRunning())
	assert.Equal(t, []string{inst.ID}, c.RunningInstances())

	st, err := c.Status(inst.ID)
	require.NoError(t, err)
	assert.True(t, st.Running)
	require.Len(t, st.Slots, 2)
	for i, sl := range st.Slots {
		assert.Equal(t, i, sl.Index)
		assert.Equal(t, "sleep 30", sl.Command)
		assert.Equal(t, SlotRunning, sl.State)
		assert.True(t, sl.InputEnabled)
		assert.NotZero(t, sl.PID)
	}

	err = c.StartInstance(ctx, inst.ID)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, c.StopInstance(ctx, inst.ID))
	assert.False(t, c.IsRunning(inst.ID))
	assert.False(t, c.AnyRunning())

	st, err = c.Status(inst.ID)
	require.NoError(t, err)
	require.Len(t, st.Slots, 2)
	for _, sl := range st.Slots {
		assert.Equal(t, SlotTerminated, sl.State)
		assert.False(t, sl.InputEnabled)
		require.NotNil(t, sl.ExitCode)
	}
	assert.Contains(t, consoleText(t, c, inst.ID, 0), "--- process finished (code -1) ---")

	types := eventTypes(t, bus, inst.ID)
	assert.Contains(t, types, events.EventInstanceStarted)
	assert.Contains(t, types, events.EventProcessStarted)
	assert.Contains(t, types, events.EventProcessExited)
	assert.Contains(t, types, events.EventInstanceStopped)
}

func TestController_StopWhenNotRunning(t *testing.T) {
	c, _ := newTestController(t)
	inst := createWithCommands(t, c, "idle", "sleep 30\n")

	assert.NoError(t, c.StopInstance(context.Background(), inst.ID))
	assert.False(t, c.IsRunning(inst.ID))

	err := c.StopInstance(context.Background(), "6f1c1d5e-3f7a-4f55-9a53-5c1f3a5b9b11")
	assert.ErrorIs(t, err, instance.ErrNotFound)
}

func TestController_ExitCodeAndOutputOrder(t *testing.T) {
	c, _ := newTestController(t)
	inst := createWithCommands(t, c, "counter", "for i in 1 2 3 4 5; do echo line$i; done; exit 3\n")

	require.NoError(t, c.StartInstance(context.Background(), inst.ID))
	waitStopped(t, c, inst.ID)

	text := consoleText(t, c, inst.ID, 0)
	last := -1
	for _, want := range []string{"line1", "line2", "line3", "line4", "line5", "process finished (code 3)"} {
		idx := strings.Index(text, want)
		require.GreaterOrEqual(t, idx, 0, "missing %q in %q", want, text)
		assert.Greater(t, idx, last)
		last = idx
	}
	assert.True(t, strings.HasSuffix(text, "\n--- process finished (code 3) ---\n"))

	st, err := c.Status(inst.ID)
	require.NoError(t, err)
	require.Len(t, st.Slots, 1)
	require.NotNil(t, st.Slots[0].ExitCode)
	assert.Equal(t, 3, *st.Slots[0].ExitCode)
}

func TestController_BareShellWhenNoCommands(t *testing.T) {
	c, _ := newTestController(t)
	inst := createWithCommands(t, c, "bare", "# nothing to run\n\n")

	require.NoError(t, c.StartInstance(context.Background(), inst.ID))
	st, err := c.Status(inst.ID)
	require.NoError(t, err)
	require.Len(t, st.Slots, 1)
	assert.Equal(t, "", st.Slots[0].Command)
	assert.Equal(t, "Console 1", st.Slots[0].Title)

	require.NoError(t, c.WriteInput(inst.ID, 0, "echo typed-by-user; exit 0"))
	waitStopped(t, c, inst.ID)
	assert.Contains(t, consoleText(t, c, inst.ID, 0), "typed-by-user")

	// Input after exit is dropped.
	assert.NoError(t, c.WriteInput(inst.ID, 0, "echo too late"))
	assert.ErrorIs(t, c.WriteInput(inst.ID, 5, "x"), ErrSlotNotFound)
}

func TestController_RestartCommand(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	inst := createWithCommands(t, c, "multi", "# header\nsleep 30\nsleep 30\n")

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	before, err := c.Status(inst.ID)
	require.NoError(t, err)
	oldSink, err := c.Console(inst.ID, 1)
	require.NoError(t, err)

	require.NoError(t, c.RestartCommand(ctx, inst.ID, 1, "echo restarted; sleep 30"))

	after, err := c.Status(inst.ID)
	require.NoError(t, err)
	require.Len(t, after.Slots, 2)
	assert.Equal(t, before.Slots[0].PID, after.Slots[0].PID)
	assert.Equal(t, SlotRunning, after.Slots[0].State)
	assert.Equal(t, SlotRunning, after.Slots[1].State)
	assert.NotEqual(t, before.Slots[1].PID, after.Slots[1].PID)
	assert.Equal(t, "echo restarted; sleep 30", after.Slots[1].Command)

	assert.True(t, oldSink.Closed())
	assert.Contains(t, oldSink.Text(), "process finished")
	require.Eventually(t, func() bool {
		return strings.Contains(consoleText(t, c, inst.ID, 1), "restarted")
	}, waitFor, 10*time.Millisecond)

	content, err := c.ReadFile(inst.ID, instance.CommandsFile)
	require.NoError(t, err)
	assert.Equal(t, "# header\nsleep 30\necho restarted; sleep 30\n", content)
}

func TestController_RestartCommandAppendsAndStarts(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	inst := createWithCommands(t, c, "grow", "echo first; exit 0\n")

	err := c.RestartCommand(ctx, inst.ID, 3, "echo nope")
	assert.ErrorIs(t, err, ErrSlotNotFound)

	require.NoError(t, c.RestartCommand(ctx, inst.ID, 1, "sleep 30"))
	assert.True(t, c.IsRunning(inst.ID))

	commands, err := instance.LoadCommands(inst.Dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo first; exit 0", "sleep 30"}, commands)

	err = c.RestartCommand(ctx, inst.ID, 0, "# not a command")
	assert.ErrorIs(t, err, instance.ErrInvalidCommand)
}

func TestController_Alarm(t *testing.T) {
	c, bus := newTestController(t)
	inst := createWithCommands(t, c, "noisy", "echo all good; exit 0\necho Something went ERROR here; exit 1\n")

	require.NoError(t, c.StartInstance(context.Background(), inst.ID))
	waitStopped(t, c, inst.ID)

	st, err := c.Status(inst.ID)
	require.NoError(t, err)
	assert.True(t, st.Alarm)
	assert.False(t, st.Slots[0].Alarm)
	assert.True(t, st.Slots[1].Alarm)
	assert.Contains(t, eventTypes(t, bus, inst.ID), events.EventConsoleAlarm)

	require.NoError(t, c.DisableAlarm(inst.ID, -1))
	st, err = c.Status(inst.ID)
	require.NoError(t, err)
	assert.False(t, st.Alarm)
	assert.False(t, st.Blink)
	assert.Contains(t, eventTypes(t, bus, inst.ID), events.EventConsoleAlarmCleared)

	assert.ErrorIs(t, c.DisableAlarm(inst.ID, 9), ErrSlotNotFound)
}

func TestController_Blinker(t *testing.T) {
	c, _ := newTestController(t)
	inst := createWithCommands(t, c, "blinky", "echo traceback follows; exit 0\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	waitStopped(t, c, inst.ID)

	blink := func(want bool) func() bool {
		return func() bool {
			st, err := c.Status(inst.ID)
			return err == nil && st.Alarm && st.Blink == want
		}
	}
	require.Eventually(t, blink(true), waitFor, 5*time.Millisecond)
	require.Eventually(t, blink(false), waitFor, 5*time.Millisecond)
}

func TestController_SpawnFailure(t *testing.T) {
	c, bus := newTestController(t, "/nonexistent/shell")
	inst := createWithCommands(t, c, "broken", "echo a\necho b\n")

	err := c.StartInstance(context.Background(), inst.ID)
	var spawnErr *supervisor.SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.False(t, c.IsRunning(inst.ID))

	st, err := c.Status(inst.ID)
	require.NoError(t, err)
	require.Len(t, st.Slots, 2)
	for _, sl := range st.Slots {
		assert.Equal(t, SlotFailed, sl.State)
		assert.NotEmpty(t, sl.Error)
		assert.False(t, sl.InputEnabled)
	}
	assert.Contains(t, consoleText(t, c, inst.ID, 1), "Failed to start")
	assert.Contains(t, eventTypes(t, bus, inst.ID), events.EventProcessSpawnFailed)
	assert.NotContains(t, eventTypes(t, bus, inst.ID), events.EventInstanceStarted)
}

func TestController_TemplateAndEnvironment(t *testing.T) {
	c, _ := newTestController(t)
	inst := createWithCommands(t, c, "tmpl",
		"echo name={{.Instance.Name}} exe={{.Hub.Executable}} slot=$INSTANCEHUB_CONSOLE id=$INSTANCEHUB_INSTANCE_ID; exit 0\n")

	require.NoError(t, c.StartInstance(context.Background(), inst.ID))
	waitStopped(t, c, inst.ID)

	text := consoleText(t, c, inst.ID, 0)
	assert.Contains(t, text, "name=tmpl exe=/usr/local/bin/instancehub slot=0 id="+inst.ID)
}

func TestController_StartReplacesConsoles(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	inst := createWithCommands(t, c, "again", "echo run; exit 0\n")

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	waitStopped(t, c, inst.ID)
	first, err := c.Console(inst.ID, 0)
	require.NoError(t, err)

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	waitStopped(t, c, inst.ID)
	second, err := c.Console(inst.ID, 0)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, first.Closed())
	assert.Equal(t, 1, strings.Count(second.Text(), "process finished"))
}

func TestController_CloseConsole(t *testing.T) {
	c, bus := newTestController(t)
	ctx := context.Background()
	inst := createWithCommands(t, c, "tabs", "sleep 30\nsleep 30\n")

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	sink, err := c.Console(inst.ID, 0)
	require.NoError(t, err)

	require.NoError(t, c.CloseConsole(ctx, inst.ID, 0))
	assert.True(t, sink.Closed())
	_, err = c.Console(inst.ID, 0)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	assert.True(t, c.IsRunning(inst.ID))

	require.NoError(t, c.CloseConsole(ctx, inst.ID, 1))
	assert.False(t, c.IsRunning(inst.ID))
	assert.ErrorIs(t, c.CloseConsole(ctx, inst.ID, 1), ErrSlotNotFound)
	assert.Contains(t, eventTypes(t, bus, inst.ID), events.EventConsoleClosed)
}

func TestController_SaveCommandsWithRestart(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	inst := createWithCommands(t, c, "edit", "sleep 30\n")

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	require.NoError(t, c.SaveCommands(ctx, inst.ID, "echo edited; sleep 30\n", true))
	assert.True(t, c.IsRunning(inst.ID))
	require.Eventually(t, func() bool {
		return strings.Contains(consoleText(t, c, inst.ID, 0), "edited")
	}, waitFor, 10*time.Millisecond)

	err := c.WriteFile(ctx, inst.ID, "other.txt", "x", false)
	assert.ErrorIs(t, err, instance.ErrUnknownFile)
}

func TestController_DeleteRunningInstance(t *testing.T) {
	c, bus := newTestController(t)
	ctx := context.Background()
	inst := createWithCommands(t, c, "doomed", "sleep 30\n")

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	sink, err := c.Console(inst.ID, 0)
	require.NoError(t, err)

	require.NoError(t, c.DeleteInstance(ctx, inst.ID))
	assert.False(t, c.IsRunning(inst.ID))
	assert.True(t, sink.Closed())

	_, err = c.Status(inst.ID)
	assert.ErrorIs(t, err, instance.ErrNotFound)
	_, statErr := os.Stat(inst.Dir)
	assert.True(t, os.IsNotExist(statErr))
	assert.Contains(t, eventTypes(t, bus, inst.ID), events.EventInstanceDeleted)

	list, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestController_DeleteWhenDirectoryRemovalFails(t *testing.T) {
	busy := errors.New("directory busy")
	c, bus, kv := newTestControllerWithStore(t, nil, instance.WithRemoveAll(func(string) error { return busy }))
	ctx := context.Background()
	inst := createWithCommands(t, c, "stuck", "sleep 30\n")

	require.NoError(t, c.StartInstance(ctx, inst.ID))
	sink, err := c.Console(inst.ID, 0)
	require.NoError(t, err)

	err = c.DeleteInstance(ctx, inst.ID)
	var dirErr *instance.DirRemovalError
	require.True(t, errors.As(err, &dirErr))
	assert.ErrorIs(t, err, busy)
	assert.DirExists(t, inst.Dir)

	assert.False(t, c.IsRunning(inst.ID))
	assert.True(t, sink.Closed())
	_, err = c.Status(inst.ID)
	assert.ErrorIs(t, err, instance.ErrNotFound)

	_, ok, err := kv.Get("instances/" + inst.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, eventTypes(t, bus, inst.ID), events.EventInstanceDeleted)

	list, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestController_RenameAndList(t *testing.T) {
	c, _ := newTestController(t)
	b := createWithCommands(t, c, "bravo", "echo b; exit 0\n")
	createWithCommands(t, c, "alpha", "echo a; exit 0\n")

	renamed, err := c.RenameInstance(b.ID, "charlie")
	require.NoError(t, err)
	assert.Equal(t, b.ID, renamed.ID)
	assert.Equal(t, b.Dir, renamed.Dir)

	list, err := c.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "charlie", list[1].Name)
	assert.False(t, list[1].Running)
	assert.Empty(t, list[1].Slots)

	_, err = c.RenameInstance(b.ID, "  ")
	assert.ErrorIs(t, err, instance.ErrInvalidName)
}

func TestController_StopAll(t *testing.T) {
	c, bus := newTestController(t)
	ctx := context.Background()
	a := createWithCommands(t, c, "a", "sleep 30\n")
	b := createWithCommands(t, c, "b", "sleep 30\nsleep 30\n")

	require.NoError(t, c.StartInstance(ctx, a.ID))
	require.NoError(t, c.StartInstance(ctx, b.ID))
	assert.Len(t, c.RunningInstances(), 2)

	require.NoError(t, c.StopAll(ctx))
	assert.False(t, c.AnyRunning())
	assert.Contains(t, eventTypes(t, bus, a.ID), events.EventInstanceStopped)
	assert.Contains(t, eventTypes(t, bus, b.ID), events.EventInstanceStopped)
}

func TestController_StatusChildren(t *testing.T) {
	c, _ := newTestController(t)
	inst := createWithCommands(t, c, "kids", "sleep 30\n")

	require.NoError(t, c.StartInstance(context.Background(), inst.ID))
	require.Eventually(t, func() bool {
		st, err := c.Status(inst.ID)
		return err == nil && len(st.Slots) == 1 && len(st.Slots[0].Children) == 1 && st.Slots[0].Children[0] == "sleep"
	}, waitFor, 20*time.Millisecond)
}
