// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package e2e

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/instancehub/internal/app"
	"github.com/wingedpig/instancehub/pkg/client"
)

const waitFor = 10 * time.Second

// startDaemon runs a full daemon on a free port and returns a client for it.
func startDaemon(t *testing.T) *client.Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "instancehub.hjson")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
  data_dir: "data"
  console: { blink_interval: "50ms" }
}`), 0644))

	a, err := app.New(app.Options{ConfigPath: cfgPath, Host: "127.0.0.1", Port: port, Version: "e2e"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Error("daemon did not stop")
		}
	})

	require.Eventually(t, func() bool { return a.Addr() != "" }, waitFor, 10*time.Millisecond)
	c := client.New("http://" + a.Addr())
	require.Eventually(t, func() bool {
		_, err := c.Daemon.Version(context.Background())
		return err == nil
	}, waitFor, 20*time.Millisecond)
	return c
}

func createInstance(t *testing.T, c *client.Client, name, commands string) *client.Instance {
	t.Helper()
	ctx := context.Background()
	inst, err := c.Instances.Create(ctx, name, client.KindApp)
	require.NoError(t, err)
	_, err = c.Instances.SetCommands(ctx, inst.ID, commands, false)
	require.NoError(t, err)
	return inst
}

func waitStopped(t *testing.T, c *client.Client, id string) *client.Instance {
	t.Helper()
	var inst *client.Instance
	require.Eventually(t, func() bool {
		var err error
		inst, err = c.Instances.Get(context.Background(), id)
		return err == nil && !inst.Running
	}, waitFor, 20*time.Millisecond)
	return inst
}

func consoleText(t *testing.T, c *client.Client, id string, index int) string {
	t.Helper()
	con, err := c.Consoles.Get(context.Background(), id, index, 0)
	require.NoError(t, err)
	return con.Text
}

// Two commands each get a console; the instance stops once both exit.
func TestScenario_TwoCommands(t *testing.T) {
	c := startDaemon(t)
	ctx := context.Background()
	inst := createInstance(t, c, "pair", "echo hi; exit 0\nfor i in 1 2; do echo round trip $i; sleep 0.1; done; exit 0\n")

	started, err := c.Instances.Start(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, started.Slots, 2)

	waitStopped(t, c, inst.ID)
	assert.Contains(t, consoleText(t, c, inst.ID, 0), "hi")
	text := consoleText(t, c, inst.ID, 1)
	assert.Contains(t, text, "round trip 1")
	assert.Contains(t, text, "round trip 2")
}

// An all-comment command file opens one bare shell.
func TestScenario_BareShell(t *testing.T) {
	c := startDaemon(t)
	ctx := context.Background()
	inst := createInstance(t, c, "bare", "# nothing\n\n# still nothing\n")

	started, err := c.Instances.Start(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, started.Slots, 1)
	assert.Equal(t, "", started.Slots[0].Command)
	assert.Equal(t, client.SlotRunning, started.Slots[0].State)

	require.NoError(t, c.Consoles.Input(ctx, inst.ID, 0, "echo typed; exit 0"))
	waitStopped(t, c, inst.ID)
	assert.Contains(t, consoleText(t, c, inst.ID, 0), "typed")
}

// Stopping a running instance finishes every console.
func TestScenario_Stop(t *testing.T) {
	c := startDaemon(t)
	ctx := context.Background()
	inst := createInstance(t, c, "sleepers", "sleep 30\nsleep 30\n")

	_, err := c.Instances.Start(ctx, inst.ID)
	require.NoError(t, err)

	stopped, err := c.Instances.Stop(ctx, inst.ID)
	require.NoError(t, err)
	assert.False(t, stopped.Running)
	for i := range stopped.Slots {
		assert.Contains(t, consoleText(t, c, inst.ID, i), "process finished")
	}

	summary, err := c.Daemon.ShutdownSummary(ctx)
	require.NoError(t, err)
	assert.False(t, summary.AnyRunning)
}

// Restarting one command rewrites its line and leaves the others alone.
func TestScenario_RestartSingleCommand(t *testing.T) {
	c := startDaemon(t)
	ctx := context.Background()
	inst := createInstance(t, c, "restart", "# servers\nsleep 30\nsleep 30\n")

	before, err := c.Instances.Start(ctx, inst.ID)
	require.NoError(t, err)

	after, err := c.Consoles.Restart(ctx, inst.ID, 0, "echo changed; sleep 30")
	require.NoError(t, err)
	require.Len(t, after.Slots, 2)
	assert.NotEqual(t, before.Slots[0].PID, after.Slots[0].PID)
	assert.Equal(t, before.Slots[1].PID, after.Slots[1].PID)

	f, err := c.Instances.Commands(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "# servers\necho changed; sleep 30\nsleep 30\n", f.Content)

	require.Eventually(t, func() bool {
		return strings.Contains(consoleText(t, c, inst.ID, 0), "changed")
	}, waitFor, 20*time.Millisecond)
}

// Deleting a running instance stops it and removes its directory.
func TestScenario_DeleteRunning(t *testing.T) {
	c := startDaemon(t)
	ctx := context.Background()
	inst := createInstance(t, c, "doomed", "sleep 30\n")

	_, err := c.Instances.Start(ctx, inst.ID)
	require.NoError(t, err)

	res, err := c.Instances.Delete(ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, res.Deleted)

	_, statErr := os.Stat(inst.Dir)
	assert.True(t, os.IsNotExist(statErr))

	_, err = c.Instances.Get(ctx, inst.ID)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, client.ErrCodeNotFound, apiErr.Code)

	list, err := c.Instances.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// An alarm blinks until cleared, and the events tell the story.
func TestScenario_AlarmAndEvents(t *testing.T) {
	c := startDaemon(t)
	ctx := context.Background()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.Events.Stream(streamCtx, "console.*", "")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	inst := createInstance(t, c, "noisy", "echo 'Traceback (most recent call last)'; exit 1\n")
	_, err = c.Instances.Start(ctx, inst.ID)
	require.NoError(t, err)

	select {
	case evt := <-stream:
		assert.Equal(t, "console.alarm", evt.Type)
		assert.Equal(t, inst.ID, evt.Instance)
	case <-time.After(waitFor):
		t.Fatal("no alarm event")
	}

	stopped := waitStopped(t, c, inst.ID)
	assert.True(t, stopped.Alarm)
	require.Eventually(t, func() bool {
		got, err := c.Instances.Get(ctx, inst.ID)
		return err == nil && got.Blink
	}, waitFor, 10*time.Millisecond)

	cleared, err := c.Consoles.ClearAlarm(ctx, inst.ID, -1)
	require.NoError(t, err)
	assert.False(t, cleared.Alarm)

	evts, err := c.Events.List(ctx, &client.ListOptions{Instance: inst.ID})
	require.NoError(t, err)
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, "instance.created")
	assert.Contains(t, types, "instance.started")
	assert.Contains(t, types, "process.exited")
	assert.Contains(t, types, "console.alarm_cleared")
}

// Attaching to a console streams output and forwards input.
func TestScenario_Attach(t *testing.T) {
	c := startDaemon(t)
	ctx := context.Background()
	inst := createInstance(t, c, "interactive", "# shell only\n")

	_, err := c.Instances.Start(ctx, inst.ID)
	require.NoError(t, err)

	stream, err := c.Consoles.Attach(ctx, inst.ID, 0, 0)
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.Send("echo over the wire; exit 0"))

	var out strings.Builder
	for {
		msg, err := stream.Recv()
		require.NoError(t, err)
		if msg.Type == client.MessageClosed {
			break
		}
		out.WriteString(msg.Text)
		if strings.Contains(out.String(), "process finished") {
			break
		}
	}
	assert.Contains(t, out.String(), "over the wire")
}
