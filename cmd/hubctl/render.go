// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wingedpig/instancehub/pkg/client"
)

// Color palette
var (
	colorRunning = lipgloss.Color("76")  // green
	colorStopped = lipgloss.Color("242") // gray
	colorAlarm   = lipgloss.Color("196") // bright red
	colorHeader  = lipgloss.Color("39")  // blue
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorHeader).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	runningStyle = lipgloss.NewStyle().Foreground(colorRunning)
	stoppedStyle = lipgloss.NewStyle().Foreground(colorStopped)
	alarmStyle   = lipgloss.NewStyle().Foreground(colorAlarm).Bold(true)
)

// led renders the running indicator. An alarmed instance shows red,
// dimmed during the blinker's off phase.
func led(inst client.Instance) string {
	switch {
	case inst.Alarm && inst.Blink:
		return alarmStyle.Render("●")
	case inst.Alarm:
		return alarmStyle.Faint(true).Render("○")
	case inst.Running:
		return runningStyle.Render("●")
	default:
		return stoppedStyle.Render("○")
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorStopped)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// instanceTable renders one row per instance.
func instanceTable(list []client.Instance) string {
	t := newTable("", "NAME", "KIND", "STATE", "CONSOLES", "ID")
	for _, inst := range list {
		running := 0
		for _, sl := range inst.Slots {
			if sl.State == client.SlotRunning {
				running++
			}
		}
		state := "stopped"
		if inst.Running {
			state = "running"
		}
		consoles := "-"
		if len(inst.Slots) > 0 {
			consoles = fmt.Sprintf("%d/%d", running, len(inst.Slots))
		}
		t.Row(led(inst), inst.Name, inst.Kind, state, consoles, inst.ID)
	}
	return t.Render()
}

// slotTable renders one row per console.
func slotTable(inst client.Instance) string {
	t := newTable("#", "STATE", "PID", "EXIT", "ALARM", "CHILDREN", "COMMAND")
	for _, sl := range inst.Slots {
		pid := "-"
		if sl.PID > 0 {
			pid = strconv.Itoa(sl.PID)
		}
		exit := "-"
		if sl.ExitCode != nil {
			exit = strconv.Itoa(*sl.ExitCode)
		}
		alarm := ""
		if sl.Alarm {
			alarm = alarmStyle.Render("!")
		}
		state := sl.State
		if sl.Error != "" {
			state += ": " + truncate(sl.Error, 30)
		}
		command := sl.Command
		if command == "" {
			command = stoppedStyle.Render("(shell)")
		}
		t.Row(strconv.Itoa(sl.Index), state, pid, exit, alarm, strings.Join(sl.Children, ","), truncate(command, 50))
	}
	return t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// confirm asks a yes/no question and reads the answer from in. Anything
// but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// shutdownQuestion is asked before shutting down a daemon with running
// instances.
func shutdownQuestion(summary *client.ShutdownSummary, names map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d instance(s) still running:\n", len(summary.Running))
	for _, id := range summary.Running {
		name := names[id]
		if name == "" {
			name = id
		}
		fmt.Fprintf(&b, "  %s\n", name)
	}
	b.WriteString("Stop them all and shut down?")
	return b.String()
}
