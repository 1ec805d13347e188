// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/wingedpig/instancehub/pkg/client"
)

var openCmd = &cobra.Command{
	Use:   "open <instance> <index>",
	Short: "Move a console's command into this terminal",
	Long: `open runs the console's command in an interactive shell in this terminal,
inside the instance directory, and closes the console in the daemon. The shell
stays open after the command ends. The daemon must run on this machine.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		slot, err := findSlot(ref, index)
		if err != nil {
			return err
		}
		if info, err := os.Stat(ref.Dir); err != nil || !info.IsDir() {
			return fmt.Errorf("instance directory %s is not on this machine", ref.Dir)
		}

		argv := externalArgs(runtime.GOOS, os.Getenv("SHELL"), slot.Command)
		ext := exec.Command(argv[0], argv[1:]...)
		ext.Dir = ref.Dir
		ext.Stdin, ext.Stdout, ext.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := ext.Start(); err != nil {
			return fmt.Errorf("open shell: %w", err)
		}

		// Interrupts belong to the shell now
		signal.Ignore(os.Interrupt)

		if err := apiClient.Consoles.Close(cmd.Context(), ref.ID, index); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: console %d was not closed: %v\n", index, err)
		}
		return ext.Wait()
	},
}

func findSlot(inst *client.Instance, index int) (*client.Slot, error) {
	for i := range inst.Slots {
		if inst.Slots[i].Index == index {
			return &inst.Slots[i], nil
		}
	}
	return nil, fmt.Errorf("instance %s has no console %d", inst.Name, index)
}

// externalArgs builds the argv of an interactive shell that first runs
// command. An empty command opens a plain shell.
func externalArgs(goos, userShell, command string) []string {
	if goos == "windows" {
		if command == "" {
			return []string{"cmd.exe"}
		}
		return []string{"cmd.exe", "/k", command}
	}

	shell := userShell
	if shell == "" {
		shell = "/bin/sh"
	}
	if command == "" {
		return []string{shell}
	}
	// $0 is the shell itself, so exec replaces sh -c with an interactive one
	return []string{shell, "-c", command + "\nexec \"$0\"", shell}
}
