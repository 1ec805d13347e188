// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// setProcAttrs puts the shell in its own process group so a kill reaches
// everything it started.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree sends SIGKILL to the process group led by p.
func killTree(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return p.Kill()
	}
	return nil
}

// startPTY starts cmd on a new pseudo-terminal. The shell becomes a session
// leader, so its pid is also its process group id.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	cmd.SysProcAttr = nil
	return pty.StartWithSize(cmd, &pty.Winsize{Rows: 50, Cols: 200})
}
