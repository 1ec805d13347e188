// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
)

func setProcAttrs(cmd *exec.Cmd) {}

func killTree(p *os.Process) error {
	return p.Kill()
}

func startPTY(cmd *exec.Cmd) (*os.File, error) {
	return nil, errors.New("pty mode is not supported on windows")
}
