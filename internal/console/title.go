// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"fmt"
	"strings"
)

const maxTitleLen = 25

// Title derives a short console label from a command line: the last stage
// of an && chain, shortened. For uvicorn the app module is used instead.
// An empty command is labelled by its position.
func Title(command string, index int) string {
	if command == "" {
		return fmt.Sprintf("Console %d", index+1)
	}

	parts := strings.Split(command, "&&")
	last := strings.TrimSpace(parts[len(parts)-1])

	if strings.HasPrefix(strings.ToLower(last), "uvicorn ") {
		if fields := strings.Fields(last); len(fields) > 1 {
			return fields[1]
		}
		return last
	}

	if r := []rune(last); len(r) > maxTitleLen {
		return string(r[:maxTitleLen-3]) + "..."
	}
	return last
}
