// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Instance files.
const (
	CommandsFile = "commands.txt"
	RulesFile    = "rules.txt"
)

// knownFiles are the files clients may read and replace through the hub.
var knownFiles = map[string]bool{
	CommandsFile: true,
	RulesFile:    true,
}

// IsCommandLine reports whether a raw line from the command file produces a slot.
func IsCommandLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && !strings.HasPrefix(trimmed, "#")
}

// LoadCommands returns the command lines of the instance in dir. Blank and
// comment lines are dropped. The result always has at least one entry: an
// empty command means a bare interactive shell.
func LoadCommands(dir string) ([]string, error) {
	path := filepath.Join(dir, CommandsFile)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{""}, nil
	}
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	defer f.Close()

	var commands []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); IsCommandLine(line) {
			commands = append(commands, strings.TrimSpace(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}

	if len(commands) == 0 {
		return []string{""}, nil
	}
	return commands, nil
}

// ReplaceCommand rewrites the index-th command line (counting only lines
// that produce a slot) to text. Comment and blank lines keep their position
// and the line's ending is preserved. If the file has fewer commands, text is
// appended as a new line.
func ReplaceCommand(dir string, index int, text string) error {
	text = strings.TrimSpace(text)
	if index < 0 || !IsCommandLine(text) || strings.ContainsAny(text, "\r\n") {
		return ErrInvalidCommand
	}

	path := filepath.Join(dir, CommandsFile)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &FileReadError{Path: path, Err: err}
	}

	lines := strings.SplitAfter(string(data), "\n")
	n := 0
	replaced := false
	for i, line := range lines {
		if !IsCommandLine(line) {
			continue
		}
		if n == index {
			lines[i] = text + lineEnding(line)
			replaced = true
			break
		}
		n++
	}

	out := strings.Join(lines, "")
	if !replaced {
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += text + "\n"
	}

	return writeFileAtomic(path, []byte(out))
}

func lineEnding(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	}
	return ""
}

// ReadFile returns the raw contents of one of the instance's files.
// A missing file reads as empty.
func ReadFile(dir, name string) (string, error) {
	if !knownFiles[name] {
		return "", fmt.Errorf("%w: %s", ErrUnknownFile, name)
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &FileReadError{Path: path, Err: err}
	}
	return string(data), nil
}

// WriteFile replaces one of the instance's files.
func WriteFile(dir, name, content string) error {
	if !knownFiles[name] {
		return fmt.Errorf("%w: %s", ErrUnknownFile, name)
	}
	return writeFileAtomic(filepath.Join(dir, name), []byte(content))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &FileWriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &FileWriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &FileWriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return &FileWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &FileWriteError{Path: path, Err: err}
	}
	return nil
}

// defaultCommands is the command file written for new instances.
func defaultCommands(kind Kind) []byte {
	var b bytes.Buffer
	switch kind {
	case KindMonitor:
		b.WriteString("# File-copy monitor; edit " + RulesFile + " and restart.\n")
		b.WriteString("{{.Hub.Executable}} monitor " + RulesFile + "\n")
	default:
		b.WriteString("# Example commands, one shell command per line:\n")
		b.WriteString("echo Hello! This is your new instance.\n")
		if runtime.GOOS == "windows" {
			b.WriteString("ping 127.0.0.1 -n 5\n")
		} else {
			b.WriteString("ping -c 5 127.0.0.1\n")
		}
	}
	return b.Bytes()
}

// defaultRules is the rules file written for new monitor instances.
func defaultRules() []byte {
	return []byte("# Format: file | source dir | destination dir | backup dir\n" +
		"# example.txt | . | ./dest | ./backup\n")
}
