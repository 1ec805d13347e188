// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCommands(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CommandsFile), []byte(content), 0644))
	return dir
}

func readCommands(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, CommandsFile))
	require.NoError(t, err)
	return string(data)
}

func TestLoadCommands(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"two commands", "echo hi\nping -c 2 127.0.0.1\n", []string{"echo hi", "ping -c 2 127.0.0.1"}},
		{"comments and blanks", "# header\n\n  echo a  \n   # indented comment\n\techo b\n", []string{"echo a", "echo b"}},
		{"crlf", "echo a\r\necho b\r\n", []string{"echo a", "echo b"}},
		{"no trailing newline", "echo a", []string{"echo a"}},
		{"empty file", "", []string{""}},
		{"only comments", "# one\n# two\n\n", []string{""}},
		{"chained", "cd app && make run", []string{"cd app && make run"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadCommands(writeCommands(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadCommands_MissingFile(t *testing.T) {
	got, err := LoadCommands(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, got)
}

func TestLoadCommands_Unreadable(t *testing.T) {
	dir := t.TempDir()
	// A directory in place of the file opens but cannot be read
	require.NoError(t, os.Mkdir(filepath.Join(dir, CommandsFile), 0755))

	_, err := LoadCommands(dir)
	var readErr *FileReadError
	assert.True(t, errors.As(err, &readErr))
}

func TestReplaceCommand(t *testing.T) {
	dir := writeCommands(t, "# header\necho zero\n\n# middle\necho one\necho two\n")

	require.NoError(t, ReplaceCommand(dir, 1, "echo changed"))
	assert.Equal(t, "# header\necho zero\n\n# middle\necho changed\necho two\n", readCommands(t, dir))

	require.NoError(t, ReplaceCommand(dir, 0, "  echo first  "))
	assert.Equal(t, "# header\necho first\n\n# middle\necho changed\necho two\n", readCommands(t, dir))

	commands, err := LoadCommands(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo first", "echo changed", "echo two"}, commands)
}

func TestReplaceCommand_PreservesCRLF(t *testing.T) {
	dir := writeCommands(t, "# c\r\necho a\r\necho b")

	require.NoError(t, ReplaceCommand(dir, 0, "echo x"))
	require.NoError(t, ReplaceCommand(dir, 1, "echo y"))
	assert.Equal(t, "# c\r\necho x\r\necho y", readCommands(t, dir))
}

func TestReplaceCommand_Appends(t *testing.T) {
	dir := writeCommands(t, "echo a")
	require.NoError(t, ReplaceCommand(dir, 3, "echo b"))
	assert.Equal(t, "echo a\necho b\n", readCommands(t, dir))

	empty := t.TempDir()
	require.NoError(t, ReplaceCommand(empty, 0, "echo new"))
	assert.Equal(t, "echo new\n", readCommands(t, empty))
}

func TestReplaceCommand_Invalid(t *testing.T) {
	dir := writeCommands(t, "echo a\n")

	for _, text := range []string{"", "   ", "# comment", "echo a\necho b"} {
		assert.ErrorIs(t, ReplaceCommand(dir, 0, text), ErrInvalidCommand, text)
	}
	assert.ErrorIs(t, ReplaceCommand(dir, -1, "echo x"), ErrInvalidCommand)
	assert.Equal(t, "echo a\n", readCommands(t, dir))
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()

	content, err := ReadFile(dir, RulesFile)
	require.NoError(t, err)
	assert.Empty(t, content)

	require.NoError(t, WriteFile(dir, RulesFile, "a | b | c | d\n"))
	content, err = ReadFile(dir, RulesFile)
	require.NoError(t, err)
	assert.Equal(t, "a | b | c | d\n", content)

	_, err = ReadFile(dir, "../secret")
	assert.ErrorIs(t, err, ErrUnknownFile)
	assert.ErrorIs(t, WriteFile(dir, "other.txt", "x"), ErrUnknownFile)
}

func TestWriteFile_Failure(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing"), CommandsFile, "x")
	var writeErr *FileWriteError
	assert.True(t, errors.As(err, &writeErr))
}
