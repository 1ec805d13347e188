// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Rule maps one source file to a destination and a backup directory.
type Rule struct {
	File   string // file name inside Source
	Source string
	Dest   string
	Backup string
	Line   int // line number in the rules file
}

// SourcePath is the absolute path of the watched file.
func (r Rule) SourcePath() string { return filepath.Join(r.Source, r.File) }

// DestPath is where changes are copied to.
func (r Rule) DestPath() string { return filepath.Join(r.Dest, r.File) }

// BackupPath is where the initial copy is kept.
func (r Rule) BackupPath() string { return filepath.Join(r.Backup, r.File) }

// LineError reports a malformed line in a rules file.
type LineError struct {
	Line int
	Text string
	Msg  string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// SampleRules is written when a rules file does not exist.
const SampleRules = "# Format: file | source dir | destination dir | backup dir\n" +
	"# example.txt | . | ./dest | ./backup\n"

// ParseRules reads "file | source | dest | backup" lines. Blank lines and
// lines starting with # are skipped. Relative directories are resolved
// against baseDir. Malformed lines are returned as *LineError and do not
// stop parsing.
func ParseRules(r io.Reader, baseDir string) ([]Rule, []error) {
	var (
		rules []Rule
		errs  []error
	)

	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) != 4 {
			errs = append(errs, &LineError{Line: n, Text: line, Msg: "expected file | source | dest | backup"})
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
			errs = append(errs, &LineError{Line: n, Text: line, Msg: "empty field"})
			continue
		}
		if filepath.Base(parts[0]) != parts[0] {
			errs = append(errs, &LineError{Line: n, Text: line, Msg: "file must be a plain name"})
			continue
		}

		rules = append(rules, Rule{
			File:   parts[0],
			Source: resolve(baseDir, parts[1]),
			Dest:   resolve(baseDir, parts[2]),
			Backup: resolve(baseDir, parts[3]),
			Line:   n,
		})
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return rules, errs
}

// LoadRules parses the rules file at path. A missing file is created with
// SampleRules and reported as os.ErrNotExist.
func LoadRules(path string) ([]Rule, []error, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, []byte(SampleRules), 0644); werr != nil {
			return nil, nil, fmt.Errorf("rules file %s not found, and writing a sample failed: %w", path, werr)
		}
		return nil, nil, fmt.Errorf("rules file %s not found, wrote a sample: %w", path, os.ErrNotExist)
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, nil, err
	}
	rules, errs := ParseRules(f, base)
	return rules, errs, nil
}

func resolve(base, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}
