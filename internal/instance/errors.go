// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for ids that are not in the index.
	ErrNotFound = errors.New("instance not found")

	// ErrInvalidName is returned for empty or multi-line display names.
	ErrInvalidName = errors.New("invalid instance name")

	// ErrInvalidCommand is returned when a replacement command line would not
	// survive a reload as the same slot (blank, comment, or multi-line).
	ErrInvalidCommand = errors.New("invalid command line")

	// ErrUnknownFile is returned for instance files other than the known ones.
	ErrUnknownFile = errors.New("unknown instance file")
)

// IOError reports a failure to create an instance's backing directory or files.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FileReadError reports a command or rules file that exists but cannot be read.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// FileWriteError reports a command or rules file that cannot be written.
type FileWriteError struct {
	Path string
	Err  error
}

func (e *FileWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *FileWriteError) Unwrap() error { return e.Err }

// DirRemovalError reports that an instance was removed from the index but its
// directory could not be deleted. The directory may remain on disk.
type DirRemovalError struct {
	ID  string
	Dir string
	Err error
}

func (e *DirRemovalError) Error() string {
	return fmt.Sprintf("instance %s deleted but directory %s was not removed: %v", e.ID, e.Dir, e.Err)
}

func (e *DirRemovalError) Unwrap() error { return e.Err }
