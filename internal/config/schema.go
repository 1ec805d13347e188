// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON/YAML configuration loading and command template expansion.
package config

import (
	"runtime"
	"time"
)

// Config is the root configuration structure for instancehub.
type Config struct {
	Server  ServerConfig  `json:"server"`
	DataDir string        `json:"data_dir"`
	Store   StoreConfig   `json:"store"`
	Shell   ShellConfig   `json:"shell"`
	Console ConsoleConfig `json:"console"`
	Events  EventsConfig  `json:"events"`
	Monitor MonitorConfig `json:"monitor"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// StoreConfig selects the key/value backend that persists instance names.
type StoreConfig struct {
	Backend string `json:"backend"` // "file" or "sqlite"
	Path    string `json:"path"`    // defaults to <data_dir>/hub.json or <data_dir>/hub.db
}

// ShellConfig describes the interactive shell spawned for every command slot.
type ShellConfig struct {
	Command []string          `json:"command"`
	PTY     bool              `json:"pty"`
	Env     map[string]string `json:"env"`
}

// ConsoleConfig configures console output decoding and alarm detection.
type ConsoleConfig struct {
	Encoding      string   `json:"encoding"` // e.g. "cp850"; empty means UTF-8 only
	AlarmPatterns []string `json:"alarm_patterns"`
	BlinkInterval string   `json:"blink_interval"`
}

// EventsConfig configures the event system.
type EventsConfig struct {
	History EventHistoryConfig `json:"history"`
}

// EventHistoryConfig configures event history retention.
type EventHistoryConfig struct {
	MaxEvents      int    `json:"max_events"`
	MaxAge         string `json:"max_age"`
	MaxPerInstance int    `json:"max_per_instance"`
}

// MonitorConfig configures the file-copy monitor command.
type MonitorConfig struct {
	Debounce string `json:"debounce"`
}

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// DefaultShell returns the platform shell used when shell.command is not set.
func DefaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd.exe", "/Q", "/K"}
	}
	return []string{"/bin/sh"}
}

// DefaultEncoding returns the console code page tried before UTF-8.
func DefaultEncoding() string {
	if runtime.GOOS == "windows" {
		return "cp850"
	}
	return ""
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
