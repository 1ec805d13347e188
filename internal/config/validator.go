// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/wingedpig/instancehub/internal/console"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateStore(cfg, errs)
	v.validateShell(cfg, errs)
	v.validateConsole(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateStore(cfg *Config, errs *ValidationError) {
	switch cfg.Store.Backend {
	case "", StoreFile, StoreSQLite:
	default:
		errs.Add("store.backend", fmt.Sprintf("unknown backend %q (want %q or %q)", cfg.Store.Backend, StoreFile, StoreSQLite))
	}
}

func (v *Validator) validateShell(cfg *Config, errs *ValidationError) {
	for i, arg := range cfg.Shell.Command {
		if i == 0 && strings.TrimSpace(arg) == "" {
			errs.Add("shell.command", "executable must not be empty")
		}
	}
	for k := range cfg.Shell.Env {
		if k == "" || strings.Contains(k, "=") {
			errs.Add("shell.env", fmt.Sprintf("invalid variable name %q", k))
		}
	}
}

func (v *Validator) validateConsole(cfg *Config, errs *ValidationError) {
	if cfg.Console.Encoding != "" {
		if _, err := console.LookupEncoding(cfg.Console.Encoding); err != nil {
			errs.Add("console.encoding", err.Error())
		}
	}
	for i, p := range cfg.Console.AlarmPatterns {
		if p == "" {
			errs.Add(fmt.Sprintf("console.alarm_patterns[%d]", i), "must not be empty")
		}
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := []struct {
		field string
		value string
	}{
		{"console.blink_interval", cfg.Console.BlinkInterval},
		{"events.history.max_age", cfg.Events.History.MaxAge},
		{"monitor.debounce", cfg.Monitor.Debounce},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			errs.Add(d.field, fmt.Sprintf("invalid duration format: %s", err))
		} else if parsed < 0 {
			errs.Add(d.field, "must be positive")
		}
	}

	if cfg.Events.History.MaxPerInstance < 0 {
		errs.Add("events.history.max_per_instance", "must be positive")
	}
	if cfg.Events.History.MaxEvents < 0 {
		errs.Add("events.history.max_events", "must be positive")
	}
}
