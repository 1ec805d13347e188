// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
)

// ShutdownHandler reports what is running and shuts the daemon down.
type ShutdownHandler struct {
	hub      Hub
	shutdown func()
}

// NewShutdownHandler creates a shutdown handler. shutdown is called once
// the response has been written and must not block.
func NewShutdownHandler(h Hub, shutdown func()) *ShutdownHandler {
	return &ShutdownHandler{hub: h, shutdown: shutdown}
}

// ShutdownSummary is what a client needs to confirm a shutdown.
type ShutdownSummary struct {
	AnyRunning bool     `json:"any_running"`
	Running    []string `json:"running"`
}

// Summary lists the running instances.
func (h *ShutdownHandler) Summary(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.summary())
}

// Shutdown stops every instance and the daemon.
func (h *ShutdownHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	if h.shutdown == nil {
		WriteError(w, http.StatusNotImplemented, ErrInternalError, "shutdown is not available")
		return
	}
	WriteJSON(w, http.StatusAccepted, h.summary())
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	h.shutdown()
}

func (h *ShutdownHandler) summary() ShutdownSummary {
	running := h.hub.RunningInstances()
	if running == nil {
		running = []string{}
	}
	return ShutdownSummary{AnyRunning: len(running) > 0, Running: running}
}
