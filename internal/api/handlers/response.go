// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/wingedpig/instancehub/internal/hub"
	"github.com/wingedpig/instancehub/internal/instance"
	"github.com/wingedpig/instancehub/internal/supervisor"
)

// Response is the standard API response wrapper.
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
	Meta  *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MetaInfo contains response metadata.
type MetaInfo struct {
	Timestamp time.Time `json:"timestamp"`
}

// Error codes
const (
	ErrNotFound      = "NOT_FOUND"
	ErrBadRequest    = "BAD_REQUEST"
	ErrInternalError = "INTERNAL_ERROR"
	ErrConflict      = "CONFLICT"
	ErrSpawnError    = "SPAWN_ERROR"
	ErrFileError     = "FILE_ERROR"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	writeResponse(w, status, Response{Data: data})
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

// WriteErrorWithDetails writes an error response with details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	writeResponse(w, status, Response{Error: &ErrorInfo{Code: code, Message: message, Details: details}})
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	resp.Meta = &MetaInfo{Timestamp: time.Now()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("write response: %v", err)
	}
}

// WriteHubError maps controller and store errors to API error responses.
func WriteHubError(w http.ResponseWriter, err error) {
	var (
		spawnErr *supervisor.SpawnError
		readErr  *instance.FileReadError
		writeErr *instance.FileWriteError
		ioErr    *instance.IOError
	)
	switch {
	case errors.Is(err, instance.ErrNotFound), errors.Is(err, hub.ErrSlotNotFound):
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, hub.ErrAlreadyRunning):
		WriteError(w, http.StatusConflict, ErrConflict, err.Error())
	case errors.Is(err, instance.ErrInvalidName),
		errors.Is(err, instance.ErrInvalidCommand),
		errors.Is(err, instance.ErrUnknownFile):
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
	case errors.As(err, &spawnErr):
		WriteErrorWithDetails(w, http.StatusInternalServerError, ErrSpawnError, err.Error(), map[string]interface{}{
			"instance": spawnErr.Key.InstanceID,
			"index":    spawnErr.Key.Index,
			"shell":    spawnErr.Shell,
		})
	case errors.As(err, &readErr), errors.As(err, &writeErr), errors.As(err, &ioErr):
		WriteError(w, http.StatusInternalServerError, ErrFileError, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(v)
}

const maxBodySize = 4 << 20
