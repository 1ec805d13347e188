// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wingedpig/instancehub/internal/console"
	"github.com/wingedpig/instancehub/internal/hub"
	"github.com/wingedpig/instancehub/internal/instance"
)

// stopTimeout bounds how long a request waits for killed processes to be
// reaped.
const stopTimeout = 30 * time.Second

// Hub is the part of the lifecycle controller the handlers use.
type Hub interface {
	List() ([]hub.InstanceStatus, error)
	Status(id string) (hub.InstanceStatus, error)
	CreateInstance(name string, kind instance.Kind) (instance.Instance, error)
	RenameInstance(id, name string) (instance.Instance, error)
	DeleteInstance(ctx context.Context, id string) error
	StartInstance(ctx context.Context, id string) error
	StopInstance(ctx context.Context, id string) error
	RestartCommand(ctx context.Context, id string, index int, text string) error
	WriteInput(id string, index int, text string) error
	CloseConsole(ctx context.Context, id string, index int) error
	DisableAlarm(id string, index int) error
	Console(id string, index int) (*console.Sink, error)
	ReadFile(id, name string) (string, error)
	WriteFile(ctx context.Context, id, name, content string, restart bool) error
	RunningInstances() []string
}

// InstanceHandler handles instance-related API requests.
type InstanceHandler struct {
	hub Hub
}

// NewInstanceHandler creates a new instance handler.
func NewInstanceHandler(h Hub) *InstanceHandler {
	return &InstanceHandler{hub: h}
}

// CreateRequest is the body of POST /instances.
type CreateRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

// RenameRequest is the body of PATCH /instances/{id}.
type RenameRequest struct {
	Name string `json:"name"`
}

// FileRequest is the body of PUT /instances/{id}/files/{name}.
type FileRequest struct {
	Content string `json:"content"`
}

// FileResponse is returned for instance files.
type FileResponse struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// DeleteResponse reports a deletion. Warning is set when the instance is
// gone but its directory could not be removed.
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Warning string `json:"warning,omitempty"`
}

// List returns all instances.
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.hub.List()
	if err != nil {
		WriteHubError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// Get returns one instance.
func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, http.StatusOK, mux.Vars(r)["id"])
}

// Create creates an instance.
func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind := instance.Kind(req.Kind)
	switch kind {
	case "":
		kind = instance.KindApp
	case instance.KindApp, instance.KindMonitor:
	default:
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "kind must be app or monitor")
		return
	}

	inst, err := h.hub.CreateInstance(req.Name, kind)
	if err != nil {
		WriteHubError(w, err)
		return
	}
	h.writeStatus(w, http.StatusCreated, inst.ID)
}

// Rename changes an instance's name.
func (h *InstanceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := h.hub.RenameInstance(id, req.Name); err != nil {
		WriteHubError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, id)
}

// Delete stops and deletes an instance.
func (h *InstanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	resp := DeleteResponse{ID: id, Deleted: true}
	if err := h.hub.DeleteInstance(ctx, id); err != nil {
		var dirErr *instance.DirRemovalError
		if !errors.As(err, &dirErr) {
			WriteHubError(w, err)
			return
		}
		resp.Warning = dirErr.Error()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Start starts every command of an instance.
func (h *InstanceHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	// Processes outlive the request.
	if err := h.hub.StartInstance(context.Background(), id); err != nil {
		WriteHubError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, id)
}

// Stop kills every process of an instance.
func (h *InstanceHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := h.hub.StopInstance(ctx, id); err != nil {
		WriteHubError(w, err)
		return
	}
	h.writeStatus(w, http.StatusOK, id)
}

// GetCommands returns the command file.
func (h *InstanceHandler) GetCommands(w http.ResponseWriter, r *http.Request) {
	h.getFile(w, mux.Vars(r)["id"], instance.CommandsFile)
}

// PutCommands replaces the command file. ?restart=1 restarts the instance.
func (h *InstanceHandler) PutCommands(w http.ResponseWriter, r *http.Request) {
	h.putFile(w, r, mux.Vars(r)["id"], instance.CommandsFile)
}

// GetFile returns one of the instance's editable files.
func (h *InstanceHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	h.getFile(w, vars["id"], vars["name"])
}

// PutFile replaces one of the instance's editable files.
func (h *InstanceHandler) PutFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	h.putFile(w, r, vars["id"], vars["name"])
}

func (h *InstanceHandler) getFile(w http.ResponseWriter, id, name string) {
	content, err := h.hub.ReadFile(id, name)
	if err != nil {
		WriteHubError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, FileResponse{Name: name, Content: content})
}

func (h *InstanceHandler) putFile(w http.ResponseWriter, r *http.Request, id, name string) {
	var req FileRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
		return
	}
	restart := queryBool(r, "restart")

	if err := h.hub.WriteFile(context.Background(), id, name, req.Content, restart); err != nil {
		WriteHubError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, FileResponse{Name: name, Content: req.Content})
}

func (h *InstanceHandler) writeStatus(w http.ResponseWriter, status int, id string) {
	st, err := h.hub.Status(id)
	if err != nil {
		WriteHubError(w, err)
		return
	}
	WriteJSON(w, status, st)
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
