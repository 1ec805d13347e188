// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Files that can be read and written through [InstanceClient.GetFile].
const (
	CommandsFile = "commands.txt"
	RulesFile    = "rules.txt"
)

// InstanceClient manages instances.
//
// Access this client through [Client.Instances]:
//
//	list, err := client.Instances.List(ctx)
type InstanceClient struct {
	c *Client
}

func instancePath(id string) string {
	return "/api/v1/instances/" + url.PathEscape(id)
}

// List returns every instance sorted by name. Slot state is included but
// child process names are not.
func (s *InstanceClient) List(ctx context.Context) ([]Instance, error) {
	data, err := s.c.get(ctx, "/api/v1/instances")
	if err != nil {
		return nil, err
	}

	var list []Instance
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse instances: %w", err)
	}
	return list, nil
}

// Get returns one instance, including the child processes of its consoles.
func (s *InstanceClient) Get(ctx context.Context, id string) (*Instance, error) {
	data, err := s.c.get(ctx, instancePath(id))
	if err != nil {
		return nil, err
	}
	return decode[Instance](data, "instance")
}

// Create creates an instance. kind is [KindApp] or [KindMonitor]; empty
// means app.
func (s *InstanceClient) Create(ctx context.Context, name, kind string) (*Instance, error) {
	data, err := s.c.postJSON(ctx, "/api/v1/instances", map[string]string{"name": name, "kind": kind})
	if err != nil {
		return nil, err
	}
	return decode[Instance](data, "instance")
}

// Rename changes an instance's display name.
func (s *InstanceClient) Rename(ctx context.Context, id, name string) (*Instance, error) {
	data, err := s.c.sendJSON(ctx, http.MethodPatch, instancePath(id), map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	return decode[Instance](data, "instance")
}

// Delete stops an instance and removes it with its directory.
func (s *InstanceClient) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	data, err := s.c.delete(ctx, instancePath(id))
	if err != nil {
		return nil, err
	}
	return decode[DeleteResult](data, "delete result")
}

// Start starts one process per command. It fails with a CONFLICT error
// while any console of the instance is still running.
func (s *InstanceClient) Start(ctx context.Context, id string) (*Instance, error) {
	data, err := s.c.post(ctx, instancePath(id)+"/start")
	if err != nil {
		return nil, err
	}
	return decode[Instance](data, "instance")
}

// Stop kills every process of the instance and waits for them to exit.
func (s *InstanceClient) Stop(ctx context.Context, id string) (*Instance, error) {
	data, err := s.c.post(ctx, instancePath(id)+"/stop")
	if err != nil {
		return nil, err
	}
	return decode[Instance](data, "instance")
}

// Commands returns the instance's command file.
func (s *InstanceClient) Commands(ctx context.Context, id string) (*File, error) {
	return s.GetFile(ctx, id, CommandsFile)
}

// SetCommands replaces the command file. With restart, a running instance
// is stopped and started again on the new commands.
func (s *InstanceClient) SetCommands(ctx context.Context, id, content string, restart bool) (*File, error) {
	return s.PutFile(ctx, id, CommandsFile, content, restart)
}

// GetFile returns [CommandsFile] or [RulesFile].
func (s *InstanceClient) GetFile(ctx context.Context, id, name string) (*File, error) {
	data, err := s.c.get(ctx, instancePath(id)+"/files/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}
	return decode[File](data, "file")
}

// PutFile replaces [CommandsFile] or [RulesFile].
func (s *InstanceClient) PutFile(ctx context.Context, id, name, content string, restart bool) (*File, error) {
	path := instancePath(id) + "/files/" + url.PathEscape(name)
	if restart {
		path += "?restart=true"
	}
	data, err := s.c.sendJSON(ctx, http.MethodPut, path, map[string]string{"content": content})
	if err != nil {
		return nil, err
	}
	return decode[File](data, "file")
}
