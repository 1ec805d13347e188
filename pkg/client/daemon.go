// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
)

// DaemonClient reports on and shuts down the daemon.
type DaemonClient struct {
	c *Client
}

// Version returns the daemon's version and the API version it served.
func (d *DaemonClient) Version(ctx context.Context) (*VersionInfo, error) {
	data, err := d.c.get(ctx, "/api/v1/version")
	if err != nil {
		return nil, err
	}
	return decode[VersionInfo](data, "version")
}

// ShutdownSummary lists the running instances so a caller can confirm
// before calling [DaemonClient.Shutdown].
func (d *DaemonClient) ShutdownSummary(ctx context.Context) (*ShutdownSummary, error) {
	data, err := d.c.get(ctx, "/api/v1/shutdown")
	if err != nil {
		return nil, err
	}
	return decode[ShutdownSummary](data, "shutdown summary")
}

// Shutdown asks the daemon to stop every instance and exit. It returns
// what was running when the request was accepted.
func (d *DaemonClient) Shutdown(ctx context.Context) (*ShutdownSummary, error) {
	data, err := d.c.post(ctx, "/api/v1/shutdown")
	if err != nil {
		return nil, err
	}
	return decode[ShutdownSummary](data, "shutdown summary")
}
