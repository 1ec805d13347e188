// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the instancehub API.
//
// instancehub runs named instances, each a list of shell commands with one
// console per command. This package gives typed access to every endpoint
// of the daemon.
//
// # Getting Started
//
//	c := client.New("http://127.0.0.1:7733")
//
//	// Create an instance and start it
//	inst, err := c.Instances.Create(ctx, "backend", client.KindApp)
//	inst, err = c.Instances.Start(ctx, inst.ID)
//
//	// Read console 0
//	con, err := c.Consoles.Get(ctx, inst.ID, 0, 0)
//
// # API Versioning
//
// The version is sent via the InstanceHub-Version header on each request.
// Pin a version with [WithVersion]:
//
//	c := client.New("http://127.0.0.1:7733", client.WithVersion(client.Version20261001))
//
// # Error Handling
//
// API errors are returned as *APIError values:
//
//	_, err := c.Instances.Get(ctx, "unknown")
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == client.ErrCodeNotFound {
//	    ...
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is an instancehub API client.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client

	// Instances manages instances, their commands and their files.
	Instances *InstanceClient

	// Consoles reads, feeds and restarts individual consoles.
	Consoles *ConsoleClient

	// Events queries and streams the event log.
	Events *EventClient

	// Daemon reports the daemon version and shuts it down.
	Daemon *DaemonClient
}

// Option configures a [Client].
type Option func(*Client)

// New creates a new API client for the daemon at baseURL (e.g.
// "http://127.0.0.1:7733"). Any trailing slash is removed.
//
// By default the client uses [LatestVersion] and a 30-second timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		version: LatestVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Instances = &InstanceClient{c: c}
	c.Consoles = &ConsoleClient{c: c}
	c.Events = &EventClient{c: c}
	c.Daemon = &DaemonClient{c: c}

	return c
}

// WithVersion sets the API version to use for all requests.
func WithVersion(v string) Option {
	return func(c *Client) {
		c.version = v
	}
}

// WithHTTPClient sets a custom HTTP client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout for all requests.
//
// The default is 30 seconds. Stopping an instance waits for its processes
// to exit, so callers stopping slow instances may want more.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Version returns the API version being used.
func (c *Client) Version() string {
	return c.version
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// apiResponse is the standard API response envelope.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// Error codes returned by the daemon.
const (
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeSpawn      = "SPAWN_ERROR"
	ErrCodeFile       = "FILE_ERROR"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// APIError represents an error response from the daemon.
type APIError struct {
	// Code is a machine-readable error code, one of the ErrCode constants.
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details contains additional error information, if available.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// get performs a GET request to the given path.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// post performs a POST request to the given path with no body.
func (c *Client) post(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil)
}

// postJSON performs a POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

// sendJSON performs a request with a JSON body.
func (c *Client) sendJSON(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(data))
}

// delete performs a DELETE request to the given path.
func (c *Client) delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// do performs an HTTP request and parses the response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set(VersionHeader, c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse reads and parses an API response.
func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Try to parse as standard envelope
	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		// If we can't parse it and status is bad, return error
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		// Return raw body for non-envelope responses
		return respBody, nil
	}

	// Check for error in envelope
	if apiResp.Error != nil {
		return nil, apiResp.Error
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return apiResp.Data, nil
}

// decode unmarshals data into a new T.
func decode[T any](data json.RawMessage, what string) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", what, err)
	}
	return &v, nil
}
