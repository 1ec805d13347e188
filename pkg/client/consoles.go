// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// ConsoleClient reads and drives individual consoles. Consoles are
// addressed by instance id and zero-based index.
type ConsoleClient struct {
	c *Client
}

func consolePath(id string, index int) string {
	return instancePath(id) + "/consoles/" + strconv.Itoa(index)
}

// Get returns the console text appended after sequence since. Pass 0 for
// everything and the returned Seq on the next call to poll for more.
func (s *ConsoleClient) Get(ctx context.Context, id string, index int, since int64) (*Console, error) {
	path := consolePath(id, index)
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	data, err := s.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decode[Console](data, "console")
}

// Input sends a line to the console's process. Input for a console whose
// process has exited is dropped.
func (s *ConsoleClient) Input(ctx context.Context, id string, index int, text string) error {
	_, err := s.c.postJSON(ctx, consolePath(id, index)+"/input", map[string]string{"text": text})
	return err
}

// Restart replaces the command at index in the command file and restarts
// that console alone. index may equal the number of commands to append one.
func (s *ConsoleClient) Restart(ctx context.Context, id string, index int, command string) (*Instance, error) {
	data, err := s.c.postJSON(ctx, consolePath(id, index)+"/restart", map[string]string{"command": command})
	if err != nil {
		return nil, err
	}
	return decode[Instance](data, "instance")
}

// Close kills the console's process and discards the console.
func (s *ConsoleClient) Close(ctx context.Context, id string, index int) error {
	_, err := s.c.delete(ctx, consolePath(id, index))
	return err
}

// ClearAlarm clears the alarm of one console, or of all of them when
// index is negative.
func (s *ConsoleClient) ClearAlarm(ctx context.Context, id string, index int) (*Instance, error) {
	path := instancePath(id) + "/alarm/clear"
	if index >= 0 {
		path += "?index=" + strconv.Itoa(index)
	}
	data, err := s.c.post(ctx, path)
	if err != nil {
		return nil, err
	}
	return decode[Instance](data, "instance")
}

// Console stream message types.
const (
	MessageOutput = "output"
	MessageInput  = "input"
	MessageClosed = "closed"
)

// ConsoleMessage is one message of a console stream.
type ConsoleMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// ConsoleStream is a live attachment to a console.
type ConsoleStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Attach opens a websocket to the console. The first message holds the
// text appended after since; later messages carry live output. A message
// of type [MessageClosed] is sent when the console is replaced or closed.
func (s *ConsoleClient) Attach(ctx context.Context, id string, index int, since int64) (*ConsoleStream, error) {
	path := consolePath(id, index) + "/ws"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	conn, err := s.c.dial(ctx, path)
	if err != nil {
		return nil, err
	}
	return &ConsoleStream{conn: conn}, nil
}

// Recv blocks for the next message.
func (cs *ConsoleStream) Recv() (ConsoleMessage, error) {
	var msg ConsoleMessage
	err := cs.conn.ReadJSON(&msg)
	return msg, err
}

// Send writes a line of input to the console's process.
func (cs *ConsoleStream) Send(text string) error {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	return cs.conn.WriteJSON(ConsoleMessage{Type: MessageInput, Text: text})
}

// Close closes the stream. The console itself is unaffected.
func (cs *ConsoleStream) Close() error {
	cs.writeMu.Lock()
	cs.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	cs.writeMu.Unlock()
	return cs.conn.Close()
}

// dial opens a websocket to path on the daemon.
func (c *Client) dial(ctx context.Context, path string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set(VersionHeader, c.version)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if _, perr := c.parseResponse(resp); perr != nil {
				return nil, perr
			}
		}
		return nil, fmt.Errorf("websocket %s: %w", strings.TrimPrefix(path, "/api/v1"), err)
	}
	return conn, nil
}
