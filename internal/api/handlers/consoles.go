// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// ConsoleHandler handles console-related API requests.
type ConsoleHandler struct {
	hub Hub
}

// NewConsoleHandler creates a new console handler.
func NewConsoleHandler(h Hub) *ConsoleHandler {
	return &ConsoleHandler{hub: h}
}

// ConsoleResponse is a console's text after a sequence number.
type ConsoleResponse struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	Seq          int64  `json:"seq"`
	Alarm        bool   `json:"alarm"`
	InputEnabled bool   `json:"input_enabled"`
	Closed       bool   `json:"closed"`
}

// InputRequest is the body of POST .../consoles/{index}/input.
type InputRequest struct {
	Text string `json:"text"`
}

// RestartRequest is the body of POST .../consoles/{index}/restart.
type RestartRequest struct {
	Command string `json:"command"`
}

// ConsoleMessage is exchanged over the console websocket. The server sends
// "output" and "closed" messages; clients send "input".
type ConsoleMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Console message types
const (
	MessageOutput = "output"
	MessageInput  = "input"
	MessageClosed = "closed"
)

func slotVars(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil || index < 0 {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid console index")
		return "", 0, false
	}
	return vars["id"], index, true
}

// Get returns console text. ?since=N returns only what was appended after
// sequence N.
func (h *ConsoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, index, ok := slotVars(w, r)
	if !ok {
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	sink, err := h.hub.Console(id, index)
	if err != nil {
		WriteHubError(w, err)
		return
	}
	text, seq := sink.Since(since)
	WriteJSON(w, http.StatusOK, ConsoleResponse{
		Index:        index,
		Text:         text,
		Seq:          seq,
		Alarm:        sink.Alarm(),
		InputEnabled: sink.InputEnabled(),
		Closed:       sink.Closed(),
	})
}

// Input sends a line to the console's process.
func (h *ConsoleHandler) Input(w http.ResponseWriter, r *http.Request) {
	id, index, ok := slotVars(w, r)
	if !ok {
		return
	}
	var req InputRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.hub.WriteInput(id, index, req.Text); err != nil {
		WriteHubError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"index": index, "sent": true})
}

// Restart replaces the console's command and restarts it.
func (h *ConsoleHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id, index, ok := slotVars(w, r)
	if !ok {
		return
	}
	var req RestartRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.hub.RestartCommand(context.Background(), id, index, req.Command); err != nil {
		WriteHubError(w, err)
		return
	}
	st, err := h.hub.Status(id)
	if err != nil {
		WriteHubError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// Close kills the console's process and discards the console.
func (h *ConsoleHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, index, ok := slotVars(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := h.hub.CloseConsole(ctx, id, index); err != nil {
		WriteHubError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"index": index, "closed": true})
}

// ClearAlarm clears the alarm of one console (?index=N) or all of them.
func (h *ConsoleHandler) ClearAlarm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	index := -1
	if s := r.URL.Query().Get("index"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid console index")
			return
		}
		index = n
	}
	if err := h.hub.DisableAlarm(id, index); err != nil {
		WriteHubError(w, err)
		return
	}
	st, err := h.hub.Status(id)
	if err != nil {
		WriteHubError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// WebSocket streams console output and accepts input lines. ?since=N
// replays what was appended after sequence N before live output.
func (h *ConsoleHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	id, index, ok := slotVars(w, r)
	if !ok {
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	sink, err := h.hub.Console(id, index)
	if err != nil {
		WriteHubError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Console WebSocket: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Subscribe before reading the backlog so nothing falls in between.
	chunks := sink.Subscribe()
	defer sink.Unsubscribe(chunks)
	backlog, seq := sink.Since(since)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// gorilla/websocket allows one concurrent writer.
	var writeMu sync.Mutex
	write := func(msg ConsoleMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	if err := write(ConsoleMessage{Type: MessageOutput, Text: backlog, Seq: seq}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ConsoleMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != MessageInput {
				continue
			}
			if err := h.hub.WriteInput(id, index, msg.Text); err != nil {
				log.Printf("Console WebSocket: input for %s[%d]: %v", id, index, err)
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// The console was replaced or discarded.
				write(ConsoleMessage{Type: MessageClosed, Seq: seq})
				writeMu.Lock()
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "console closed"))
				writeMu.Unlock()
				return
			}
			if chunk.Sequence <= seq {
				continue
			}
			text := chunk.Text
			if chunk.Sequence > seq+1 {
				// Chunks were dropped for a slow reader; resend from the sink.
				text, chunk.Sequence = sink.Since(seq)
			}
			seq = chunk.Sequence
			if err := write(ConsoleMessage{Type: MessageOutput, Text: text, Seq: seq}); err != nil {
				return
			}
		case <-pingTicker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
