// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package console holds the per-command output sinks: append-only text
// buffers with live subscribers, interactive input gating and alarm
// detection.
package console

import (
	"errors"
	"strings"
	"sync"
)

// ErrInputDisabled is returned when input is sent to a console whose process
// has finished or has not been bound yet.
var ErrInputDisabled = errors.New("console does not accept input")

// subscriberBuffer is the number of chunks a subscriber may lag behind
// before chunks are dropped for it. Dropped chunks remain available via Since.
const subscriberBuffer = 256

// Chunk is one piece of appended output with its sequence number.
type Chunk struct {
	Text     string `json:"text"`
	Sequence int64  `json:"seq"`
}

// InputFunc forwards a line of interactive input to the process.
type InputFunc func(text string) error

// Sink accumulates the output of one command slot. It is unbounded and
// outlives the process it was created for.
type Sink struct {
	mu           sync.RWMutex
	chunks       []Chunk
	size         int
	sequence     int64
	inputEnabled bool
	input        InputFunc
	matcher      Matcher
	overlap      int
	tail         string
	alarm        bool
	onAlarm      func()
	closed       bool

	subMu       sync.RWMutex
	subscribers map[chan Chunk]struct{}
}

// Option configures a Sink.
type Option func(*Sink)

// WithMatcher sets the alarm matcher. A nil matcher disables alarms.
func WithMatcher(m Matcher) Option {
	return func(s *Sink) {
		s.matcher = m
		s.overlap = 0
		if sm, ok := m.(*SubstringMatcher); ok {
			s.overlap = sm.overlap()
		}
	}
}

// WithAlarmHandler sets a callback invoked (outside the sink's lock) each
// time the sink enters the alarm state.
func WithAlarmHandler(fn func()) Option {
	return func(s *Sink) { s.onAlarm = fn }
}

// NewSink creates an empty sink using the default alarm patterns.
func NewSink(opts ...Option) *Sink {
	s := &Sink{subscribers: make(map[chan Chunk]struct{})}
	WithMatcher(NewSubstringMatcher(DefaultAlarmPatterns...))(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds text to the buffer and notifies subscribers. Appends after
// Close are ignored.
func (s *Sink) Append(text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.sequence++
	chunk := Chunk{Text: text, Sequence: s.sequence}
	s.chunks = append(s.chunks, chunk)
	s.size += len(text)

	raised := false
	if s.matcher != nil && !s.alarm {
		if s.matcher.Match(s.tail + text) {
			s.alarm = true
			raised = true
		}
	}
	s.tail = keepTail(s.tail+text, s.overlap)
	onAlarm := s.onAlarm
	s.mu.Unlock()

	s.subMu.RLock()
	for ch := range s.subscribers {
		select {
		case ch <- chunk:
		default:
		}
	}
	s.subMu.RUnlock()

	if raised && onAlarm != nil {
		onAlarm()
	}
}

// keepTail returns the last n-1 bytes of s, enough to complete a pattern of
// length n with the next chunk.
func keepTail(s string, n int) string {
	if n <= 1 {
		return ""
	}
	if len(s) > n-1 {
		return s[len(s)-(n-1):]
	}
	return s
}

// Text returns everything appended so far.
func (s *Sink) Text() string {
	text, _ := s.Since(0)
	return text
}

// Since returns the text appended after sequence seq and the current sequence.
func (s *Sink) Since(seq int64) (string, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Sequences are dense and start at 1, so chunk i has sequence i+1
	start := int(seq)
	if start < 0 {
		start = 0
	}
	if start >= len(s.chunks) {
		return "", s.sequence
	}

	var b strings.Builder
	for _, c := range s.chunks[start:] {
		b.WriteString(c.Text)
	}
	return b.String(), s.sequence
}

// Sequence returns the sequence number of the last appended chunk.
func (s *Sink) Sequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence
}

// Size returns the number of bytes held.
func (s *Sink) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// BindInput sets where accepted input is forwarded.
func (s *Sink) BindInput(fn InputFunc) {
	s.mu.Lock()
	s.input = fn
	s.mu.Unlock()
}

// SetInputEnabled toggles whether AcceptInput forwards input.
func (s *Sink) SetInputEnabled(enabled bool) {
	s.mu.Lock()
	s.inputEnabled = enabled
	s.mu.Unlock()
}

// InputEnabled reports whether the sink currently accepts input.
func (s *Sink) InputEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputEnabled && s.input != nil
}

// AcceptInput forwards a line of input to the bound process.
func (s *Sink) AcceptInput(text string) error {
	s.mu.RLock()
	enabled, input := s.inputEnabled, s.input
	s.mu.RUnlock()

	if !enabled || input == nil {
		return ErrInputDisabled
	}
	return input(text)
}

// Alarm reports whether the sink is in the alarm state.
func (s *Sink) Alarm() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alarm
}

// ClearAlarm leaves the alarm state. Text already seen does not re-raise it.
func (s *Sink) ClearAlarm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.alarm
	s.alarm = false
	s.tail = ""
	return was
}

// Subscribe returns a channel receiving every chunk appended from now on.
// The channel of a closed sink is returned already closed.
func (s *Sink) Subscribe() chan Chunk {
	ch := make(chan Chunk, subscriberBuffer)
	s.subMu.Lock()
	if s.Closed() {
		close(ch)
	} else {
		s.subscribers[ch] = struct{}{}
	}
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel. It is safe to
// call after Close.
func (s *Sink) Unsubscribe(ch chan Chunk) {
	s.subMu.Lock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subMu.Unlock()
}

// Close discards the sink: input is disabled, further appends are dropped
// and every subscriber channel is closed.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.inputEnabled = false
	s.input = nil
	s.mu.Unlock()

	s.subMu.Lock()
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Chunk]struct{})
	s.subMu.Unlock()
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
