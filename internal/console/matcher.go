// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import "strings"

// Matcher decides whether console text looks like trouble.
type Matcher interface {
	Match(text string) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(text string) bool

// Match calls f(text).
func (f MatcherFunc) Match(text string) bool { return f(text) }

// SubstringMatcher matches when any pattern occurs in the text, ignoring case.
// It is a crude heuristic: a command that prints "error" in a harmless
// context still matches.
type SubstringMatcher struct {
	patterns []string
}

// DefaultAlarmPatterns are the substrings that raise a console alarm by default.
var DefaultAlarmPatterns = []string{"error", "traceback"}

// NewSubstringMatcher creates a matcher for the given patterns. Empty
// patterns are ignored.
func NewSubstringMatcher(patterns ...string) *SubstringMatcher {
	m := &SubstringMatcher{}
	for _, p := range patterns {
		if p != "" {
			m.patterns = append(m.patterns, strings.ToLower(p))
		}
	}
	return m
}

// Match implements Matcher.
func (m *SubstringMatcher) Match(text string) bool {
	if len(m.patterns) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range m.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// overlap is how many trailing bytes of the previous chunk must be kept so a
// pattern split across two chunks still matches.
func (m *SubstringMatcher) overlap() int {
	n := 0
	for _, p := range m.patterns {
		if len(p) > n {
			n = len(p)
		}
	}
	return n
}
