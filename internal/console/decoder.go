// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Decoder turns raw process output into text. Output that is valid UTF-8
// and not plain ASCII is taken as UTF-8. Anything else goes through the
// configured console code page, and when there is none (or it fails) through
// UTF-8 with invalid bytes replaced by U+FFFD. It never fails.
//
// A UTF-8 sequence cut off at the end of a read is held back and completed
// by the next call, so multi-byte characters split across reads survive.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	primary encoding.Encoding
	lossy   *encoding.Decoder
	pending []byte
}

// NewDecoder creates a decoder for the named code page (IANA name or alias,
// e.g. "cp850"). An empty name or any UTF-8 spelling means UTF-8 only.
func NewDecoder(name string) (*Decoder, error) {
	d := &Decoder{lossy: unicode.UTF8.NewDecoder()}

	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, err
	}
	d.primary = enc
	return d, nil
}

// consoleCodePages are the DOS/Windows console code pages, looked up
// directly since their IANA names (IBM850, ...) are not what users type.
var consoleCodePages = map[string]encoding.Encoding{
	"cp437":  charmap.CodePage437,
	"cp850":  charmap.CodePage850,
	"cp852":  charmap.CodePage852,
	"cp866":  charmap.CodePage866,
	"cp1252": charmap.Windows1252,
}

// LookupEncoding resolves a console encoding name. It returns nil for UTF-8,
// which needs no primary decoder.
func LookupEncoding(name string) (encoding.Encoding, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch lower {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	if enc, ok := consoleCodePages[lower]; ok {
		return enc, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("console encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("console encoding %q is not supported", name)
	}
	return enc, nil
}

// Decode converts the next chunk of output.
func (d *Decoder) Decode(p []byte) string {
	data := p
	if len(d.pending) > 0 {
		data = append(d.pending, p...)
		d.pending = nil
	}

	cut := incompleteSuffix(data)
	head := data[:len(data)-cut]

	if d.primary != nil && !(utf8.Valid(head) && (cut > 0 || !isASCII(head))) {
		if out, err := d.primary.NewDecoder().Bytes(data); err == nil {
			return string(out)
		}
	}

	if cut > 0 {
		d.pending = append([]byte(nil), data[len(data)-cut:]...)
	}
	if utf8.Valid(head) {
		return string(head)
	}
	return d.replace(head)
}

// Flush returns whatever is still held back. Bytes that never completed a
// UTF-8 sequence go through the code page, or are replaced without one.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	data := d.pending
	d.pending = nil
	if d.primary != nil {
		if out, err := d.primary.NewDecoder().Bytes(data); err == nil {
			return string(out)
		}
	}
	return d.replace(data)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (d *Decoder) replace(data []byte) string {
	d.lossy.Reset()
	out, err := d.lossy.Bytes(data)
	if err != nil {
		// Not reachable with the UTF-8 decoder, which substitutes instead of failing
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(out)
}

// incompleteSuffix returns the length of a truncated multi-byte UTF-8
// sequence at the end of b, or 0.
func incompleteSuffix(b []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		c := b[len(b)-i]
		if !utf8.RuneStart(c) {
			continue
		}
		if c >= 0xC0 && !utf8.FullRune(b[len(b)-i:]) {
			return i
		}
		return 0
	}
	return 0
}
