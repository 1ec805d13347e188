// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_UTF8(t *testing.T) {
	d, err := NewDecoder("")
	require.NoError(t, err)

	assert.Equal(t, "hello", d.Decode([]byte("hello")))
	assert.Equal(t, "año", d.Decode([]byte("año")))
}

func TestDecoder_SplitMultibyte(t *testing.T) {
	d, err := NewDecoder("utf-8")
	require.NoError(t, err)

	euro := []byte("€") // e2 82 ac
	assert.Equal(t, "price: ", d.Decode(append([]byte("price: "), euro[:2]...)))
	assert.Equal(t, "€5", d.Decode(append(euro[2:], '5')))
	assert.Empty(t, d.Flush())
}

func TestDecoder_InvalidBytesReplaced(t *testing.T) {
	d, err := NewDecoder("")
	require.NoError(t, err)

	out := d.Decode([]byte{'a', 0xff, 'b'})
	assert.Equal(t, "a�b", out)
}

func TestDecoder_FlushIncomplete(t *testing.T) {
	d, err := NewDecoder("")
	require.NoError(t, err)

	assert.Equal(t, "x", d.Decode([]byte{'x', 0xe2, 0x82}))
	assert.Contains(t, d.Flush(), "�")
	assert.Empty(t, d.Flush())
}

func TestDecoder_CodePage(t *testing.T) {
	d, err := NewDecoder("cp850")
	require.NoError(t, err)

	// 0xA4 is ñ and 0x82 is é in code page 850
	assert.Equal(t, "ñé", d.Decode([]byte{0xa4, 0x82}))
	assert.Equal(t, "plain", d.Decode([]byte("plain")))
}

func TestDecoder_CodePagePrefersUTF8(t *testing.T) {
	d, err := NewDecoder("cp850")
	require.NoError(t, err)

	assert.Equal(t, "héllo ✓", d.Decode([]byte("héllo ✓")))

	check := []byte("✓") // e2 9c 93
	assert.Equal(t, "ok ", d.Decode(append([]byte("ok "), check[:1]...)))
	assert.Equal(t, "✓ done", d.Decode(append(check[1:], []byte(" done")...)))

	// a held-back lead byte that is never completed is code page text
	assert.Equal(t, "x", d.Decode([]byte{'x', 0xe2}))
	assert.Equal(t, "Ô!", d.Decode([]byte{'!'}))
	assert.Equal(t, "y", d.Decode([]byte{'y', 0xe2}))
	assert.Equal(t, "Ô", d.Flush())

	// 0x82 alone is not UTF-8, so it is é in code page 850
	assert.Equal(t, "xé", d.Decode([]byte{'x', 0x82}))
}

func TestLookupEncoding(t *testing.T) {
	enc, err := LookupEncoding("UTF-8")
	require.NoError(t, err)
	assert.Nil(t, enc)

	enc, err = LookupEncoding("CP850")
	require.NoError(t, err)
	assert.NotNil(t, enc)

	enc, err = LookupEncoding("ISO-8859-1")
	require.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestDecoder_UnknownEncoding(t *testing.T) {
	_, err := NewDecoder("not-a-charset")
	assert.Error(t, err)
}

func TestIncompleteSuffix(t *testing.T) {
	assert.Equal(t, 0, incompleteSuffix(nil))
	assert.Equal(t, 0, incompleteSuffix([]byte("abc")))
	assert.Equal(t, 1, incompleteSuffix([]byte{'a', 0xe2}))
	assert.Equal(t, 2, incompleteSuffix([]byte{'a', 0xe2, 0x82}))
	assert.Equal(t, 0, incompleteSuffix([]byte("€")))
	assert.Equal(t, 3, incompleteSuffix([]byte{0xf0, 0x9f, 0x98}))
}
