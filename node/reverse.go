//go:build linux || darwin
// +build linux darwin

package node

import (
	"bytes"
	"unicode"
	"unicode/utf8"
)

const (
	// BadInputReply is sent instead of a reversal when the accumulated bytes are not valid UTF-8.
	BadInputReply = "__bad_input__"

	LineTerminator = "\r\n"
)

// Reverse trims trailing whitespace from data, reverses it rune by rune and appends
// LineTerminator. Multi-byte sequences stay intact.
func Reverse(data []byte) []byte {
	if !utf8.Valid(data) {
		return []byte(BadInputReply)
	}

	text := bytes.TrimRightFunc(data, unicode.IsSpace)
	out := make([]byte, 0, len(text)+len(LineTerminator))
	for len(text) > 0 {
		r, size := utf8.DecodeLastRune(text)
		out = utf8.AppendRune(out, r)
		text = text[:len(text)-size]
	}
	return append(out, LineTerminator...)
}
