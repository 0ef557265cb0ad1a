//go:build linux || darwin
// +build linux darwin

package node

import "strings"

// Interest is the set of readiness conditions a registration is notified for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) IsReadable() bool {
	return i&Readable != 0
}

func (i Interest) IsWritable() bool {
	return i&Writable != 0
}

func (i Interest) String() string {
	var parts []string
	if i.IsReadable() {
		parts = append(parts, "READABLE")
	}
	if i.IsWritable() {
		parts = append(parts, "WRITABLE")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

type connState uint8

const (
	awaitingInput connState = iota
	hasPendingReply
)

// interest maps a connection state to the only interest registered for it.
func (s connState) interest() Interest {
	if s == hasPendingReply {
		return Writable
	}
	return Readable
}
