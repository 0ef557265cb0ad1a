//go:build linux || darwin
// +build linux darwin

package node

import "math"

// Token identifies a registration with the Poller and a Conn in the ConnTable.
type Token uint64

const (
	// ListenerToken is reserved for the listening socket.
	ListenerToken Token = 0

	wakerToken Token = math.MaxUint64
)
