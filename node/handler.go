//go:build linux || darwin
// +build linux darwin

package node

// Handler builds the reply for the bytes a connection accumulated since its last reply.
type Handler interface {
	Reply(data []byte) []byte
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(data []byte) []byte

func (f HandlerFunc) Reply(data []byte) []byte {
	return f(data)
}

// ReverseHandler is the default Handler.
type ReverseHandler struct{}

func (ReverseHandler) Reply(data []byte) []byte {
	return Reverse(data)
}
