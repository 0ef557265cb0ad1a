//go:build linux || darwin
// +build linux darwin

package node

import (
	"fmt"
	"golang.org/x/sys/unix"
	"os"
)

// ReadChunkSize is the default buffer growth increment.
const ReadChunkSize = 4096

// Conn is one accepted client. It exclusively owns its socket and its buffer;
// buf[:n] holds the input accumulated since the last reply.
type Conn struct {
	fd    int
	token Token
	peer  string

	buf   []byte
	n     int
	chunk int

	state connState
}

func newConn(fd int, token Token, peer string, chunk int) *Conn {
	if chunk <= 0 {
		chunk = ReadChunkSize
	}
	return &Conn{
		fd:    fd,
		token: token,
		peer:  peer,
		chunk: chunk,
	}
}

func (c *Conn) Fd() int {
	return c.fd
}

func (c *Conn) Token() Token {
	return c.token
}

func (c *Conn) Peer() string {
	return c.peer
}

// Buffered returns the input waiting for a reply.
func (c *Conn) Buffered() []byte {
	return c.buf[:c.n]
}

// handleEvent services one readiness event, write phase first. done reports that the
// peer closed its write half and the connection must be cleaned up.
func (c *Conn) handleEvent(p *Poller, h Handler, ev Event) (done bool, err error) {
	if ev.IsWritable() {
		if err := c.writeReply(p, h); err != nil {
			return false, err
		}
	}

	if ev.IsReadable() {
		return c.readInput(p)
	}

	return false, nil
}

// writeReply sends the reply for the buffered input in a single write.
// On would-block nothing changes and the write is retried on the next notification.
func (c *Conn) writeReply(p *Poller, h Handler) error {
	if c.state != hasPendingReply {
		return nil
	}

	reply := h.Reply(c.buf[:c.n])
	for {
		n, err := unix.Write(c.fd, reply)
		switch {
		case err == nil && n < len(reply):
			return fmt.Errorf("write fd %d: wrote %d of %d bytes: %w", c.fd, n, len(reply), ErrShortWrite)
		case err == nil:
			c.n = 0
			return c.setState(p, awaitingInput)
		case isInterrupted(err):
			continue
		case isWouldBlock(err):
			return nil
		default:
			return os.NewSyscallError("write", err)
		}
	}
}

// readInput drains the socket into the buffer until it would block.
func (c *Conn) readInput(p *Poller) (closed bool, err error) {
	if len(c.buf) < c.chunk || c.n == len(c.buf) {
		c.grow()
	}

	for {
		n, err := unix.Read(c.fd, c.buf[c.n:])
		switch {
		case err == nil && n == 0:
			return true, nil
		case err == nil:
			c.n += n
			if c.n == len(c.buf) {
				c.grow()
			}
			if err := c.setState(p, hasPendingReply); err != nil {
				return false, err
			}
		case isInterrupted(err):
			continue
		case isWouldBlock(err):
			return false, nil
		default:
			return false, os.NewSyscallError("read", err)
		}
	}
}

// grow extends the buffer by one chunk. It never shrinks.
func (c *Conn) grow() {
	c.buf = append(c.buf, make([]byte, c.chunk)...)
}

func (c *Conn) setState(p *Poller, s connState) error {
	if c.state == s {
		return nil
	}
	if err := p.Reregister(c.fd, c.token, s.interest()); err != nil {
		return err
	}
	c.state = s
	return nil
}

func (c *Conn) Close() error {
	return closeFd(c.fd)
}
