//go:build linux
// +build linux

package node

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"io"
	"os"
	"testing"
)

type connFixture struct {
	p    *Poller
	c    *Conn
	peer int
}

func newConnFixture(t *testing.T) *connFixture {
	t.Helper()
	p := newTestPoller(t)
	local, peer := socketPair(t)

	c := newConn(local, 7, "pair", ReadChunkSize)
	require.NoError(t, p.Register(local, c.token, Readable))
	return &connFixture{p: p, c: c, peer: peer}
}

func (f *connFixture) send(t *testing.T, data []byte) {
	t.Helper()
	n, err := unix.Write(f.peer, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func (f *connFixture) handle(t *testing.T, ready Interest) bool {
	t.Helper()
	done, err := f.c.handleEvent(f.p, ReverseHandler{}, Event{Token: f.c.token, Ready: ready})
	require.NoError(t, err)
	return done
}

// receive reads exactly n bytes from the blocking peer end.
func (f *connFixture) receive(t *testing.T, n int) string {
	t.Helper()
	dup, err := unix.Dup(f.peer)
	require.NoError(t, err)
	file := os.NewFile(uintptr(dup), "peer")
	defer file.Close()

	buf := make([]byte, n)
	_, err = io.ReadFull(file, buf)
	require.NoError(t, err)
	return string(buf)
}

func (f *connFixture) interest(t *testing.T) Interest {
	t.Helper()
	_, interest, ok := f.p.Registered(f.c.fd)
	require.True(t, ok)
	return interest
}

func TestConnReadSwitchesToWritable(t *testing.T) {
	f := newConnFixture(t)
	f.send(t, []byte("abc\r\n"))

	done := f.handle(t, Readable)

	assert.False(t, done)
	assert.Equal(t, "abc\r\n", string(f.c.Buffered()))
	assert.Equal(t, hasPendingReply, f.c.state)
	assert.Equal(t, Writable, f.interest(t))
}

func TestConnReplySwitchesBackToReadable(t *testing.T) {
	f := newConnFixture(t)
	f.send(t, []byte("abc\r\n"))
	f.handle(t, Readable)

	done := f.handle(t, Writable)

	assert.False(t, done)
	assert.Equal(t, "cba\r\n", f.receive(t, 5))
	assert.Equal(t, awaitingInput, f.c.state)
	assert.Empty(t, f.c.Buffered())
	assert.Equal(t, Readable, f.interest(t))
}

func TestConnChunksAreConcatenated(t *testing.T) {
	f := newConnFixture(t)
	f.send(t, []byte("hel"))
	f.handle(t, Readable)
	f.send(t, []byte("lo\n"))
	f.handle(t, Readable)

	f.handle(t, Writable)

	assert.Equal(t, "olleh\r\n", f.receive(t, 7))
}

func TestConnBadInputKeepsConnection(t *testing.T) {
	f := newConnFixture(t)
	f.send(t, []byte{0xff})
	f.handle(t, Readable)
	f.handle(t, Writable)
	assert.Equal(t, BadInputReply, f.receive(t, len(BadInputReply)))

	f.send(t, []byte("ok\n"))
	assert.False(t, f.handle(t, Readable))
	f.handle(t, Writable)
	assert.Equal(t, "ko\r\n", f.receive(t, 4))
}

func TestConnBufferGrowth(t *testing.T) {
	f := newConnFixture(t)
	in := bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz"), 400)
	require.Greater(t, len(in), 2*ReadChunkSize)
	f.send(t, in)

	f.handle(t, Readable)

	assert.Equal(t, len(in), len(f.c.Buffered()))
	assert.Zero(t, len(f.c.buf)%ReadChunkSize, "grows in whole chunks")
	assert.LessOrEqual(t, f.c.n, len(f.c.buf))

	f.handle(t, Writable)

	want := make([]byte, 0, len(in)+2)
	for i := len(in) - 1; i >= 0; i-- {
		want = append(want, in[i])
	}
	want = append(want, LineTerminator...)
	assert.Equal(t, string(want), f.receive(t, len(want)))
}

func TestConnBufferNeverShrinks(t *testing.T) {
	f := newConnFixture(t)
	f.send(t, bytes.Repeat([]byte("x"), ReadChunkSize+1))
	f.handle(t, Readable)
	f.handle(t, Writable)
	f.receive(t, ReadChunkSize+1+len(LineTerminator))
	grown := len(f.c.buf)

	f.send(t, []byte("y\n"))
	f.handle(t, Readable)

	assert.Equal(t, grown, len(f.c.buf))
	assert.Equal(t, "y\n", string(f.c.Buffered()))
}

func TestConnPeerCloseWrite(t *testing.T) {
	f := newConnFixture(t)
	require.NoError(t, unix.Shutdown(f.peer, unix.SHUT_WR))

	assert.True(t, f.handle(t, Readable))
}

func TestConnDataThenCloseWriteDropsInput(t *testing.T) {
	f := newConnFixture(t)
	f.send(t, []byte("abc"))
	require.NoError(t, unix.Shutdown(f.peer, unix.SHUT_WR))

	assert.True(t, f.handle(t, Readable))

	// no reply was written before the close
	require.NoError(t, unix.SetNonblock(f.peer, true))
	buf := make([]byte, 16)
	_, err := unix.Read(f.peer, buf)
	assert.True(t, isWouldBlock(err), "unexpected result %v", err)
}

func TestConnWritableWithoutPendingReply(t *testing.T) {
	f := newConnFixture(t)

	assert.False(t, f.handle(t, Writable))
	assert.Equal(t, awaitingInput, f.c.state)
	assert.Equal(t, Readable, f.interest(t))
}

func TestConnWriteWouldBlock(t *testing.T) {
	f := newConnFixture(t)
	f.send(t, []byte("abc"))
	f.handle(t, Readable)

	// fill the socket until the kernel refuses more
	filler := bytes.Repeat([]byte("z"), 4096)
	for {
		_, err := unix.Write(f.c.fd, filler)
		if err != nil {
			require.True(t, isWouldBlock(err), "unexpected error %v", err)
			break
		}
	}

	assert.False(t, f.handle(t, Writable))
	assert.Equal(t, hasPendingReply, f.c.state)
	assert.Equal(t, "abc", string(f.c.Buffered()))
	assert.Equal(t, Writable, f.interest(t))
}

func TestConnShortWriteIsFatal(t *testing.T) {
	f := newConnFixture(t)
	f.send(t, []byte("abc"))
	f.handle(t, Readable)

	filler := bytes.Repeat([]byte("z"), 4096)
	for {
		_, err := unix.Write(f.c.fd, filler)
		if err != nil {
			break
		}
	}
	huge := HandlerFunc(func([]byte) []byte {
		return bytes.Repeat([]byte("r"), 1<<20)
	})
	// free a little room so the next write is partial
	f.receive(t, 2*4096)

	_, err := f.c.handleEvent(f.p, huge, Event{Token: f.c.token, Ready: Writable})
	assert.ErrorIs(t, err, ErrShortWrite)
}

func TestConnReadError(t *testing.T) {
	f := newConnFixture(t)
	require.NoError(t, unix.Close(f.c.fd))

	_, err := f.c.handleEvent(f.p, ReverseHandler{}, Event{Token: f.c.token, Ready: Readable})
	assert.Error(t, err)
}
