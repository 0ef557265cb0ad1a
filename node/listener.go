//go:build linux || darwin
// +build linux darwin

package node

import (
	"fmt"
	"golang.org/x/sys/unix"
	"net"
	"os"
)

// listener is the bound server socket, detached from the Go runtime poller so the
// event loop owns its non-blocking descriptor.
type listener struct {
	fd   int
	addr net.Addr
}

func listen(addr string) (*listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	rc, err := ln.(*net.TCPListener).SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("listener syscall conn: %w", err)
	}

	fd := -1
	var dupErr error
	if err := rc.Control(func(s uintptr) {
		fd, dupErr = unix.Dup(int(s))
	}); err != nil {
		return nil, fmt.Errorf("listener control: %w", err)
	}
	if dupErr != nil {
		return nil, os.NewSyscallError("dup", dupErr)
	}

	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}

	return &listener{fd: fd, addr: ln.Addr()}, nil
}

func (l *listener) Close() error {
	return closeFd(l.fd)
}
