//go:build linux || darwin
// +build linux darwin

package node

import (
	"errors"
	"golang.org/x/sys/unix"
	"strings"
)

var (
	ErrAlreadyRegistered = errors.New("fd already registered")
	ErrNotRegistered     = errors.New("fd not registered")
	ErrShortWrite        = errors.New("short write")
	ErrServerStopped     = errors.New("server stopped")
	ErrNotListening      = errors.New("server not listening")
	ErrPollerClosed      = errors.New("poller closed")
)

type MultiError []error

func (m MultiError) Error() string {
	var b strings.Builder
	b.WriteString("multiple errors:")
	for _, err := range m {
		b.WriteString("\n- " + err.Error())
	}
	return b.String()
}

// isWouldBlock reports whether the operation should be resumed on the next readiness event.
func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// isInterrupted reports whether the operation should be retried in place.
func isInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

func isFDValid(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func closeFd(fd int) error {
	if isFDValid(fd) {
		if err := unix.Close(fd); err != nil {
			return err
		}
	}
	return nil
}
