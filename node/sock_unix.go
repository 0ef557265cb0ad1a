//go:build linux || darwin
// +build linux darwin

package node

import (
	"golang.org/x/sys/unix"
	"net"
	"os"
	"strconv"
)

// accept takes one pending connection off lnFd. The returned socket is non-blocking.
// EAGAIN is returned as is, so callers can stop draining.
func accept(lnFd int) (int, string, error) {
	for {
		fd, sa, err := unix.Accept(lnFd)
		if err != nil {
			if isInterrupted(err) {
				continue
			}
			return -1, "", os.NewSyscallError("accept", err)
		}

		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			return -1, "", os.NewSyscallError("setnonblock", err)
		}
		return fd, sockaddrString(sa), nil
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IPv4(addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3]).String()
		return net.JoinHostPort(ip, strconv.Itoa(addr.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(addr.Addr[:]).String(), strconv.Itoa(addr.Port))
	case *unix.SockaddrUnix:
		return addr.Name
	default:
		return "unknown"
	}
}
