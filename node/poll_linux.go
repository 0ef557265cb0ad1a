//go:build linux
// +build linux

package node

import (
	"golang.org/x/sys/unix"
	"os"
	"time"
	"unsafe"
)

// https://copyconstruct.medium.com/the-method-to-epolls-madness-d9d2d6378642

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	writeEvents = unix.EPOLLOUT
	// every registration is edge-triggered, handlers drain until EAGAIN
	edgeTriggered = unix.EPOLLET
)

type pollState struct {
	efd int // eventfd used as waker
	raw []unix.EpollEvent
}

func (p *Poller) open() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return os.NewSyscallError("epoll_create1", err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return os.NewSyscallError("eventfd", err)
	}

	// the waker stays level-triggered until it is drained
	ev := &unix.EpollEvent{Fd: int32(efd), Events: readEvents}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, ev); err != nil {
		unix.Close(efd)
		unix.Close(epfd)
		return os.NewSyscallError("epoll_ctl add", err)
	}

	p.pollFd = epfd
	p.efd = efd
	return nil
}

func epollEvents(interest Interest) uint32 {
	events := uint32(edgeTriggered)
	if interest.IsReadable() {
		events |= readEvents
	}
	if interest.IsWritable() {
		events |= writeEvents
	}
	return events
}

// ctl moves fd from the old interest set to the new one. An empty set on either side means add or delete.
func (p *Poller) ctl(fd int, old, interest Interest) error {
	switch {
	case interest == 0:
		return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.pollFd, unix.EPOLL_CTL_DEL, fd, nil))
	case old == 0:
		return os.NewSyscallError("epoll_ctl add",
			unix.EpollCtl(p.pollFd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollEvents(interest)}))
	default:
		return os.NewSyscallError("epoll_ctl mod",
			unix.EpollCtl(p.pollFd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollEvents(interest)}))
	}
}

func (p *Poller) wait(events *Events, timeout time.Duration) error {
	if len(p.raw) < events.capacity {
		p.raw = make([]unix.EpollEvent, events.capacity)
	}
	msec := msecTimeout(timeout)

	var (
		n   int
		err error
	)
	for {
		n, err = unix.EpollWait(p.pollFd, p.raw[:events.capacity], msec)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("epoll_wait", err)
		}
		break
	}

	for i := 0; i < n; i++ {
		ev := &p.raw[i]
		fd := int(ev.Fd)
		if fd == p.efd {
			p.drainWaker()
			events.push(Event{Token: wakerToken, Ready: Readable})
			continue
		}

		reg, ok := p.regs[fd]
		if !ok {
			continue
		}

		var ready Interest
		// hangup and error surface through the read path as EOF or a read error
		if ev.Events&(readEvents|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ready |= Readable
		}
		if ev.Events&writeEvents != 0 {
			ready |= Writable
		}
		events.push(Event{Token: reg.token, Ready: ready})
	}
	return nil
}

func (p *Poller) wake() error {
	var one uint64 = 1
	_, err := unix.Write(p.efd, (*(*[8]byte)(unsafe.Pointer(&one)))[:])
	if err != nil && !isWouldBlock(err) {
		return os.NewSyscallError("write eventfd", err)
	}
	return nil
}

func (p *Poller) drainWaker() {
	var buf uint64
	_, _ = unix.Read(p.efd, (*(*[8]byte)(unsafe.Pointer(&buf)))[:])
}

func (p *Poller) closeWaker() error {
	return closeFd(p.efd)
}
