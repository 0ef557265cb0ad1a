//go:build darwin
// +build darwin

package node

import (
	"golang.org/x/sys/unix"
	"os"
	"time"
)

type pollState struct {
	wakeR int // read end of the waker pipe, registered with the kqueue
	wakeW int
	raw   []unix.Kevent_t
}

func (p *Poller) open() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(kq)

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		unix.Close(kq)
		return os.NewSyscallError("pipe", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			unix.Close(kq)
			return os.NewSyscallError("setnonblock", err)
		}
	}

	var change unix.Kevent_t
	unix.SetKevent(&change, fds[0], unix.EVFILT_READ, unix.EV_ADD)
	if _, err := unix.Kevent(kq, []unix.Kevent_t{change}, nil, nil); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		unix.Close(kq)
		return os.NewSyscallError("kevent add", err)
	}

	p.pollFd = kq
	p.wakeR = fds[0]
	p.wakeW = fds[1]
	return nil
}

// ctl moves fd from the old interest set to the new one, one filter per readiness condition.
// EV_CLEAR makes every filter edge-triggered.
func (p *Poller) ctl(fd int, old, interest Interest) error {
	var changes []unix.Kevent_t
	changes = appendFilterChange(changes, fd, unix.EVFILT_READ, old.IsReadable(), interest.IsReadable())
	changes = appendFilterChange(changes, fd, unix.EVFILT_WRITE, old.IsWritable(), interest.IsWritable())
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.pollFd, changes, nil, nil)
	return os.NewSyscallError("kevent", err)
}

func appendFilterChange(changes []unix.Kevent_t, fd, filter int, had, want bool) []unix.Kevent_t {
	var change unix.Kevent_t
	switch {
	case want:
		unix.SetKevent(&change, fd, filter, unix.EV_ADD|unix.EV_CLEAR)
	case had:
		unix.SetKevent(&change, fd, filter, unix.EV_DELETE)
	default:
		return changes
	}
	return append(changes, change)
}

func (p *Poller) wait(events *Events, timeout time.Duration) error {
	if len(p.raw) < events.capacity {
		p.raw = make([]unix.Kevent_t, events.capacity)
	}

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	var (
		n   int
		err error
	)
	for {
		n, err = unix.Kevent(p.pollFd, nil, p.raw[:events.capacity], ts)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("kevent wait", err)
		}
		break
	}

	for i := 0; i < n; i++ {
		ev := &p.raw[i]
		fd := int(ev.Ident)
		if fd == p.wakeR {
			p.drainWaker()
			events.push(Event{Token: wakerToken, Ready: Readable})
			continue
		}

		reg, ok := p.regs[fd]
		if !ok {
			continue
		}

		var ready Interest
		switch ev.Filter {
		case unix.EVFILT_READ:
			ready |= Readable
		case unix.EVFILT_WRITE:
			ready |= Writable
		}
		// errors and EOF surface through the read path
		if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			ready |= Readable
		}
		events.push(Event{Token: reg.token, Ready: ready})
	}
	return nil
}

func (p *Poller) wake() error {
	_, err := unix.Write(p.wakeW, []byte{1})
	if err != nil && !isWouldBlock(err) {
		return os.NewSyscallError("write waker", err)
	}
	return nil
}

func (p *Poller) drainWaker() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *Poller) closeWaker() error {
	var errs MultiError
	for _, fd := range []int{p.wakeR, p.wakeW} {
		if err := closeFd(fd); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
