//go:build linux || darwin
// +build linux darwin

package node

import (
	"fmt"
	"sync"
	"time"
)

// Event is one readiness notification: the registration's token and the conditions that fired.
type Event struct {
	Token Token
	Ready Interest
}

func (e Event) IsReadable() bool {
	return e.Ready.IsReadable()
}

func (e Event) IsWritable() bool {
	return e.Ready.IsWritable()
}

// Events is a reusable batch filled by Poller.Wait.
type Events struct {
	list     []Event
	capacity int
}

func NewEvents(capacity int) *Events {
	if capacity <= 0 {
		capacity = 1
	}
	return &Events{
		list:     make([]Event, 0, capacity),
		capacity: capacity,
	}
}

func (e *Events) All() []Event {
	return e.list
}

func (e *Events) Len() int {
	return len(e.list)
}

func (e *Events) reset() {
	e.list = e.list[:0]
}

func (e *Events) push(ev Event) {
	e.list = append(e.list, ev)
}

type registration struct {
	token    Token
	interest Interest
}

// Poller is a wrapper around the OS readiness primitive. It keeps track of the fds that are
// registered with it, so double registration and unknown fds are reported to the caller.
// All methods except Wake must be called from the event loop goroutine.
type Poller struct {
	pollFd int
	regs   map[int]registration

	// wakeMu guards the waker descriptors, Wake may race with Close.
	wakeMu sync.Mutex
	closed bool

	pollState
}

// NewPoller creates the poll descriptor and its waker.
func NewPoller() (*Poller, error) {
	p := &Poller{
		regs: make(map[int]registration),
	}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

// Register begins notifications for fd under token.
func (p *Poller) Register(fd int, token Token, interest Interest) error {
	if _, ok := p.regs[fd]; ok {
		return fmt.Errorf("register fd %d: %w", fd, ErrAlreadyRegistered)
	}
	if err := p.ctl(fd, 0, interest); err != nil {
		return err
	}
	p.regs[fd] = registration{token: token, interest: interest}
	return nil
}

// Reregister replaces the interest set of an already registered fd.
func (p *Poller) Reregister(fd int, token Token, interest Interest) error {
	reg, ok := p.regs[fd]
	if !ok {
		return fmt.Errorf("reregister fd %d: %w", fd, ErrNotRegistered)
	}
	if err := p.ctl(fd, reg.interest, interest); err != nil {
		return err
	}
	p.regs[fd] = registration{token: token, interest: interest}
	return nil
}

// Deregister stops all notifications for fd. Deregistering twice is an error.
func (p *Poller) Deregister(fd int) error {
	reg, ok := p.regs[fd]
	if !ok {
		return fmt.Errorf("deregister fd %d: %w", fd, ErrNotRegistered)
	}
	if err := p.ctl(fd, reg.interest, 0); err != nil {
		return err
	}
	delete(p.regs, fd)
	return nil
}

// Registered returns the token and interest fd is registered with.
func (p *Poller) Registered(fd int) (Token, Interest, bool) {
	reg, ok := p.regs[fd]
	return reg.token, reg.interest, ok
}

func (p *Poller) Len() int {
	return len(p.regs)
}

// Wait blocks until at least one registered fd is ready or timeout elapses, then fills events.
// A negative timeout blocks indefinitely.
func (p *Poller) Wait(events *Events, timeout time.Duration) error {
	events.reset()
	return p.wait(events, timeout)
}

// Wake makes a blocked Wait return an event carrying the waker token. Safe from any goroutine.
func (p *Poller) Wake() error {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	return p.wake()
}

// Close releases the waker and the poll descriptor. Registered fds are not closed.
func (p *Poller) Close() error {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs MultiError
	if err := p.closeWaker(); err != nil {
		errs = append(errs, fmt.Errorf("close waker: %w", err))
	}
	if err := closeFd(p.pollFd); err != nil {
		errs = append(errs, fmt.Errorf("close poll fd %d: %w", p.pollFd, err))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func msecTimeout(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	msec := timeout.Milliseconds()
	if timeout > 0 && msec == 0 {
		msec = 1
	}
	return int(msec)
}
