//go:build linux || darwin
// +build linux darwin

package node

import (
	"errors"
	"fmt"
	"github.com/fzft/go-reverse-echo/log"
	"go.uber.org/zap"
	"sync/atomic"
)

// Reactor is the single-threaded event loop. It waits on the Poller and routes every event
// of a batch before waiting again. Only Serve's goroutine touches its state.
type Reactor struct {
	poller  *Poller
	ln      *listener
	conns   *ConnTable
	handler Handler
	events  *Events
	chunk   int

	connCnt *atomic.Int64
}

func newReactor(poller *Poller, ln *listener, handler Handler, cfg Config, connCnt *atomic.Int64) *Reactor {
	return &Reactor{
		poller:  poller,
		ln:      ln,
		conns:   NewConnTable(),
		handler: handler,
		events:  NewEvents(cfg.MaxEvents),
		chunk:   cfg.ReadChunkSize,
		connCnt: connCnt,
	}
}

// run loops until a loop-fatal error. ErrServerStopped is returned after Wake.
func (r *Reactor) run() error {
	for {
		if err := r.poller.Wait(r.events, -1); err != nil {
			return fmt.Errorf("poll wait: %w", err)
		}

		for _, ev := range r.events.All() {
			if err := r.dispatch(ev); err != nil {
				return err
			}
		}
	}
}

func (r *Reactor) dispatch(ev Event) error {
	log.Logger.Debug("poll event", zap.Uint64("token", uint64(ev.Token)), zap.Stringer("ready", ev.Ready))

	switch ev.Token {
	case ListenerToken:
		return r.accept()
	case wakerToken:
		return ErrServerStopped
	default:
		return r.serve(ev)
	}
}

// accept drains every pending connection, the listener is edge-triggered.
func (r *Reactor) accept() error {
	for {
		fd, peer, err := accept(r.ln.fd)
		if err != nil {
			if isWouldBlock(err) {
				return nil
			}
			log.Logger.Error("accept error", zap.Error(err))
			return fmt.Errorf("accept: %w", err)
		}

		token := r.conns.NextToken()
		if err := r.poller.Register(fd, token, Readable); err != nil {
			closeFd(fd)
			log.Logger.Error("register connection error", zap.Uint64("token", uint64(token)), zap.Error(err))
			return fmt.Errorf("register connection %d: %w", token, err)
		}

		r.conns.Insert(newConn(fd, token, peer, r.chunk))
		r.connCnt.Add(1)

		log.Logger.Info("accepted connection", zap.String("peer", peer), zap.Uint64("token", uint64(token)))
	}
}

// serve runs the connection handler. Handler errors only end that connection.
func (r *Reactor) serve(ev Event) error {
	c, ok := r.conns.Get(ev.Token)
	if !ok {
		return nil
	}

	done, err := c.handleEvent(r.poller, r.handler, ev)
	if err != nil {
		level := log.Logger.Warn
		if errors.Is(err, ErrShortWrite) {
			level = log.Logger.Error
		}
		level("connection error", zap.String("peer", c.peer), zap.Uint64("token", uint64(c.token)), zap.Error(err))
		done = true
	}
	if !done {
		return nil
	}
	return r.cleanup(c)
}

// cleanup deregisters and drops a finished connection.
func (r *Reactor) cleanup(c *Conn) error {
	r.conns.Remove(c.token)
	r.connCnt.Add(-1)

	log.Logger.Info("cleanup connection", zap.String("peer", c.peer), zap.Uint64("token", uint64(c.token)))

	if err := r.poller.Deregister(c.fd); err != nil {
		c.Close()
		return fmt.Errorf("deregister connection %d: %w", c.token, err)
	}
	if err := c.Close(); err != nil {
		log.Logger.Warn("close connection error", zap.Uint64("token", uint64(c.token)), zap.Error(err))
	}
	return nil
}

// closeAll deregisters and closes every live connection.
func (r *Reactor) closeAll() error {
	var errs MultiError
	r.conns.Each(func(c *Conn) {
		if err := r.poller.Deregister(c.fd); err != nil {
			errs = append(errs, fmt.Errorf("deregister connection %d: %w", c.token, err))
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection %d: %w", c.token, err))
		}
		r.conns.Remove(c.token)
		r.connCnt.Add(-1)
	})
	if len(errs) > 0 {
		return errs
	}
	return nil
}
