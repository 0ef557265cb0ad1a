//go:build linux || darwin
// +build linux darwin

package node

import (
	"errors"
	"fmt"
	"github.com/fzft/go-reverse-echo/log"
	"go.uber.org/zap"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

const (
	DefaultAddr      = "127.0.0.1:4242"
	DefaultMaxEvents = 1024
)

type Config struct {
	// Addr is the TCP address to bind.
	Addr string

	// MaxEvents bounds the number of events returned by one poll wait.
	MaxEvents int

	// ReadChunkSize is the buffer growth increment of each connection.
	ReadChunkSize int
}

func DefaultConfig() Config {
	return Config{
		Addr:          DefaultAddr,
		MaxEvents:     DefaultMaxEvents,
		ReadChunkSize: ReadChunkSize,
	}
}

type Server struct {
	cfg     Config
	handler Handler

	poller  *Poller
	ln      *listener
	reactor *Reactor

	connCnt atomic.Int64
}

func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = ReadChunkSize
	}
	return &Server{
		cfg: cfg,
	}
}

func (s *Server) SetHandler(handler Handler) {
	s.handler = handler
}

// Listen binds the listener and registers it with a new Poller under ListenerToken.
func (s *Server) Listen() error {
	ln, err := listen(s.cfg.Addr)
	if err != nil {
		log.Logger.Error("listen error", zap.String("addr", s.cfg.Addr), zap.Error(err))
		return err
	}

	poller, err := NewPoller()
	if err != nil {
		ln.Close()
		log.Logger.Error("failed to create poller", zap.Error(err))
		return err
	}

	if err := poller.Register(ln.fd, ListenerToken, Readable); err != nil {
		poller.Close()
		ln.Close()
		log.Logger.Error("failed to add listener to poller", zap.Error(err))
		return fmt.Errorf("register listener: %w", err)
	}

	if s.handler == nil {
		s.handler = ReverseHandler{}
	}

	s.ln = ln
	s.poller = poller
	s.reactor = newReactor(poller, ln, s.handler, s.cfg, &s.connCnt)
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.addr
}

// ConnCount returns the number of live connections. Safe from any goroutine.
func (s *Server) ConnCount() int64 {
	return s.connCnt.Load()
}

// Serve runs the event loop on the calling goroutine. It returns nil after Stop,
// otherwise the loop-fatal error. Everything is released before it returns.
func (s *Server) Serve() error {
	if s.reactor == nil {
		return ErrNotListening
	}

	log.Logger.Info("listening on", zap.String("addr", s.ln.addr.String()))
	err := s.reactor.run()
	if errors.Is(err, ErrServerStopped) {
		err = nil
	}

	if closeErr := s.closeGracefully(); closeErr != nil {
		log.Logger.Warn("shutdown error", zap.Error(closeErr))
	}
	if err != nil {
		log.Logger.Error("event loop failed", zap.Error(err))
	}
	return err
}

// Stop wakes the event loop and makes Serve return. Safe from any goroutine.
func (s *Server) Stop() error {
	if s.poller == nil {
		return ErrNotListening
	}
	return s.poller.Wake()
}

// Run listens and serves until SIGINT, SIGTERM or SIGQUIT.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case sig := <-sigCh:
			log.Logger.Info("signal received", zap.String("signal", sig.String()))
			if err := s.Stop(); err != nil {
				log.Logger.Warn("stop error", zap.Error(err))
			}
		case <-done:
		}
	}()

	err := s.Serve()
	log.Logger.Info("shutting down server")
	return err
}

// closeGracefully order: listener, connections, poller.
func (s *Server) closeGracefully() error {
	var errs MultiError

	if err := s.poller.Deregister(s.ln.fd); err != nil {
		errs = append(errs, fmt.Errorf("deregister listener: %w", err))
	}
	if err := s.ln.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close listener: %w", err))
	}

	if err := s.reactor.closeAll(); err != nil {
		errs = append(errs, err)
	}

	if err := s.poller.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close poller: %w", err))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
