package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/skekre98/modserver/core"
)

const ServerID = "http-server"

// Server accepts connections and runs a Session for each of them.
type Server struct {
	*core.Base

	handler RequestHandler
	opts    ServerOptions
	logger  *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	cancel   context.CancelFunc
	acceptWG sync.WaitGroup
	connWG   sync.WaitGroup
}

func NewServer(h RequestHandler, opts ServerOptions) *Server {
	if opts.Mode == "" {
		opts.Mode = ModeConcurrent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("module", ServerID)
	if opts.Session.Logger == nil {
		opts.Session.Logger = logger
	}
	s := &Server{
		handler: h,
		opts:    opts,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
	s.Base = core.NewBase(core.Info{ID: ServerID, Name: "HTTP Server"}, s)
	return s
}

// OnInitialize binds the listener and starts accepting.
func (s *Server) OnInitialize(context.Context) error {
	switch s.opts.Mode {
	case ModeConcurrent, ModeSerial:
	default:
		return fmt.Errorf("unknown server mode %q", s.opts.Mode)
	}
	addr := net.JoinHostPort(s.opts.Address, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.Serve(ln)
	return nil
}

// Serve starts accepting on ln in the background.
func (s *Server) Serve(ln net.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.ln = ln
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("http server starting", "addr", ln.Addr().String(), "mode", s.opts.Mode, "workers", s.opts.Workers)
	s.acceptWG.Add(1)
	go func() {
		defer s.acceptWG.Done()
		s.acceptLoop(ctx, ln)
	}()
}

// Addr is the bound address, or nil before the server starts.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	var slots chan struct{}
	if s.opts.Mode == ModeConcurrent && s.opts.Workers > 0 {
		slots = make(chan struct{}, s.opts.Workers)
	}
	release := func() {
		if slots != nil {
			<-slots
		}
	}

	var backoff time.Duration
	for {
		if slots != nil {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			release()
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.logger.Warn("accept error, retrying", "error", err, "delay", backoff)
				time.Sleep(backoff)
				continue
			}
			s.logger.Error("accept failed", "error", err)
			return
		}
		backoff = 0

		if s.opts.Mode == ModeSerial {
			s.serveConn(ctx, conn)
			continue
		}
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			defer release()
			s.serveConn(ctx, conn)
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	s.track(conn, true)
	defer s.track(conn, false)
	sessionsTotal.Inc()
	sessionsActive.Inc()
	defer sessionsActive.Dec()

	if err := NewSession(conn, s.handler, s.opts.Session).Serve(ctx); err != nil {
		s.logger.Warn("session ended with error", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// OnShutdown stops accepting, asks sessions to finish and waits for them
// until ctx expires, after which remaining connections are closed.
func (s *Server) OnShutdown(ctx context.Context) error {
	s.mu.Lock()
	ln, cancel := s.ln, s.cancel
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	err := ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	cancel()
	s.acceptWG.Wait()

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		<-done
		err = errors.Join(err, ctx.Err())
	}
	s.logger.Info("http server stopped")
	return err
}
