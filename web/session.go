package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

const DefaultMaxBodyBytes int64 = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// aLongTimeAgo is a deadline that has already passed; setting it unblocks
// a pending read.
var aLongTimeAgo = time.Unix(1, 0)

type sessionState int

const (
	stateReading sessionState = iota
	stateDispatching
	stateWriting
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateReading:
		return "reading"
	case stateDispatching:
		return "dispatching"
	case stateWriting:
		return "writing"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("sessionState(%d)", int(s))
	}
}

// Session serves the requests of one connection in order: the next request
// is not read before the previous response has been written.
type Session struct {
	conn    net.Conn
	remote  string
	br      *bufio.Reader
	bw      *bufio.Writer
	handler RequestHandler
	opts    SessionOptions
	logger  *slog.Logger

	state  sessionState
	served int

	raw *http.Request
	req *Request
	res *Response
}

func NewSession(conn net.Conn, h RequestHandler, opts SessionOptions) *Session {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Session{
		conn:    conn,
		remote:  remote,
		br:      bufio.NewReader(conn),
		bw:      bufio.NewWriter(conn),
		handler: h,
		opts:    opts,
		logger:  logger.With("remote", remote),
		state:   stateReading,
	}
}

// Serve runs the read, dispatch, write loop until the peer goes away, a
// response requires closing, a transport error occurs, or ctx is done. The
// connection is released on every path. A clean close returns nil.
func (s *Session) Serve(ctx context.Context) error {
	defer s.close()
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	var result error
	for s.state != stateClosed {
		var err error
		switch s.state {
		case stateReading:
			err = s.read(ctx)
		case stateDispatching:
			s.dispatch(ctx)
		case stateWriting:
			err = s.write()
		}
		if err != nil {
			result = err
			s.state = stateClosed
		}
	}
	s.logger.Debug("session closed", "served", s.served, "error", result)
	return result
}

func (s *Session) read(ctx context.Context) error {
	s.raw, s.req, s.res = nil, nil, nil
	if ctx.Err() != nil {
		s.state = stateClosed
		return nil
	}
	s.setReadDeadline()
	if ctx.Err() != nil {
		s.state = stateClosed
		return nil
	}

	raw, err := http.ReadRequest(s.br)
	if err != nil {
		if s.cleanClose(ctx, err) {
			s.state = stateClosed
			return nil
		}
		if isProtocolError(err) {
			// best effort; the connection is going away anyway
			s.res = plainResponse(http.StatusBadRequest, "Bad Request")
			_ = s.write()
		}
		return &TransportError{Op: "read", Remote: s.remote, Err: err}
	}
	raw.RemoteAddr = s.remote

	body, err := io.ReadAll(io.LimitReader(raw.Body, s.opts.MaxBodyBytes+1))
	_ = raw.Body.Close()
	if err != nil {
		return &TransportError{Op: "read", Remote: s.remote, Err: err}
	}
	s.raw = raw
	if int64(len(body)) > s.opts.MaxBodyBytes {
		s.logger.Warn("request body too large", "limit", s.opts.MaxBodyBytes)
		s.res = plainResponse(http.StatusRequestEntityTooLarge, errBodyTooLarge.Error())
		s.state = stateWriting
		return nil
	}

	s.req = requestFromHTTP(raw, body)
	s.state = stateDispatching
	return nil
}

func (s *Session) dispatch(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic while dispatching", "path", s.req.Path, "error", rec)
			s.res = plainResponse(http.StatusInternalServerError, "Internal Server Error")
		}
		s.state = stateWriting
	}()

	err := s.handler.HandleRequest(ctx, s.req, func(res *Response) error {
		s.res = res
		return nil
	})
	if err != nil || s.res == nil {
		s.logger.Error("request produced no response", "path", s.req.Path, "error", err)
		s.res = plainResponse(http.StatusInternalServerError, "Internal Server Error")
	}
}

func (s *Session) write() error {
	if s.opts.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	err := s.res.toHTTP(s.raw).Write(s.bw)
	if err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		return &TransportError{Op: "write", Remote: s.remote, Err: err}
	}
	s.served++

	if s.res.NeedsClose() || s.req == nil || !s.req.KeepAlive {
		s.state = stateClosed
	} else {
		s.state = stateReading
	}
	return nil
}

func (s *Session) setReadDeadline() {
	d := s.opts.ReadTimeout
	if s.served > 0 && s.opts.IdleTimeout > 0 {
		d = s.opts.IdleTimeout
	}
	if d > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(d))
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
}

// cleanClose reports read errors that just mean the conversation is over.
func (s *Session) cleanClose(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil:
		return true
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return true
	case errors.Is(err, os.ErrDeadlineExceeded) && s.br.Buffered() == 0:
		// idle keep-alive connection timed out between requests
		return true
	}
	return false
}

func (s *Session) close() {
	_ = s.bw.Flush()
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil && !errors.Is(err, syscall.ENOTCONN) && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("shutdown send side", "error", err)
		}
	}
	_ = s.conn.Close()
}

func isProtocolError(err error) bool {
	var ne net.Error
	return !errors.As(err, &ne) && !errors.Is(err, io.ErrUnexpectedEOF)
}

// plainResponse builds a closing text response for failures that happen
// before a request is available to dispatch.
func plainResponse(status int, body string) *Response {
	res := newResponse(&Request{ProtoMajor: 1, ProtoMinor: 1}, status)
	res.SetString("text/plain; charset=utf-8", body)
	res.Prepare()
	return res
}
