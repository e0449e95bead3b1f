package web

import (
	"log/slog"
	"time"
)

// Mode selects how accepted connections are served.
type Mode string

const (
	// ModeConcurrent runs one goroutine per connection.
	ModeConcurrent Mode = "concurrent"
	// ModeSerial serves connections one at a time on the accept loop.
	ModeSerial Mode = "serial"
)

type SessionOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// IdleTimeout bounds the wait for the next request on a kept-alive
	// connection. Zero falls back to ReadTimeout.
	IdleTimeout time.Duration
	// MaxBodyBytes caps request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type ServerOptions struct {
	Address string
	Port    int
	Mode    Mode
	// Workers bounds concurrently served connections in ModeConcurrent.
	// Zero means no bound.
	Workers int
	Session SessionOptions
	Logger  *slog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l.With("module", ID)
		}
	}
}

func WithFileCache(c StaticCache) DispatcherOption {
	return func(d *Dispatcher) { d.cache = c }
}

// WithRoutes lets callers register routes at construction time.
func WithRoutes(f func(d *Dispatcher)) DispatcherOption {
	return func(d *Dispatcher) { f(d) }
}

// WithStaticFiles registers the wildcard route.
func WithStaticFiles() DispatcherOption {
	return func(d *Dispatcher) { d.EnableStaticFiles() }
}
