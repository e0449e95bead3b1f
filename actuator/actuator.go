package actuator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skekre98/modserver/cache"
	"github.com/skekre98/modserver/core"
)

const ID = "actuator"

const (
	StatusUp       = "UP"
	StatusDown     = "DOWN"
	StatusDisabled = "DISABLED"
)

// CacheStats is the view of the file cache exposed on /cache.
type CacheStats interface {
	Stats() cache.Stats
}

type Options struct {
	Addr     string
	BasePath string
	Metrics  bool

	AppName    string
	AppVersion string

	Registry *core.Registry
	Cache    CacheStats
	Logger   *slog.Logger
}

// Actuator serves admin endpoints on their own listener, apart from the
// content server.
type Actuator struct {
	*core.Base

	opts    Options
	logger  *slog.Logger
	engine  *gin.Engine
	started time.Time

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
	done   chan struct{}
}

func New(opts Options) *Actuator {
	if opts.BasePath == "" {
		opts.BasePath = "/actuator"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Actuator{
		opts:    opts,
		logger:  logger.With("module", ID),
		started: time.Now(),
	}
	a.Base = core.NewBase(core.Info{ID: ID, Name: "Actuator", Version: opts.AppVersion}, a)
	a.engine = a.routes()
	return a
}

// Engine exposes the router, mainly for tests.
func (a *Actuator) Engine() *gin.Engine { return a.engine }

func (a *Actuator) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(RecoveryProblem(a.logger))
	r.Use(AccessLog(a.logger))
	r.NoRoute(func(c *gin.Context) { problem(c, http.StatusNotFound, "no such endpoint") })

	group := r.Group(a.opts.BasePath)
	group.GET("/health", a.health)
	group.GET("/info", a.info)
	group.GET("/modules", a.modules)
	if a.opts.Cache != nil {
		group.GET("/cache", func(c *gin.Context) {
			c.JSON(http.StatusOK, a.opts.Cache.Stats())
		})
	}
	if a.opts.Metrics {
		group.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return r
}

type check struct {
	Module string `json:"module"`
	Status string `json:"status"`
}

func (a *Actuator) health(c *gin.Context) {
	status := StatusUp
	checks := []check{}
	if a.opts.Registry != nil {
		for _, m := range a.opts.Registry.Modules() {
			st := StatusUp
			switch {
			case !m.Enabled():
				st = StatusDisabled
			case !m.Initialized():
				st = StatusDown
				status = StatusDown
			}
			checks = append(checks, check{Module: m.ID(), Status: st})
		}
	}
	code := http.StatusOK
	if status == StatusDown {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func (a *Actuator) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app": gin.H{
			"name":    a.opts.AppName,
			"version": a.opts.AppVersion,
		},
		"runtime": gin.H{
			"go":           runtime.Version(),
			"numGoroutine": runtime.NumGoroutine(),
			"time":         time.Now().UTC().Format(time.RFC3339),
			"uptime":       time.Since(a.started).Round(time.Second).String(),
			"pid":          os.Getpid(),
		},
	})
}

type moduleView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Enabled     bool   `json:"enabled"`
	Initialized bool   `json:"initialized"`
}

func (a *Actuator) modules(c *gin.Context) {
	out := []moduleView{}
	if a.opts.Registry != nil {
		for _, m := range a.opts.Registry.Modules() {
			out = append(out, moduleView{
				ID:          m.ID(),
				Name:        m.Name(),
				Version:     m.Version(),
				Enabled:     m.Enabled(),
				Initialized: m.Initialized(),
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (a *Actuator) OnInitialize(context.Context) error {
	ln, err := net.Listen("tcp", a.opts.Addr)
	if err != nil {
		return fmt.Errorf("actuator listen %s: %w", a.opts.Addr, err)
	}
	srv := &http.Server{
		Handler:           a.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})

	a.mu.Lock()
	a.server, a.ln, a.done = srv, ln, done
	a.mu.Unlock()

	go func() {
		defer close(done)
		a.logger.Info("actuator listening", "addr", ln.Addr().String(), "basePath", a.opts.BasePath)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("actuator server error", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address, or nil before initialization.
func (a *Actuator) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

func (a *Actuator) OnShutdown(ctx context.Context) error {
	a.mu.Lock()
	srv, done := a.server, a.done
	a.server, a.ln = nil, nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("actuator shutdown: %w", err)
	}
	<-done
	return nil
}
