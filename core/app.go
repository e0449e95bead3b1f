package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 15 * time.Second

type App struct {
	Registry *Registry
	Logger   *slog.Logger

	// ingress modules accept outside traffic; they are shut down before the
	// rest of the registry so no new work arrives while shared state goes away.
	ingress         []Module
	shutdownTimeout time.Duration
}

type AppOption func(*App)

// WithIngress marks modules that must stop first on shutdown.
func WithIngress(mods ...Module) AppOption {
	return func(a *App) { a.ingress = append(a.ingress, mods...) }
}

func WithShutdownTimeout(d time.Duration) AppOption {
	return func(a *App) { a.shutdownTimeout = d }
}

func NewApp(logger *slog.Logger, registry *Registry, opts ...AppOption) *App {
	a := &App{
		Registry:        registry,
		Logger:          logger,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run initializes all modules, ingress last, blocks until ctx is done or
// the process is signalled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	// 1) Initialize; a failing module does not stop the others
	initErr := errors.Join(
		a.Registry.InitializeModules(ctx, a.internal()),
		a.Registry.InitializeModules(ctx, a.ingress),
	)
	if initErr != nil {
		a.Logger.Warn("some modules failed to initialize", "error", initErr)
		if !a.ingressReady() {
			shutdownErr := a.Stop()
			return errors.Join(fmt.Errorf("startup: %w", initErr), shutdownErr)
		}
	}

	// 2) Wait for signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case <-ctx.Done():
	case sig := <-stop:
		a.Logger.Info("received signal", "signal", sig.String())
	}

	return a.Stop()
}

// Stop shuts down ingress modules first, then the whole registry.
func (a *App) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	for _, m := range a.ingress {
		if !m.Initialized() {
			continue
		}
		a.Logger.Info("stopping ingress", "module", m.ID())
		if err := m.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown ingress %s: %w", m.ID(), err))
		}
	}
	if err := a.Registry.ShutdownAll(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// internal returns the registered modules that are not ingress.
func (a *App) internal() []Module {
	var out []Module
	for _, m := range a.Registry.Modules() {
		if !slices.Contains(a.ingress, m) {
			out = append(out, m)
		}
	}
	return out
}

// ingressReady reports whether at least one enabled ingress module came up,
// or there is no ingress at all.
func (a *App) ingressReady() bool {
	if len(a.ingress) == 0 {
		return true
	}
	for _, m := range a.ingress {
		if m.Enabled() && m.Initialized() {
			return true
		}
	}
	return false
}
