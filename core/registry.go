package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// Registry is the sole owner of all modules, keyed by id.
//
// Iteration over modules goes by sorted id so logs are stable. Modules must
// not rely on that order: anything one module needs from another is wired
// explicitly before InitializeAll.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		modules: make(map[string]Module),
		logger:  logger,
	}
}

// Register stores m under its id and hands it back for typed access.
func Register[T Module](r *Registry, m T) (T, error) {
	if err := r.add(m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}

// MustRegister is Register for startup wiring, where a duplicate id is a
// configuration bug.
func MustRegister[T Module](r *Registry, m T) T {
	out, err := Register(r, m)
	if err != nil {
		panic(err)
	}
	return out
}

func (r *Registry) add(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := m.ID()
	if _, dup := r.modules[id]; dup {
		return &DuplicateModuleIDError{ID: id}
	}
	r.modules[id] = m
	return nil
}

// Get looks a module up by id.
func (r *Registry) Get(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// GetAs looks a module up by id and asserts its concrete type.
func GetAs[T Module](r *Registry, id string) (T, bool) {
	m, ok := r.Get(id)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := m.(T)
	return t, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Modules returns the registered modules ordered by id.
func (r *Registry) Modules() []Module {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.modules[id])
	}
	return out
}

// InitializeAll initializes every enabled module. A failing module is logged
// and the remaining ones are still attempted; the joined failures are
// returned.
func (r *Registry) InitializeAll(ctx context.Context) error {
	return r.InitializeModules(ctx, r.Modules())
}

// InitializeModules applies the InitializeAll policy to mods, in the given
// order. Disabled and already initialized modules are skipped.
func (r *Registry) InitializeModules(ctx context.Context, mods []Module) error {
	var errs []error
	for _, m := range mods {
		if !m.Enabled() {
			r.logger.Debug("skipping disabled module", "module", m.ID())
			continue
		}
		if m.Initialized() {
			continue
		}
		r.logger.Info("initializing module", "module", m.ID(), "name", m.Name(), "version", m.Version())
		if err := m.Initialize(ctx); err != nil {
			r.logger.Error("failed to initialize module", "module", m.ID(), "error", err)
			errs = append(errs, &ModuleInitError{ID: m.ID(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// ShutdownAll shuts down every enabled, initialized module. Calling it again
// is a no-op.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	var errs []error
	for _, m := range r.Modules() {
		if !m.Enabled() || !m.Initialized() {
			continue
		}
		r.logger.Info("shutting down module", "module", m.ID())
		if err := m.Shutdown(ctx); err != nil {
			r.logger.Error("module shutdown failed", "module", m.ID(), "error", err)
			errs = append(errs, fmt.Errorf("shutdown module %s: %w", m.ID(), err))
		}
	}
	return errors.Join(errs...)
}
