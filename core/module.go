package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// Module is a unit of capability that participates in the server lifecycle.
type Module interface {
	ID() string
	Name() string
	Version() string
	Enabled() bool
	SetEnabled(enabled bool)
	Initialized() bool
	// Initialize runs the module's startup hook. It fails for disabled or
	// already initialized modules.
	Initialize(ctx context.Context) error
	// Shutdown runs the module's teardown hook. No-op when not initialized.
	Shutdown(ctx context.Context) error
}

// Hooks are the module-specific halves of Initialize and Shutdown.
type Hooks interface {
	OnInitialize(ctx context.Context) error
	OnShutdown(ctx context.Context) error
}

// Info identifies a module.
type Info struct {
	ID      string
	Name    string
	Version string
}

// Base implements the identity, flags and guarded lifecycle of Module.
// Concrete modules embed *Base and pass themselves as Hooks:
//
//	m := &myModule{}
//	m.Base = core.NewBase(core.Info{ID: "my-module"}, m)
type Base struct {
	info        Info
	hooks       Hooks
	enabled     atomic.Bool
	initialized atomic.Bool

	// serializes Initialize/Shutdown of this module
	mu sync.Mutex
}

func NewBase(info Info, hooks Hooks) *Base {
	if info.Name == "" {
		info.Name = info.ID
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	b := &Base{info: info, hooks: hooks}
	b.enabled.Store(true)
	return b
}

func (b *Base) ID() string              { return b.info.ID }
func (b *Base) Name() string            { return b.info.Name }
func (b *Base) Version() string         { return b.info.Version }
func (b *Base) Enabled() bool           { return b.enabled.Load() }
func (b *Base) SetEnabled(enabled bool) { b.enabled.Store(enabled) }
func (b *Base) Initialized() bool       { return b.initialized.Load() }

func (b *Base) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled.Load() {
		return ErrModuleDisabled
	}
	if b.initialized.Load() {
		return ErrAlreadyInitialized
	}
	if err := b.hooks.OnInitialize(ctx); err != nil {
		return err
	}
	b.initialized.Store(true)
	return nil
}

func (b *Base) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized.Load() {
		return nil
	}
	err := b.hooks.OnShutdown(ctx)
	b.initialized.Store(false)
	return err
}
