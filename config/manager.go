package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
)

// Manager loads configuration from ordered sources, validates it, and
// notifies subscribers of changes.
//
// Later sources override earlier ones. A reload that fails to load, decode
// or validate leaves the current configuration untouched. All methods are
// safe for concurrent use.
type Manager struct {
	sources []ConfigSource
	config  any
	binder  *Binder
	logger  *slog.Logger

	mu   sync.RWMutex
	subs []chan Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Options struct {
	// AutoReload starts a watcher per source and reloads on every change
	// until Close is called.
	AutoReload bool
	Logger     *slog.Logger
}

// NewManager performs the initial load into cfg, which must be a pointer to
// a struct using `config` and `validate` tags.
//
//	var cfg config.Root
//	mgr, err := config.NewManager(&cfg, config.Options{},
//	    &config.DefaultsSource{},
//	    &source.FileSource{Path: "configs/application.yaml", Optional: true},
//	    &source.EnvSource{},
//	    &source.CLISource{},
//	)
func NewManager(cfg any, opts Options, sources ...ConfigSource) (*Manager, error) {
	if v := reflect.ValueOf(cfg); v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("config target must be a pointer to a struct, got %T", cfg)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Manager{
		sources: sources,
		config:  cfg,
		binder:  NewBinder(),
		logger:  logger,
	}
	if err := m.Reload(context.Background()); err != nil {
		return nil, err
	}
	if opts.AutoReload {
		m.startWatchers()
	}
	return m, nil
}

// Reload re-reads every source and swaps the configuration in place when
// the merged result binds and validates.
func (m *Manager) Reload(ctx context.Context) error {
	merged := map[string]any{}
	for _, src := range m.sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := src.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load config from %s: %w", src.Name(), err)
		}
		mergeMaps(merged, vals)
	}

	typ := reflect.TypeOf(m.config).Elem()
	next := reflect.New(typ)
	if err := m.binder.Bind(merged, next.Interface()); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	m.mu.Lock()
	target := reflect.ValueOf(m.config).Elem()
	prev := reflect.New(typ)
	prev.Elem().Set(target)
	target.Set(next.Elem())
	m.mu.Unlock()

	if !reflect.DeepEqual(prev.Interface(), next.Interface()) {
		m.notify(diffEvent(prev.Interface(), next.Interface()))
	}
	return nil
}

// Snapshot returns a copy of the current configuration as a pointer of the
// same type passed to NewManager.
func (m *Manager) Snapshot() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := reflect.New(reflect.TypeOf(m.config).Elem())
	cp.Elem().Set(reflect.ValueOf(m.config).Elem())
	return cp.Interface()
}

// Subscribe registers ch for change events. Delivery never blocks; when ch
// is full the event is dropped, so use a buffered channel. ch is never
// closed by the Manager.
func (m *Manager) Subscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, ch)
}

func (m *Manager) notify(evt Event) {
	m.mu.RLock()
	subs := append([]chan Event(nil), m.subs...)
	m.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (m *Manager) startWatchers() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	for _, src := range m.sources {
		src := src
		changes := make(chan Event, 1)
		m.wg.Add(2)
		go func() {
			defer m.wg.Done()
			if err := src.Watch(ctx, changes); err != nil && ctx.Err() == nil {
				m.logger.Warn("config watch stopped", "source", src.Name(), "error", err)
			}
		}()
		go func() {
			defer m.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-changes:
					if err := m.Reload(ctx); err != nil && ctx.Err() == nil {
						m.logger.Error("config reload failed", "source", src.Name(), "error", err)
					}
				}
			}
		}()
	}
}

// Close stops the watchers started by AutoReload and waits for them.
func (m *Manager) Close() error {
	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
	}
	return nil
}
