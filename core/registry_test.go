package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	*Base
	initErr  error
	mu       sync.Mutex
	inits    int
	shutdown int
}

func newFake(id string) *fakeModule {
	m := &fakeModule{}
	m.Base = NewBase(Info{ID: id}, m)
	return m
}

func (m *fakeModule) OnInitialize(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	return m.initErr
}

func (m *fakeModule) OnShutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown++
	return nil
}

func TestRegister_DuplicateID(t *testing.T) {
	r := NewRegistry(nil)
	first, err := Register(r, newFake("cache"))
	require.NoError(t, err)
	require.NoError(t, first.Initialize(context.Background()))

	_, err = Register(r, newFake("cache"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateModuleID)

	var dup *DuplicateModuleIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "cache", dup.ID)

	got, ok := r.Get("cache")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.True(t, got.Initialized(), "first module must stay initialized")
}

func TestMustRegister_Panics(t *testing.T) {
	r := NewRegistry(nil)
	MustRegister(r, newFake("a"))
	assert.Panics(t, func() { MustRegister(r, newFake("a")) })
}

func TestInitializeAll_PartialFailure(t *testing.T) {
	r := NewRegistry(nil)
	a := MustRegister(r, newFake("a"))
	bad := newFake("b")
	bad.initErr = errors.New("boom")
	MustRegister(r, bad)
	c := MustRegister(r, newFake("c"))

	err := r.InitializeAll(context.Background())
	require.Error(t, err)

	var initErr *ModuleInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "b", initErr.ID)
	assert.ErrorIs(t, err, bad.initErr)

	assert.True(t, a.Initialized())
	assert.False(t, bad.Initialized())
	assert.True(t, c.Initialized())
	assert.Equal(t, 1, bad.inits)
}

func TestInitializeAll_SkipsDisabled(t *testing.T) {
	r := NewRegistry(nil)
	off := MustRegister(r, newFake("off"))
	off.SetEnabled(false)
	on := MustRegister(r, newFake("on"))

	require.NoError(t, r.InitializeAll(context.Background()))
	assert.False(t, off.Initialized())
	assert.Equal(t, 0, off.inits)
	assert.True(t, on.Initialized())
}

func TestShutdownAll_Idempotent(t *testing.T) {
	r := NewRegistry(nil)
	a := MustRegister(r, newFake("a"))
	never := MustRegister(r, newFake("never"))
	never.SetEnabled(false)

	ctx := context.Background()
	require.NoError(t, r.InitializeAll(ctx))
	require.NoError(t, r.ShutdownAll(ctx))
	require.NoError(t, r.ShutdownAll(ctx))

	assert.False(t, a.Initialized())
	assert.Equal(t, 1, a.shutdown)
	assert.Equal(t, 0, never.shutdown)
}

func TestBase_LifecycleGuards(t *testing.T) {
	ctx := context.Background()
	m := newFake("m")

	m.SetEnabled(false)
	assert.ErrorIs(t, m.Initialize(ctx), ErrModuleDisabled)
	assert.False(t, m.Initialized())

	m.SetEnabled(true)
	require.NoError(t, m.Initialize(ctx))
	assert.ErrorIs(t, m.Initialize(ctx), ErrAlreadyInitialized)
	assert.Equal(t, 1, m.inits)

	m.initErr = errors.New("nope")
	require.NoError(t, m.Shutdown(ctx))
	assert.Error(t, m.Initialize(ctx))
	assert.False(t, m.Initialized(), "failed hook must not mark the module initialized")
}

func TestBase_Defaults(t *testing.T) {
	m := newFake("id-only")
	assert.Equal(t, "id-only", m.Name())
	assert.Equal(t, "dev", m.Version())
	assert.True(t, m.Enabled())
	assert.False(t, m.Initialized())
}

func TestGetAs(t *testing.T) {
	r := NewRegistry(nil)
	MustRegister(r, newFake("x"))

	got, ok := GetAs[*fakeModule](r, "x")
	require.True(t, ok)
	assert.Equal(t, "x", got.ID())

	_, ok = GetAs[*fakeModule](r, "missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"x"}, r.IDs())
}
