package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (o *orderRecorder) add(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.order = append(o.order, id)
}

type recordingModule struct {
	*Base
	inits, stops *orderRecorder
}

func newRecording(id string, inits, stops *orderRecorder) *recordingModule {
	m := &recordingModule{inits: inits, stops: stops}
	m.Base = NewBase(Info{ID: id}, m)
	return m
}

func (m *recordingModule) OnInitialize(context.Context) error {
	m.inits.add(m.ID())
	return nil
}

func (m *recordingModule) OnShutdown(context.Context) error {
	m.stops.add(m.ID())
	return nil
}

func TestApp_IngressStartsLastAndStopsFirst(t *testing.T) {
	inits, stops := &orderRecorder{}, &orderRecorder{}
	r := NewRegistry(nil)
	// ids sort against the wanted order, so ordering has to come from App.
	server := MustRegister(r, newRecording("a-server", inits, stops))
	MustRegister(r, newRecording("m-cache", inits, stops))
	MustRegister(r, newRecording("z-handler", inits, stops))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := NewApp(logger, r, WithIngress(server), WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, server.Initialized, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"m-cache", "z-handler", "a-server"}, inits.order)
	assert.Equal(t, []string{"a-server", "m-cache", "z-handler"}, stops.order)
}
