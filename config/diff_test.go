package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDiffEvent(t *testing.T) {
	old := Root{
		App:    AppInfo{Name: "a", Version: "1"},
		Server: ServerConfig{Port: 8080, ReadTimeout: time.Second},
		Cache:  CacheConfig{Root: "/srv", Capacity: 10},
	}
	updated := old
	updated.Server.Port = 9090
	updated.Cache.Capacity = 20
	updated.Observability.Metrics.Enabled = true

	evt := diffEvent(&old, &updated)
	assert.Equal(t, []string{"server.port", "cache.capacity", "observability.metrics.enabled"}, evt.ChangedKeys)
	assert.Same(t, &old, evt.OldConfig)
	assert.Same(t, &updated, evt.NewConfig)

	assert.True(t, evt.Changed("server"))
	assert.True(t, evt.Changed("server.port"))
	assert.True(t, evt.Changed("observability.metrics"))
	assert.False(t, evt.Changed("serv"))
	assert.False(t, evt.Changed("app"))
}

func TestDiffEvent_Identical(t *testing.T) {
	cfg := Root{App: AppInfo{Name: "a"}}
	same := cfg
	assert.Empty(t, diffEvent(&cfg, &same).ChangedKeys)
}

func TestDiffEvent_NilAndMismatchedTypes(t *testing.T) {
	assert.Empty(t, diffEvent(nil, &Root{}).ChangedKeys)
	assert.Empty(t, diffEvent(&Root{}, &AppInfo{}).ChangedKeys)
}

func TestDiffEvent_UntaggedFieldsUseGoName(t *testing.T) {
	type plain struct {
		Limit  int
		hidden int
	}
	evt := diffEvent(&plain{Limit: 1, hidden: 1}, &plain{Limit: 2, hidden: 2})
	assert.Equal(t, []string{"Limit"}, evt.ChangedKeys)
}
