package config

import (
	"context"
	"maps"
)

// Defaults returns the baseline values for Root. Every other source is
// layered on top of these.
func Defaults() map[string]any {
	return map[string]any{
		"app": map[string]any{
			"name":    "modserver",
			"version": "dev",
		},
		"server": map[string]any{
			"address":      "0.0.0.0",
			"port":         8080,
			"mode":         "concurrent",
			"workers":      0,
			"readTimeout":  "30s",
			"writeTimeout": "30s",
			"idleTimeout":  "60s",
			"maxBodyBytes": 1 << 20,
		},
		"cache": map[string]any{
			"root":      "./www",
			"capacity":  256,
			"ioWorkers": 4,
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"observability": map[string]any{
			"metrics": map[string]any{"enabled": true},
		},
		"actuator": map[string]any{
			"enabled":  true,
			"addr":     "127.0.0.1:9090",
			"basePath": "/actuator",
		},
	}
}

// DefaultsSource serves a fixed map, Defaults() when Values is nil.
type DefaultsSource struct {
	Values map[string]any
}

func (d *DefaultsSource) Name() string { return "defaults" }

func (d *DefaultsSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Values == nil {
		return Defaults(), nil
	}
	return cloneMap(d.Values), nil
}

func (d *DefaultsSource) Watch(context.Context, chan<- Event) error { return nil }

func cloneMap(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
		}
	}
	return out
}
