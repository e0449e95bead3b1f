package source

import (
	"context"
	"os"
	"strings"

	"github.com/skekre98/modserver/config"
)

// DefaultEnvPrefix selects the variables EnvSource reads by default.
const DefaultEnvPrefix = "MODSERVER_"

// EnvSource maps prefixed environment variables onto nested keys:
// MODSERVER_SERVER_PORT=9090 becomes {server: {port: "9090"}}. Segments are
// lower-cased and split on underscores; values stay strings and are
// converted during binding.
//
// When a leaf and a nested key collide (MODSERVER_CACHE=x alongside
// MODSERVER_CACHE_ROOT=y) the first variable seen wins.
type EnvSource struct {
	// Prefix overrides DefaultEnvPrefix.
	Prefix string
}

func (e *EnvSource) Name() string { return "env" }

func (e *EnvSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	result := make(map[string]any)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		key = strings.ToLower(strings.TrimPrefix(key, prefix))
		if key == "" {
			continue
		}
		setNestedValue(result, strings.Split(key, "_"), value)
	}
	return result, nil
}

// Watch is a no-op; the environment is fixed for the life of the process.
func (e *EnvSource) Watch(context.Context, chan<- config.Event) error { return nil }

func setNestedValue(m map[string]any, segments []string, value string) {
	current := m
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if i == len(segments)-1 {
			if _, isMap := current[segment].(map[string]any); !isMap {
				current[segment] = value
			}
			return
		}
		switch existing := current[segment].(type) {
		case map[string]any:
			current = existing
		case nil:
			nested := make(map[string]any)
			current[segment] = nested
			current = nested
		default:
			return
		}
	}
}
