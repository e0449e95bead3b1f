package config

import "context"

// ConfigSource is one layer of configuration: defaults, a file, the
// environment, the command line.
//
// Load must be safe for concurrent use and return data the caller may
// modify. Watch blocks until ctx is done and sends on ch whenever the
// source changes; sources that never change return nil immediately.
type ConfigSource interface {
	Load(ctx context.Context) (map[string]any, error)
	Watch(ctx context.Context, ch chan<- Event) error
	// Name identifies the source in errors and logs ("file", "env", "cli").
	Name() string
}

// Event describes an applied configuration change.
//
// ChangedKeys holds dotted paths built from the config tags of the leaf
// fields that differ, e.g. "server.port".
type Event struct {
	ChangedKeys []string
	OldConfig   any
	NewConfig   any
}

// Changed reports whether key, or any key below it, is in ChangedKeys.
func (e Event) Changed(key string) bool {
	for _, k := range e.ChangedKeys {
		if k == key || (len(k) > len(key) && k[:len(key)] == key && k[len(key)] == '.') {
			return true
		}
	}
	return false
}
