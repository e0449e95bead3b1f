package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/skekre98/modserver/config"
)

// DefaultDebounce coalesces the burst of events an editor produces when it
// saves a file.
const DefaultDebounce = 100 * time.Millisecond

// FileSource loads a YAML file plus an optional profile overlay.
//
// The overlay sits next to the base file and carries the profile between
// the base name and the extension: configs/application.yaml with profile
// "prod" overlays configs/application.prod.yaml (or .yml). Overlay values
// are deep-merged over the base.
type FileSource struct {
	// Path is the base file. When it has no extension both .yaml and .yml
	// are tried.
	Path string

	// Profile names an optional overlay. A missing overlay is ignored.
	Profile string

	// Optional makes a missing base file load as empty instead of failing.
	Optional bool

	// Debounce overrides DefaultDebounce for Watch.
	Debounce time.Duration
}

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := map[string]any{}

	base := f.basePath()
	if base == "" {
		if f.Optional {
			return data, nil
		}
		return nil, fmt.Errorf("config file %s: %w", f.Path, os.ErrNotExist)
	}
	raw := map[string]any{}
	if err := readYAML(base, raw); err != nil {
		return nil, err
	}
	config.Merge(data, raw)

	if overlay := f.overlayPath(base); overlay != "" {
		over := map[string]any{}
		if err := readYAML(overlay, over); err != nil {
			return nil, err
		}
		config.Merge(data, over)
	}
	return data, nil
}

// Watch sends an event whenever the base file or the overlay is written,
// created, renamed or removed. It watches the containing directory so
// that editors replacing the file atomically are picked up.
func (f *FileSource) Watch(ctx context.Context, ch chan<- config.Event) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file watch: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(f.Path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("file watch %s: %w", dir, err)
	}

	debounce := f.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if f.relevant(ev.Name) && ev.Op != fsnotify.Chmod {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watch: %w", err)
		case <-timer.C:
			select {
			case ch <- config.Event{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *FileSource) relevant(name string) bool {
	for _, candidate := range f.candidates() {
		if filepath.Clean(name) == filepath.Clean(candidate) {
			return true
		}
	}
	return false
}

// candidates lists every file whose change affects Load.
func (f *FileSource) candidates() []string {
	stem, exts := splitPath(f.Path)
	var out []string
	for _, ext := range exts {
		out = append(out, stem+ext)
		if f.Profile != "" {
			for _, oext := range []string{".yaml", ".yml"} {
				out = append(out, stem+"."+f.Profile+oext)
			}
		}
	}
	return out
}

func (f *FileSource) basePath() string {
	stem, exts := splitPath(f.Path)
	return firstExisting(stem, exts)
}

func (f *FileSource) overlayPath(base string) string {
	if f.Profile == "" {
		return ""
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return firstExisting(stem+"."+f.Profile, []string{filepath.Ext(base), ".yaml", ".yml"})
}

func splitPath(p string) (stem string, exts []string) {
	switch ext := filepath.Ext(p); ext {
	case ".yaml", ".yml":
		return strings.TrimSuffix(p, ext), []string{ext}
	default:
		return p, []string{".yaml", ".yml"}
	}
}

func firstExisting(stem string, exts []string) string {
	for _, ext := range exts {
		if st, err := os.Stat(stem + ext); err == nil && st.Mode().IsRegular() {
			return stem + ext
		}
	}
	return ""
}

func readYAML(path string, out map[string]any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
