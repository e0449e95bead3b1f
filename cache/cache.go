// Package cache keeps static files in memory and refreshes them from disk
// when their modification time moves forward.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/skekre98/modserver/core"
)

const ID = "file-cache"

const DefaultCapacity = 256

// Entry is an immutable snapshot of one cached file. Callers must not modify
// Content.
type Entry struct {
	Path        string    `json:"path"`
	FilePath    string    `json:"filePath"`
	Content     []byte    `json:"-"`
	MIMEType    string    `json:"mimeType"`
	ModTime     time.Time `json:"modTime"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// RefreshError reports a file that could not be (re)loaded. Callers treat it
// as a cache miss.
type RefreshError struct {
	Path string
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.Path, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

type Options struct {
	// Root is the directory logical paths resolve under.
	Root string
	// Capacity bounds the number of entries. Zero means DefaultCapacity.
	Capacity int
	// IOWorkers bounds concurrent file reads. Zero means unbounded.
	IOWorkers int
	// Warm lists paths refreshed during initialization.
	Warm   []string
	Logger *slog.Logger
}

type slot struct {
	entry      *Entry
	lastAccess uint64
}

// FileCache maps logical request paths to file contents under a root
// directory. Entries are only created or updated by Refresh; Get never
// touches the disk.
type FileCache struct {
	*core.Base

	root     string
	capacity int
	warm     []string
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*slot
	clock   uint64

	locks  pathLocks
	ioSlot chan struct{}

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func New(opts Options) *FileCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &FileCache{
		root:     opts.Root,
		capacity: capacity,
		warm:     opts.Warm,
		logger:   logger.With("module", ID),
		entries:  make(map[string]*slot),
		locks:    pathLocks{held: make(map[string]*pathLock)},
	}
	if opts.IOWorkers > 0 {
		c.ioSlot = make(chan struct{}, opts.IOWorkers)
	}
	c.Base = core.NewBase(core.Info{ID: ID, Name: "Static File Cache"}, c)
	return c
}

func (c *FileCache) OnInitialize(ctx context.Context) error {
	fi, err := os.Stat(c.root)
	if err != nil {
		return fmt.Errorf("static root: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("static root %s is not a directory", c.root)
	}
	for _, p := range c.warm {
		if err := c.Refresh(ctx, p); err != nil {
			c.logger.Warn("warm-up refresh failed", "path", p, "error", err)
		}
	}
	c.logger.Info("file cache ready", "root", c.root, "capacity", c.capacity, "entries", c.Len())
	return nil
}

func (c *FileCache) OnShutdown(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*slot)
	cacheEntries.DeleteLabelValues(c.root)
	return nil
}

// Refresh brings the entry for p in line with its backing file: it is
// created when missing, reloaded when the file's modification time advanced,
// and removed when the file no longer exists. Concurrent refreshes of the
// same path are serialized; different paths proceed in parallel.
func (c *FileCache) Refresh(ctx context.Context, p string) error {
	_, err := c.refresh(ctx, p)
	return err
}

// Fetch refreshes p and returns the resulting entry in one step, so an
// eviction by another session cannot slip in between the two.
func (c *FileCache) Fetch(ctx context.Context, p string) (Entry, bool) {
	e, err := c.refresh(ctx, p)
	if err != nil {
		c.logger.Debug("refresh failed", "path", p, "error", err)
		c.misses.Add(1)
		cacheMisses.Inc()
		return Entry{}, false
	}
	c.hits.Add(1)
	cacheHits.Inc()
	return *e, true
}

// refresh returns the entry that is current for p when it finishes, already
// marked as accessed.
func (c *FileCache) refresh(ctx context.Context, p string) (*Entry, error) {
	unlock := c.locks.lock(p)
	defer unlock()

	filePath, info, err := c.resolve(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.invalidate(p)
		}
		return nil, &RefreshError{Path: p, Err: err}
	}

	if e, ok := c.touchIfCurrent(p, filePath, info.ModTime()); ok {
		return e, nil
	}

	content, err := c.read(ctx, filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.invalidate(p)
		}
		return nil, &RefreshError{Path: p, Err: err}
	}

	e := &Entry{
		Path:        p,
		FilePath:    filePath,
		Content:     content,
		MIMEType:    TypeByExtension(filepath.Ext(filePath)),
		ModTime:     info.ModTime(),
		RefreshedAt: time.Now(),
	}
	c.store(p, e)
	c.logger.Debug("cached file", "path", p, "file", filePath, "bytes", len(content))
	return e, nil
}

func (c *FileCache) touchIfCurrent(p, filePath string, modTime time.Time) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[p]
	if !ok || s.entry.FilePath != filePath || modTime.After(s.entry.ModTime) {
		return nil, false
	}
	c.clock++
	s.lastAccess = c.clock
	return s.entry, true
}

// Get returns the cached entry for p and marks it as recently used.
func (c *FileCache) Get(p string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[p]
	if !ok {
		c.misses.Add(1)
		cacheMisses.Inc()
		return Entry{}, false
	}
	c.clock++
	s.lastAccess = c.clock
	c.hits.Add(1)
	cacheHits.Inc()
	return *s.entry, true
}

func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Root      string `json:"root"`
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

func (c *FileCache) Stats() Stats {
	return Stats{
		Root:      c.root,
		Entries:   c.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *FileCache) store(p string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	if s, ok := c.entries[p]; ok {
		s.entry = e
		s.lastAccess = c.clock
		return
	}
	for len(c.entries) >= c.capacity {
		c.evictLeastRecentlyUsed()
	}
	c.entries[p] = &slot{entry: e, lastAccess: c.clock}
	cacheEntries.WithLabelValues(c.root).Set(float64(len(c.entries)))
}

// evictLeastRecentlyUsed must be called with c.mu held.
func (c *FileCache) evictLeastRecentlyUsed() {
	var (
		victim string
		oldest uint64
		found  bool
	)
	for p, s := range c.entries {
		if !found || s.lastAccess < oldest {
			victim, oldest, found = p, s.lastAccess, true
		}
	}
	if !found {
		return
	}
	delete(c.entries, victim)
	c.evictions.Add(1)
	cacheEvictions.Inc()
	c.logger.Debug("evicted entry", "path", victim)
}

func (c *FileCache) invalidate(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[p]; ok {
		delete(c.entries, p)
		cacheEntries.WithLabelValues(c.root).Set(float64(len(c.entries)))
		c.logger.Debug("invalidated entry", "path", p)
	}
}

func (c *FileCache) read(ctx context.Context, name string) ([]byte, error) {
	if c.ioSlot != nil {
		select {
		case c.ioSlot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-c.ioSlot }()
	}
	return os.ReadFile(name)
}

// resolve maps a logical path to a regular file under the root. The cleaned
// path cannot climb above the root. "/" and paths ending in "/" resolve to
// index.html; an extensionless path with no such file falls back to
// path + ".html".
func (c *FileCache) resolve(p string) (string, fs.FileInfo, error) {
	clean := path.Clean("/" + p)
	rel := filepath.FromSlash(strings.TrimPrefix(clean, "/"))

	var candidates []string
	if clean == "/" || strings.HasSuffix(p, "/") {
		candidates = append(candidates, filepath.Join(rel, "index.html"))
	} else {
		candidates = append(candidates, rel, filepath.Join(rel, "index.html"))
		if filepath.Ext(rel) == "" {
			candidates = append(candidates, rel+".html")
		}
	}

	for _, cand := range candidates {
		full := filepath.Join(c.root, cand)
		fi, err := os.Stat(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				continue
			}
			return "", nil, err
		}
		if fi.Mode().IsRegular() {
			return full, fi, nil
		}
	}
	return "", nil, fs.ErrNotExist
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// pathLocks hands out one mutex per path, dropped once nobody holds it.
type pathLocks struct {
	mu   sync.Mutex
	held map[string]*pathLock
}

func (l *pathLocks) lock(p string) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.held[p]
	if !ok {
		pl = &pathLock{}
		l.held[p] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.held, p)
		}
		l.mu.Unlock()
	}
}
