package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bosley/voxlog/audio"
	"github.com/fsnotify/fsnotify"
)

// Entry is one capture file in the recordings directory.
type Entry struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	CapturedAt time.Time `json:"capturedAt"`
	Size       int64     `json:"size"`
}

// Catalog keeps an index of the capture files in a directory, updated from
// file system events while Watch runs.
type Catalog struct {
	dir     string
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	entries map[string]Entry
}

func New(dir string) (*Catalog, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	c := &Catalog{
		dir:     dir,
		watcher: watcher,
		entries: make(map[string]Entry),
	}
	if err := c.watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch recordings directory: %w", err)
	}
	if err := c.Rescan(); err != nil {
		watcher.Close()
		return nil, err
	}
	return c, nil
}

// Rescan rebuilds the index from a directory listing.
func (c *Catalog) Rescan() error {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to list recordings directory: %w", err)
	}

	fresh := make(map[string]Entry)
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if e, ok := c.stat(filepath.Join(c.dir, de.Name())); ok {
			fresh[e.Path] = e
		}
	}

	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()
	return nil
}

// List returns the indexed files, newest first.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	return out
}

func (c *Catalog) Lookup(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[filepath.Join(c.dir, filepath.Base(name))]
	return e, ok
}

// Watch applies file system events until ctx is done, then closes the
// watcher.
func (c *Catalog) Watch(ctx context.Context) {
	defer c.watcher.Close()

	slog.Info("Started watching recordings directory", "path", c.dir)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleFSEvent(event)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (c *Catalog) handleFSEvent(event fsnotify.Event) {
	if _, ok := audio.ParseFileName(filepath.Base(event.Name)); !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		c.mu.Lock()
		delete(c.entries, event.Name)
		c.mu.Unlock()
		slog.Debug("Recording removed from catalog", "file", event.Name)

	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		e, ok := c.stat(event.Name)
		if !ok {
			return
		}
		c.mu.Lock()
		_, known := c.entries[e.Path]
		c.entries[e.Path] = e
		c.mu.Unlock()
		if !known {
			slog.Info("Found new recording", "file", e.Name)
		}
	}
}

func (c *Catalog) stat(path string) (Entry, bool) {
	name := filepath.Base(path)
	captured, ok := audio.ParseFileName(name)
	if !ok {
		return Entry{}, false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Entry{}, false
	}
	return Entry{
		Path:       path,
		Name:       name,
		CapturedAt: captured,
		Size:       info.Size(),
	}, true
}
