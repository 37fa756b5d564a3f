// Package retention prunes capture files that have outlived the retention
// window. It runs once at startup, before any recording begins.
package retention

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bosley/voxlog/audio"
)

// DefaultMaxAge is how long capture files are kept.
const DefaultMaxAge = 30 * 24 * time.Hour

// ErrFileOperationFailed wraps a failure on a single file. It never aborts
// the rest of the scan.
var ErrFileOperationFailed = errors.New("file operation failed")

type Config struct {
	Dir    string
	MaxAge time.Duration
	Now    func() time.Time
}

// Report lists what a prune pass did.
type Report struct {
	Scanned int
	Deleted []string
	Kept    int
	Failed  []string
}

type Manager struct {
	cfg    Config
	remove func(string) error
}

func New(cfg Config) *Manager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, remove: os.Remove}
}

// Prune deletes capture files strictly older than MaxAge. Files that do not
// follow the capture naming convention are never touched. The returned
// error joins the per-file failures; the report is valid either way. A
// missing directory is not an error.
func (m *Manager) Prune() (Report, error) {
	var report Report

	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return report, fmt.Errorf("failed to list recordings directory: %w", err)
	}

	threshold := m.cfg.Now().Add(-m.cfg.MaxAge)
	var errs []error

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		created, ok := audio.ParseFileName(entry.Name())
		if !ok {
			continue
		}
		report.Scanned++

		if !created.Before(threshold) {
			report.Kept++
			continue
		}

		path := filepath.Join(m.cfg.Dir, entry.Name())
		if err := m.remove(path); err != nil {
			slog.Error("Failed to delete expired recording", "error", err, "file", path)
			report.Failed = append(report.Failed, path)
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrFileOperationFailed, path, err))
			continue
		}
		slog.Info("Deleted expired recording",
			"file", path,
			"ageDays", int(m.cfg.Now().Sub(created).Hours()/24))
		report.Deleted = append(report.Deleted, path)
	}

	slog.Debug("Retention scan complete",
		"dir", m.cfg.Dir,
		"scanned", report.Scanned,
		"deleted", len(report.Deleted),
		"failed", len(report.Failed))

	return report, errors.Join(errs...)
}
