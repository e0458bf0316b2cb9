package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last change before a reload.
const DefaultDebounce = 500 * time.Millisecond

// WatchOption configures WatchRecords.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) { c.debounce = d }
}

// WatchRecords monitors the records file and rebuilds the graph whenever it
// changes, handing each new snapshot to onReload. A file that fails to load
// is logged and the previous snapshot stays in place.
// Blocks until the context is cancelled.
func WatchRecords(ctx context.Context, recordsPath string, logger *zap.Logger, onReload func(*Snapshot), opts ...WatchOption) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := watchConfig{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&cfg)
	}

	absPath, err := filepath.Abs(recordsPath)
	if err != nil {
		return fmt.Errorf("resolving records path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files by rename, which drops a watch on the file
	// itself. Watching the directory survives that.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	reloadTimer := time.NewTimer(cfg.debounce)
	reloadTimer.Stop()
	defer reloadTimer.Stop()

	logger.Info("watching records", zap.String("path", absPath))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRecordsEvent(event, absPath) {
				continue
			}
			logger.Debug("records changed", zap.String("op", event.Op.String()))
			reloadTimer.Reset(cfg.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))

		case <-reloadTimer.C:
			snap, err := LoadSnapshot(absPath, logger)
			if err != nil {
				logger.Warn("reload failed, keeping previous graph", zap.Error(err))
				continue
			}
			logger.Info("records reloaded",
				zap.Int("records", len(snap.Records)),
				zap.Int("nodes", snap.Graph.NodeCount()),
				zap.Int("edges", snap.Graph.EdgeCount()),
			)
			onReload(snap)
		}
	}
}

// isRecordsEvent reports whether event touches the records file with an
// operation that can change its contents.
func isRecordsEvent(event fsnotify.Event, absPath string) bool {
	if filepath.Clean(event.Name) != absPath {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
