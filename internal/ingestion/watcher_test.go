package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Benny93/reelgraph/internal/movies"
)

const testDebounce = 50 * time.Millisecond

// startWatcher runs WatchRecords in the background and returns a channel of
// reloaded snapshots.
func startWatcher(t *testing.T, path string, logger *zap.Logger) (<-chan *Snapshot, context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan *Snapshot, 8)
	done := make(chan error, 1)

	go func() {
		done <- WatchRecords(ctx, path, logger, func(s *Snapshot) { reloads <- s }, WithDebounce(testDebounce))
	}()
	t.Cleanup(cancel)

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	return reloads, cancel, done
}

func TestWatchRecords(t *testing.T) {
	t.Parallel()

	t.Run("ReloadsOnWrite", func(t *testing.T) {
		t.Parallel()
		path := writeRecords(t, t.TempDir(), sampleRecords())
		reloads, _, _ := startWatcher(t, path, nil)

		updated := append(sampleRecords(), movies.MovieRecord{Title: "Ronin", Director: "John Frankenheimer", Actors: []string{"Robert De Niro"}})
		require.NoError(t, movies.WriteFile(path, updated))

		select {
		case snap := <-reloads:
			assert.Len(t, snap.Records, 3)
			assert.True(t, snap.Graph.HasNode("Ronin"))
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for reload")
		}
	})

	t.Run("InvalidFileKeepsPrevious", func(t *testing.T) {
		t.Parallel()
		core, logs := observer.New(zap.WarnLevel)
		path := writeRecords(t, t.TempDir(), sampleRecords())
		reloads, _, _ := startWatcher(t, path, zap.New(core))

		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		assert.Eventually(t, func() bool {
			return logs.FilterMessage("reload failed, keeping previous graph").Len() > 0
		}, 5*time.Second, 20*time.Millisecond)
		assert.Empty(t, reloads)
	})

	t.Run("IgnoresOtherFiles", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := writeRecords(t, dir, sampleRecords())
		reloads, _, _ := startWatcher(t, path, nil)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

		select {
		case <-reloads:
			t.Fatal("unexpected reload")
		case <-time.After(4 * testDebounce):
		}
	})

	t.Run("StopsOnCancel", func(t *testing.T) {
		t.Parallel()
		path := writeRecords(t, t.TempDir(), sampleRecords())
		_, cancel, done := startWatcher(t, path, nil)

		cancel()

		select {
		case err := <-done:
			assert.True(t, errors.Is(err, context.Canceled))
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		t.Parallel()
		err := WatchRecords(context.Background(), filepath.Join(t.TempDir(), "gone", "movies.json"), nil, func(*Snapshot) {})
		assert.Error(t, err)
	})
}

func TestIsRecordsEvent(t *testing.T) {
	t.Parallel()

	path := "/data/movies.json"

	assert.True(t, isRecordsEvent(fsnotify.Event{Name: path, Op: fsnotify.Write}, path))
	assert.True(t, isRecordsEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}, path))
	assert.False(t, isRecordsEvent(fsnotify.Event{Name: path, Op: fsnotify.Chmod}, path))
	assert.False(t, isRecordsEvent(fsnotify.Event{Name: "/data/other.json", Op: fsnotify.Write}, path))
}
