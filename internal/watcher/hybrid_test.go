package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(forcePolling bool) Options {
	return Options{
		DebounceWindow: 20 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		ForcePolling:   forcePolling,
	}
}

func waitForBatch(t *testing.T, w *Watcher) []FileEvent {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher events")
		return nil
	}
}

func TestWatcherRejectsMissingDir(t *testing.T) {
	w := New(testOptions(false))
	err := w.Start(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWatcherRejectsFileAsDir(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "en-US.txt", "")

	w := New(testOptions(false))
	err := w.Start(path)
	assert.Error(t, err)
}

func TestWatcherRejectsDoubleStart(t *testing.T) {
	dir := t.TempDir()
	w := New(testOptions(true))
	require.NoError(t, w.Start(dir))
	defer w.Stop()

	assert.Error(t, w.Start(dir))
}

func TestWatcherSeesNewRuleFile(t *testing.T) {
	for _, mode := range []struct {
		name    string
		polling bool
	}{
		{"fsnotify", false},
		{"polling", true},
	} {
		t.Run(mode.name, func(t *testing.T) {
			dir := t.TempDir()
			w := New(testOptions(mode.polling))
			require.NoError(t, w.Start(dir))
			defer w.Stop()

			writeFile(t, dir, "en-US.txt", "frob => glork\n")

			batch := waitForBatch(t, w)
			require.NotEmpty(t, batch)
			assert.Equal(t, "en-US", Locale(batch[0].Path))
		})
	}
}

func TestWatcherIgnoresNonRuleFiles(t *testing.T) {
	dir := t.TempDir()
	w := New(testOptions(false))
	require.NoError(t, w.Start(dir))
	defer w.Stop()

	writeFile(t, dir, "notes.md", "not rules")
	writeFile(t, dir, "en-US.txt", "frob => glork\n")

	batch := waitForBatch(t, w)
	for _, e := range batch {
		assert.NotEqual(t, "notes.md", filepath.Base(e.Path))
	}
}

func TestWatcherCoalescesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	w := New(testOptions(false))
	require.NoError(t, w.Start(dir))
	defer w.Stop()

	path := filepath.Join(dir, "en-US.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("frob => glork\n"), 0644))
	}

	batch := waitForBatch(t, w)
	assert.Len(t, batch, 1, "rapid writes to one file should collapse")
}

func TestWatcherStopClosesEvents(t *testing.T) {
	dir := t.TempDir()
	w := New(testOptions(true))
	require.NoError(t, w.Start(dir))

	w.Stop()
	w.Stop() // idempotent

	_, open := <-w.Events()
	assert.False(t, open)
}
