package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberboard/emberboard/internal/synonym"
)

// fakeRuleStore records ReplaceRules calls.
type fakeRuleStore struct {
	mu       sync.Mutex
	replaced map[string][]synonym.Pair
	fail     error
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{replaced: make(map[string][]synonym.Pair)}
}

func (f *fakeRuleStore) ReplaceRules(_ context.Context, locale string, pairs []synonym.Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.replaced[locale] = pairs
	return nil
}

func (f *fakeRuleStore) rules(locale string) ([]synonym.Pair, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pairs, ok := f.replaced[locale]
	return pairs, ok
}

func TestNewImporterValidation(t *testing.T) {
	_, err := NewImporter(ImporterConfig{Store: newFakeRuleStore()})
	assert.Error(t, err, "missing dir")

	_, err = NewImporter(ImporterConfig{Dir: t.TempDir()})
	assert.Error(t, err, "missing store")
}

func TestImportAllSweepsEveryRuleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "en-US.txt", "frob => frob, glork\n")
	writeFile(t, dir, "de.txt", "auto => kfz\n")
	writeFile(t, dir, "notes.md", "not a rule file")

	fs := newFakeRuleStore()
	var enqueued []string
	imp, err := NewImporter(ImporterConfig{
		Dir:     dir,
		Store:   fs,
		Enqueue: func(locale string) { enqueued = append(enqueued, locale) },
	})
	require.NoError(t, err)

	require.NoError(t, imp.ImportAll(context.Background()))

	en, ok := fs.rules("en-US")
	require.True(t, ok)
	assert.Equal(t, []synonym.Pair{{From: "frob", To: "frob, glork"}}, en)
	_, ok = fs.rules("de")
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"en-US", "de"}, enqueued)
}

func TestImportAllSkipsUnparseableFileAndContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "en-US.txt", "frob => glork => zap\n")
	writeFile(t, dir, "de.txt", "auto => kfz\n")

	fs := newFakeRuleStore()
	imp, err := NewImporter(ImporterConfig{Dir: dir, Store: fs})
	require.NoError(t, err)

	require.NoError(t, imp.ImportAll(context.Background()))

	_, ok := fs.rules("en-US")
	assert.False(t, ok, "the broken file must not reach the store")
	_, ok = fs.rules("de")
	assert.True(t, ok, "the good file still imports")
}

func TestImportAllFailsOnMissingDir(t *testing.T) {
	imp, err := NewImporter(ImporterConfig{
		Dir:   filepath.Join(t.TempDir(), "gone"),
		Store: newFakeRuleStore(),
	})
	require.NoError(t, err)

	assert.Error(t, imp.ImportAll(context.Background()))
}

func TestRunImportsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	fs := newFakeRuleStore()

	enqueued := make(chan string, 8)
	imp, err := NewImporter(ImporterConfig{
		Dir:     dir,
		Store:   fs,
		Enqueue: func(locale string) { enqueued <- locale },
		Options: testOptions(false),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = imp.Run(ctx)
		close(done)
	}()

	// Let the watcher attach before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "en-US.txt", "frob => frob, glork\n")

	select {
	case locale := <-enqueued:
		assert.Equal(t, "en-US", locale)
	case <-time.After(5 * time.Second):
		t.Fatal("importer never picked up the new file")
	}

	pairs, ok := fs.rules("en-US")
	require.True(t, ok)
	assert.Len(t, pairs, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("importer did not stop on cancel")
	}
}

func TestRunClearsLocaleOnDelete(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "en-US.txt", "frob => glork\n")
	fs := newFakeRuleStore()

	enqueued := make(chan string, 8)
	imp, err := NewImporter(ImporterConfig{
		Dir:     dir,
		Store:   fs,
		Enqueue: func(locale string) { enqueued <- locale },
		Options: testOptions(false),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = imp.Run(ctx) }()

	// The initial sweep imports the file and queues a sync.
	select {
	case <-enqueued:
	case <-time.After(5 * time.Second):
		t.Fatal("initial sweep never ran")
	}

	require.NoError(t, os.Remove(path))

	select {
	case locale := <-enqueued:
		assert.Equal(t, "en-US", locale)
	case <-time.After(5 * time.Second):
		t.Fatal("deletion never triggered a sync")
	}

	pairs, ok := fs.rules("en-US")
	require.True(t, ok)
	assert.Empty(t, pairs, "removing the file clears the locale's rules")
}
