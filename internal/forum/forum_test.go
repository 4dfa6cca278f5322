package forum

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberboard/emberboard/internal/engine"
	"github.com/emberboard/emberboard/internal/store"
)

// fakeIndexer records Index/Delete calls and can fail on demand.
type fakeIndexer struct {
	mu      sync.Mutex
	indexed map[string]engine.Document
	deleted []string
	fail    error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{indexed: make(map[string]engine.Document)}
}

func (f *fakeIndexer) Index(_ context.Context, _ string, docs ...engine.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	for _, doc := range docs {
		f.indexed[doc.ID] = doc
	}
	return nil
}

func (f *fakeIndexer) Delete(_ context.Context, _ string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndexer) doc(id string) (engine.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.indexed[id]
	return doc, ok
}

// fakeNotifier collects notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}

func (f *fakeNotifier) emails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Email)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeIndexer, *fakeNotifier) {
	t.Helper()
	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	idx := newFakeIndexer()
	notif := &fakeNotifier{}
	svc, err := NewService(Config{Store: s, Indexer: idx, Notifier: notif})
	require.NoError(t, err)
	return svc, s, idx, notif
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(Config{})
	require.Error(t, err)
}

func TestCreateThreadIndexesDocument(t *testing.T) {
	ctx := context.Background()
	svc, _, idx, _ := newTestService(t)

	thread, err := svc.CreateThread(ctx, "en-US", "Crash on startup", "amy", "It crashes every time.")
	require.NoError(t, err)

	doc, ok := idx.doc(DocID(thread.ID))
	require.True(t, ok, "thread should be indexed on creation")
	assert.Equal(t, "Crash on startup", doc.Title)
	assert.Equal(t, "It crashes every time.", doc.Content)
}

func TestReplyRefreshesDocumentWithAllPosts(t *testing.T) {
	ctx := context.Background()
	svc, _, idx, _ := newTestService(t)

	thread, err := svc.CreateThread(ctx, "en-US", "Crash on startup", "amy", "It crashes every time.")
	require.NoError(t, err)
	_, err = svc.Reply(ctx, thread.ID, "mel", "Try clearing the cache.")
	require.NoError(t, err)

	doc, ok := idx.doc(DocID(thread.ID))
	require.True(t, ok)
	assert.Contains(t, doc.Content, "It crashes every time.")
	assert.Contains(t, doc.Content, "Try clearing the cache.")
}

func TestCreateThreadSurvivesIndexerFailure(t *testing.T) {
	ctx := context.Background()
	svc, s, idx, _ := newTestService(t)
	idx.fail = assert.AnError

	thread, err := svc.CreateThread(ctx, "en-US", "Login broken", "amy", "Cannot log in.")

	// The post is saved; the index catches up at the next rebuild.
	require.NoError(t, err)
	_, err = s.GetThread(ctx, thread.ID)
	require.NoError(t, err)
}

func TestReplyNotifiesThreadWatchersExceptAuthor(t *testing.T) {
	ctx := context.Background()
	svc, _, _, notif := newTestService(t)

	thread, err := svc.CreateThread(ctx, "en-US", "Crash on startup", "amy", "It crashes every time.")
	require.NoError(t, err)
	require.NoError(t, svc.WatchThread(ctx, thread.ID, "amy@example.com"))
	require.NoError(t, svc.WatchThread(ctx, thread.ID, "mel@example.com"))

	_, err = svc.Reply(ctx, thread.ID, "mel@example.com", "Same here.")
	require.NoError(t, err)

	emails := notif.emails()
	assert.Contains(t, emails, "amy@example.com")
	assert.NotContains(t, emails, "mel@example.com", "reply author should not be notified")
}

func TestCreateThreadNotifiesLocaleWatchers(t *testing.T) {
	ctx := context.Background()
	svc, _, _, notif := newTestService(t)

	require.NoError(t, svc.WatchLocale(ctx, "en-US", "watcher@example.com"))
	require.NoError(t, svc.WatchLocale(ctx, "de", "german@example.com"))

	_, err := svc.CreateThread(ctx, "en-US", "Crash on startup", "amy", "It crashes every time.")
	require.NoError(t, err)

	emails := notif.emails()
	assert.Contains(t, emails, "watcher@example.com")
	assert.NotContains(t, emails, "german@example.com", "other locales stay quiet")
}

func TestDeleteThreadRemovesSearchDocument(t *testing.T) {
	ctx := context.Background()
	svc, _, idx, _ := newTestService(t)

	thread, err := svc.CreateThread(ctx, "en-US", "Old thread", "amy", "stale")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteThread(ctx, thread.ID))

	assert.Contains(t, idx.deleted, DocID(thread.ID))
}

func TestListThreadsUsesConfiguredPageSize(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc, err := NewService(Config{Store: s, ThreadsPerPage: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.CreateThread(ctx, "en-US", "thread", "amy", "body")
		require.NoError(t, err)
	}

	page1, err := svc.ListThreads(ctx, "en-US", store.ThreadSortCreated, false, 1)
	require.NoError(t, err)
	page2, err := svc.ListThreads(ctx, "en-US", store.ThreadSortCreated, false, 2)
	require.NoError(t, err)

	assert.Len(t, page1, 2)
	assert.Len(t, page2, 1)
}

func TestSourceBuildsOneDocumentPerThread(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newTestService(t)

	a, err := svc.CreateThread(ctx, "en-US", "First", "amy", "alpha")
	require.NoError(t, err)
	_, err = svc.Reply(ctx, a.ID, "mel", "beta")
	require.NoError(t, err)
	_, err = svc.CreateThread(ctx, "de", "Zweiter", "uta", "gamma")
	require.NoError(t, err)

	docs, err := NewSource(s).Documents(ctx, "en-US")
	require.NoError(t, err)

	require.Len(t, docs, 1, "other locales excluded")
	assert.Equal(t, DocID(a.ID), docs[0].ID)
	assert.Equal(t, "First", docs[0].Title)
	assert.Contains(t, docs[0].Content, "alpha")
	assert.Contains(t, docs[0].Content, "beta")
}
