package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emberrors "github.com/emberboard/emberboard/internal/errors"
)

func TestCreateThreadWithOpeningPost(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	thread, post, err := s.CreateThread(ctx, "en-US", "Crash on startup", "amy", "It crashes every time.")

	require.NoError(t, err)
	assert.Greater(t, thread.ID, int64(0))
	assert.Equal(t, "en-US", thread.Locale)
	assert.Equal(t, "Crash on startup", thread.Title)
	assert.Equal(t, "amy", thread.Author)
	assert.Equal(t, 0, thread.Replies)
	assert.Equal(t, "amy", thread.LastPoster)

	require.NotNil(t, post)
	assert.Equal(t, thread.ID, post.ThreadID)
	assert.Equal(t, "It crashes every time.", post.Content)

	posts, err := s.ListPosts(ctx, thread.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, post.ID, posts[0].ID)
}

func TestCreateThreadValidation(t *testing.T) {
	tests := []struct {
		name    string
		locale  string
		title   string
		author  string
		content string
	}{
		{"empty locale", "", "t", "a", "c"},
		{"empty title", "en-US", "", "a", "c"},
		{"empty author", "en-US", "t", "", "c"},
		{"empty content", "en-US", "t", "a", "   "},
	}

	ctx := context.Background()
	s := newTestStore(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.CreateThread(ctx, tt.locale, tt.title, tt.author, tt.content)
			require.Error(t, err)
			assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeInvalidInput))
		})
	}
}

func TestAddPostBumpsThreadMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	thread, _, err := s.CreateThread(ctx, "en-US", "Crash on startup", "amy", "It crashes.")
	require.NoError(t, err)

	// When someone replies
	post, err := s.AddPost(ctx, thread.ID, "mel", "Try clearing the cache.")
	require.NoError(t, err)
	assert.Equal(t, thread.ID, post.ThreadID)

	// Then the thread reflects the reply
	got, err := s.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Replies)
	assert.Equal(t, "mel", got.LastPoster)
	assert.False(t, got.LastPostAt.Before(got.CreatedAt))
}

func TestAddPostMissingThread(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.AddPost(ctx, 999, "mel", "hello?")

	require.Error(t, err)
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeNotFound))
}

func TestGetThreadMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetThread(ctx, 999)

	require.Error(t, err)
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeNotFound))
}

// seedThreads creates three threads with distinct authors, reply
// counts, and last-post times:
//
//	A by zoe, 0 replies, oldest post
//	B by amy, 2 replies
//	C by Mel, 1 reply, newest post
func seedThreads(t *testing.T, s *Store) (a, b, c *Thread) {
	t.Helper()
	ctx := context.Background()

	a, _, err := s.CreateThread(ctx, "en-US", "thread a", "zoe", "first")
	require.NoError(t, err)
	b, _, err = s.CreateThread(ctx, "en-US", "thread b", "amy", "second")
	require.NoError(t, err)
	c, _, err = s.CreateThread(ctx, "en-US", "thread c", "Mel", "third")
	require.NoError(t, err)

	for _, reply := range []struct {
		thread *Thread
		text   string
	}{
		{b, "b reply one"},
		{b, "b reply two"},
		{c, "c reply one"},
	} {
		_, err := s.AddPost(ctx, reply.thread.ID, "poster", reply.text)
		require.NoError(t, err)
	}
	return a, b, c
}

func TestListThreadsSorting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, b, c := seedThreads(t, s)

	tests := []struct {
		name string
		sort ThreadSort
		desc bool
		want []int64
	}{
		{"created ascending", ThreadSortCreated, false, []int64{a.ID, b.ID, c.ID}},
		{"created descending", ThreadSortCreated, true, []int64{c.ID, b.ID, a.ID}},
		{"author case-insensitive", ThreadSortAuthor, false, []int64{b.ID, c.ID, a.ID}},
		{"replies descending", ThreadSortReplies, true, []int64{b.ID, c.ID, a.ID}},
		{"last post descending", ThreadSortLastPost, true, []int64{c.ID, b.ID, a.ID}},
		{"default sort is last post", "", false, []int64{a.ID, b.ID, c.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threads, err := s.ListThreads(ctx, "en-US", tt.sort, tt.desc, 1, 20)
			require.NoError(t, err)

			got := make([]int64, len(threads))
			for i, th := range threads {
				got[i] = th.ID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListThreadsPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		_, _, err := s.CreateThread(ctx, "en-US", fmt.Sprintf("thread %d", i), "amy", "body")
		require.NoError(t, err)
	}

	page1, err := s.ListThreads(ctx, "en-US", ThreadSortCreated, false, 1, 2)
	require.NoError(t, err)
	page3, err := s.ListThreads(ctx, "en-US", ThreadSortCreated, false, 3, 2)
	require.NoError(t, err)
	page4, err := s.ListThreads(ctx, "en-US", ThreadSortCreated, false, 4, 2)
	require.NoError(t, err)

	assert.Len(t, page1, 2)
	assert.Len(t, page3, 1)
	assert.Empty(t, page4)

	count, err := s.CountThreads(ctx, "en-US")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestListThreadsRejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.ListThreads(ctx, "en-US", ThreadSortCreated, false, 0, 20)
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeInvalidInput))

	_, err = s.ListThreads(ctx, "en-US", ThreadSortCreated, false, 1, 0)
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeInvalidInput))

	_, err = s.ListThreads(ctx, "en-US", "karma", false, 1, 20)
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeInvalidInput))
}

func TestThreadsScopedToLocale(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.CreateThread(ctx, "en-US", "english", "amy", "body")
	require.NoError(t, err)
	_, _, err = s.CreateThread(ctx, "de", "deutsch", "mel", "text")
	require.NoError(t, err)

	de, err := s.AllThreads(ctx, "de")
	require.NoError(t, err)
	require.Len(t, de, 1)
	assert.Equal(t, "deutsch", de[0].Title)

	count, err := s.CountThreads(ctx, "en-US")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListPostsPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	thread, _, err := s.CreateThread(ctx, "en-US", "long thread", "amy", "opening")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := s.AddPost(ctx, thread.ID, "mel", fmt.Sprintf("reply %d", i))
		require.NoError(t, err)
	}

	page1, err := s.ListPosts(ctx, thread.ID, 1, 3)
	require.NoError(t, err)
	page2, err := s.ListPosts(ctx, thread.ID, 2, 3)
	require.NoError(t, err)

	require.Len(t, page1, 3)
	require.Len(t, page2, 2)
	assert.Equal(t, "opening", page1[0].Content)
	assert.Equal(t, "reply 2", page2[0].Content)
}

func TestPostBodiesInCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	thread, _, err := s.CreateThread(ctx, "en-US", "thread", "amy", "opening")
	require.NoError(t, err)
	_, err = s.AddPost(ctx, thread.ID, "mel", "first reply")
	require.NoError(t, err)
	_, err = s.AddPost(ctx, thread.ID, "zoe", "second reply")
	require.NoError(t, err)

	bodies, err := s.PostBodies(ctx, thread.ID)

	require.NoError(t, err)
	assert.Equal(t, []string{"opening", "first reply", "second reply"}, bodies)
}

func TestDeleteThreadRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	thread, _, err := s.CreateThread(ctx, "en-US", "doomed", "amy", "body")
	require.NoError(t, err)
	_, err = s.AddPost(ctx, thread.ID, "mel", "reply")
	require.NoError(t, err)
	require.NoError(t, s.AddWatch(ctx, WatchThread, thread.ID, "", "amy@example.com"))

	// When the thread is deleted
	require.NoError(t, s.DeleteThread(ctx, thread.ID))

	// Then thread, posts, and watches are gone
	_, err = s.GetThread(ctx, thread.ID)
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeNotFound))

	bodies, err := s.PostBodies(ctx, thread.ID)
	require.NoError(t, err)
	assert.Empty(t, bodies)

	watchers, err := s.ThreadWatchers(ctx, thread.ID)
	require.NoError(t, err)
	assert.Empty(t, watchers)

	// Deleting again reports not found
	err = s.DeleteThread(ctx, thread.ID)
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeNotFound))
}

func TestAddWatchIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	thread, _, err := s.CreateThread(ctx, "en-US", "thread", "amy", "body")
	require.NoError(t, err)

	require.NoError(t, s.AddWatch(ctx, WatchThread, thread.ID, "", "amy@example.com"))
	require.NoError(t, s.AddWatch(ctx, WatchThread, thread.ID, "", "amy@example.com"))

	watchers, err := s.ThreadWatchers(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy@example.com"}, watchers)
}

func TestAddWatchValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.AddWatch(ctx, WatchThread, 999, "", "amy@example.com")
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeNotFound))

	err = s.AddWatch(ctx, WatchLocale, 0, "", "amy@example.com")
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeInvalidInput))

	err = s.AddWatch(ctx, WatchLocale, 0, "en-US", "not-an-email")
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeInvalidInput))

	err = s.AddWatch(ctx, "board", 0, "en-US", "amy@example.com")
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeInvalidInput))
}

func TestLocaleWatchers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddWatch(ctx, WatchLocale, 0, "en-US", "zoe@example.com"))
	require.NoError(t, s.AddWatch(ctx, WatchLocale, 0, "en-US", "amy@example.com"))
	require.NoError(t, s.AddWatch(ctx, WatchLocale, 0, "de", "mel@example.com"))

	watchers, err := s.LocaleWatchers(ctx, "en-US")

	require.NoError(t, err)
	assert.Equal(t, []string{"amy@example.com", "zoe@example.com"}, watchers)
}

func TestRemoveWatchIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddWatch(ctx, WatchLocale, 0, "en-US", "amy@example.com"))

	require.NoError(t, s.RemoveWatch(ctx, WatchLocale, 0, "en-US", "amy@example.com"))
	require.NoError(t, s.RemoveWatch(ctx, WatchLocale, 0, "en-US", "amy@example.com"))

	watchers, err := s.LocaleWatchers(ctx, "en-US")
	require.NoError(t, err)
	assert.Empty(t, watchers)
}

func TestWatchesByEmail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	thread, _, err := s.CreateThread(ctx, "en-US", "thread", "amy", "body")
	require.NoError(t, err)
	require.NoError(t, s.AddWatch(ctx, WatchThread, thread.ID, "", "amy@example.com"))
	require.NoError(t, s.AddWatch(ctx, WatchLocale, 0, "de", "amy@example.com"))
	require.NoError(t, s.AddWatch(ctx, WatchLocale, 0, "de", "mel@example.com"))

	watches, err := s.WatchesByEmail(ctx, "amy@example.com")

	require.NoError(t, err)
	require.Len(t, watches, 2)
	assert.Equal(t, WatchThread, watches[0].Kind)
	assert.Equal(t, thread.ID, watches[0].ThreadID)
	assert.Equal(t, WatchLocale, watches[1].Kind)
	assert.Equal(t, "de", watches[1].Locale)
}
