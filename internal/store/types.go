// Package store persists synonym rules, their sync revisions, and forum
// content (threads, posts, watches) in SQLite. It is the system of
// record: the search index is derived data and is always rebuilt from
// here, never the other way around.
package store

import "time"

// ThreadSort selects the ordering of thread listings.
type ThreadSort string

const (
	ThreadSortCreated  ThreadSort = "created"
	ThreadSortAuthor   ThreadSort = "author"
	ThreadSortReplies  ThreadSort = "replies"
	ThreadSortLastPost ThreadSort = "last-post"
)

// Thread is one forum discussion. Replies, LastPostAt, and LastPoster
// are maintained by the store on every AddPost.
type Thread struct {
	ID         int64
	Locale     string
	Title      string
	Author     string
	CreatedAt  time.Time
	Replies    int
	LastPostAt time.Time
	LastPoster string
}

// Post is one message in a thread. The thread's opening message is a
// post like any other.
type Post struct {
	ID        int64
	ThreadID  int64
	Author    string
	Content   string
	CreatedAt time.Time
}

// WatchKind says what a watch is attached to.
type WatchKind string

const (
	// WatchThread subscribes to replies on one thread.
	WatchThread WatchKind = "thread"
	// WatchLocale subscribes to new threads in a locale's forum.
	WatchLocale WatchKind = "locale"
)

// Watch is one notification subscription.
type Watch struct {
	ID        int64
	Kind      WatchKind
	ThreadID  int64  // set for thread watches
	Locale    string // set for locale watches
	Email     string
	CreatedAt time.Time
}

// SyncState reports how far the search index trails the rule store for
// one locale. Revision advances on every rule mutation;
// SyncedRevision records the revision the index was last rebuilt at.
type SyncState struct {
	Locale         string
	Revision       int64
	SyncedRevision int64
}

// Stale reports whether the index is missing rule changes.
func (s SyncState) Stale() bool {
	return s.Revision != s.SyncedRevision
}
