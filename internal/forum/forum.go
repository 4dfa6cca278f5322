// Package forum is the discussion service: threads, replies, watches,
// and notifications, with every change mirrored into the locale's
// search index. The store stays the system of record; indexing here is
// best-effort and the synchronizer's full rebuilds repair anything a
// failed incremental update missed.
package forum

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emberboard/emberboard/internal/engine"
	emberrors "github.com/emberboard/emberboard/internal/errors"
	"github.com/emberboard/emberboard/internal/store"
)

const (
	// DefaultThreadsPerPage is the thread listing page size.
	DefaultThreadsPerPage = 20

	// DefaultPostsPerPage is the post listing page size.
	DefaultPostsPerPage = 20
)

// Indexer is the slice of the search engine the service writes to.
type Indexer interface {
	Index(ctx context.Context, locale string, docs ...engine.Document) error
	Delete(ctx context.Context, locale string, ids ...string) error
}

// Config wires a Service.
type Config struct {
	// Store persists threads, posts, and watches (required).
	Store *store.Store

	// Indexer receives incremental document updates. Nil disables
	// incremental indexing; the next full rebuild picks changes up.
	Indexer Indexer

	// Notifier delivers watch notifications. Nil disables them.
	Notifier Notifier

	// ThreadsPerPage overrides DefaultThreadsPerPage when positive.
	ThreadsPerPage int

	// PostsPerPage overrides DefaultPostsPerPage when positive.
	PostsPerPage int
}

// Service exposes forum operations.
type Service struct {
	store          *store.Store
	indexer        Indexer
	notifier       Notifier
	threadsPerPage int
	postsPerPage   int
}

// NewService creates a forum service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, emberrors.ConfigError("forum service needs a store", nil)
	}

	threadsPerPage := cfg.ThreadsPerPage
	if threadsPerPage <= 0 {
		threadsPerPage = DefaultThreadsPerPage
	}
	postsPerPage := cfg.PostsPerPage
	if postsPerPage <= 0 {
		postsPerPage = DefaultPostsPerPage
	}

	return &Service{
		store:          cfg.Store,
		indexer:        cfg.Indexer,
		notifier:       cfg.Notifier,
		threadsPerPage: threadsPerPage,
		postsPerPage:   postsPerPage,
	}, nil
}

// DocID is the search-document ID for a thread.
func DocID(threadID int64) string {
	return fmt.Sprintf("thread-%d", threadID)
}

// CreateThread starts a discussion: the thread row, its opening post,
// a search document, and a notification to the locale's watchers.
func (s *Service) CreateThread(ctx context.Context, locale, title, author, content string) (*store.Thread, error) {
	thread, post, err := s.store.CreateThread(ctx, locale, title, author, content)
	if err != nil {
		return nil, err
	}

	s.indexThread(ctx, thread, []string{post.Content})
	s.notifyLocaleWatchers(ctx, thread)
	return thread, nil
}

// Reply appends a post, refreshes the thread's search document, and
// notifies the thread's watchers. Watchers who wrote the reply are
// skipped; people do not need mail about their own posts.
func (s *Service) Reply(ctx context.Context, threadID int64, author, content string) (*store.Post, error) {
	post, err := s.store.AddPost(ctx, threadID, author, content)
	if err != nil {
		return nil, err
	}

	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	bodies, err := s.store.PostBodies(ctx, threadID)
	if err != nil {
		return nil, err
	}

	s.indexThread(ctx, thread, bodies)
	s.notifyThreadWatchers(ctx, thread, post)
	return post, nil
}

// GetThread returns one thread.
func (s *Service) GetThread(ctx context.Context, id int64) (*store.Thread, error) {
	return s.store.GetThread(ctx, id)
}

// ListThreads returns one page of a locale's threads, newest pages
// first according to sort. Pages are 1-based.
func (s *Service) ListThreads(ctx context.Context, locale string, sort store.ThreadSort, desc bool, page int) ([]*store.Thread, error) {
	return s.store.ListThreads(ctx, locale, sort, desc, page, s.threadsPerPage)
}

// ListPosts returns one page of a thread's posts in creation order.
// Pages are 1-based.
func (s *Service) ListPosts(ctx context.Context, threadID int64, page int) ([]*store.Post, error) {
	return s.store.ListPosts(ctx, threadID, page, s.postsPerPage)
}

// DeleteThread removes a thread, its posts and watches, and its search
// document.
func (s *Service) DeleteThread(ctx context.Context, id int64) error {
	thread, err := s.store.GetThread(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteThread(ctx, id); err != nil {
		return err
	}

	if s.indexer != nil {
		if err := s.indexer.Delete(ctx, thread.Locale, DocID(id)); err != nil {
			slog.Warn("thread_unindex_failed",
				slog.Int64("thread", id),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// WatchThread subscribes email to replies on a thread.
func (s *Service) WatchThread(ctx context.Context, threadID int64, email string) error {
	return s.store.AddWatch(ctx, store.WatchThread, threadID, "", email)
}

// UnwatchThread removes a thread subscription.
func (s *Service) UnwatchThread(ctx context.Context, threadID int64, email string) error {
	return s.store.RemoveWatch(ctx, store.WatchThread, threadID, "", email)
}

// WatchLocale subscribes email to new threads in a locale's forum.
func (s *Service) WatchLocale(ctx context.Context, locale, email string) error {
	return s.store.AddWatch(ctx, store.WatchLocale, 0, locale, email)
}

// UnwatchLocale removes a locale subscription.
func (s *Service) UnwatchLocale(ctx context.Context, locale, email string) error {
	return s.store.RemoveWatch(ctx, store.WatchLocale, 0, locale, email)
}

// indexThread pushes the thread's current search document. Failures
// are logged, never returned: the post is already saved and the next
// rebuild will index it.
func (s *Service) indexThread(ctx context.Context, thread *store.Thread, bodies []string) {
	if s.indexer == nil {
		return
	}
	doc := buildDocument(thread, bodies)
	if err := s.indexer.Index(ctx, thread.Locale, doc); err != nil {
		slog.Warn("thread_index_failed",
			slog.Int64("thread", thread.ID),
			slog.String("locale", thread.Locale),
			slog.String("error", err.Error()))
	}
}

// buildDocument flattens a thread and its post bodies into the shape
// the engine indexes.
func buildDocument(thread *store.Thread, bodies []string) engine.Document {
	return engine.Document{
		ID:      DocID(thread.ID),
		Title:   thread.Title,
		Content: strings.Join(bodies, "\n"),
	}
}
