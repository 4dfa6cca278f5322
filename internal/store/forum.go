package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	emberrors "github.com/emberboard/emberboard/internal/errors"
)

const threadColumns = `id, locale, title, author, created_at, reply_count, last_post_at, last_poster`

func scanThread(row interface{ Scan(...any) error }) (*Thread, error) {
	var t Thread
	err := row.Scan(&t.ID, &t.Locale, &t.Title, &t.Author, &t.CreatedAt,
		&t.Replies, &t.LastPostAt, &t.LastPoster)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateThread inserts a thread together with its opening post.
func (s *Store) CreateThread(ctx context.Context, locale, title, author, content string) (*Thread, *Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}

	locale = strings.TrimSpace(locale)
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	content = strings.TrimSpace(content)
	for field, value := range map[string]string{
		"locale": locale, "title": title, "author": author, "content": content,
	} {
		if value == "" {
			return nil, nil, emberrors.ValidationError(field+" must not be empty", nil)
		}
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO threads (locale, title, author, created_at, reply_count, last_post_at, last_poster)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, locale, title, author, now, now, author)
	if err != nil {
		return nil, nil, emberrors.StoreError("insert thread", err)
	}
	threadID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, emberrors.StoreError("thread id", err)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO posts (thread_id, author, content, created_at)
		VALUES (?, ?, ?, ?)
	`, threadID, author, content, now)
	if err != nil {
		return nil, nil, emberrors.StoreError("insert opening post", err)
	}
	postID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, emberrors.StoreError("post id", err)
	}

	if err := commit(tx); err != nil {
		return nil, nil, err
	}

	thread := &Thread{
		ID: threadID, Locale: locale, Title: title, Author: author,
		CreatedAt: now, Replies: 0, LastPostAt: now, LastPoster: author,
	}
	post := &Post{ID: postID, ThreadID: threadID, Author: author, Content: content, CreatedAt: now}
	return thread, post, nil
}

// AddPost appends a reply and bumps the thread's reply count and
// last-post metadata in the same transaction.
func (s *Store) AddPost(ctx context.Context, threadID int64, author, content string) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	author = strings.TrimSpace(author)
	content = strings.TrimSpace(content)
	if author == "" {
		return nil, emberrors.ValidationError("author must not be empty", nil)
	}
	if content == "" {
		return nil, emberrors.ValidationError("content must not be empty", nil)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var locale string
	err = tx.QueryRowContext(ctx, `SELECT locale FROM threads WHERE id = ?`, threadID).Scan(&locale)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, threadNotFound(threadID)
	}
	if err != nil {
		return nil, emberrors.StoreError("look up thread", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO posts (thread_id, author, content, created_at)
		VALUES (?, ?, ?, ?)
	`, threadID, author, content, now)
	if err != nil {
		return nil, emberrors.StoreError("insert post", err)
	}
	postID, err := res.LastInsertId()
	if err != nil {
		return nil, emberrors.StoreError("post id", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE threads
		SET reply_count = reply_count + 1, last_post_at = ?, last_poster = ?
		WHERE id = ?
	`, now, author, threadID)
	if err != nil {
		return nil, emberrors.StoreError("update thread metadata", err)
	}

	if err := commit(tx); err != nil {
		return nil, err
	}
	return &Post{ID: postID, ThreadID: threadID, Author: author, Content: content, CreatedAt: now}, nil
}

// GetThread returns one thread by ID.
func (s *Store) GetThread(ctx context.Context, id int64) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	t, err := scanThread(s.db.QueryRowContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, threadNotFound(id)
	}
	if err != nil {
		return nil, emberrors.StoreError("get thread", err)
	}
	return t, nil
}

// orderClause maps a sort key to SQL. The thread ID tiebreak keeps
// pagination stable when sort values collide.
func orderClause(sort ThreadSort, desc bool) (string, error) {
	var key string
	switch sort {
	case ThreadSortCreated:
		key = "created_at"
	case ThreadSortAuthor:
		key = "author COLLATE NOCASE"
	case ThreadSortReplies:
		key = "reply_count"
	case "", ThreadSortLastPost:
		key = "last_post_at"
	default:
		return "", emberrors.ValidationError(
			fmt.Sprintf("unknown sort %q (want created, author, replies, or last-post)", sort), nil)
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", key, dir, dir), nil
}

// ListThreads returns one page of a locale's threads. Pages are
// 1-based; the default sort is by last post, newest first when desc.
func (s *Store) ListThreads(ctx context.Context, locale string, sort ThreadSort, desc bool, page, perPage int) ([]*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if page < 1 || perPage < 1 {
		return nil, emberrors.ValidationError(
			fmt.Sprintf("page and page size must be positive (got page %d, size %d)", page, perPage), nil)
	}
	order, err := orderClause(sort, desc)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + threadColumns + ` FROM threads WHERE locale = ? ` +
		order + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, locale, perPage, (page-1)*perPage)
	if err != nil {
		return nil, emberrors.StoreError("list threads", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, emberrors.StoreError("scan thread", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate threads", err)
	}
	return threads, nil
}

// CountThreads returns how many threads a locale has.
func (s *Store) CountThreads(ctx context.Context, locale string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threads WHERE locale = ?`, locale).Scan(&count)
	if err != nil {
		return 0, emberrors.StoreError("count threads", err)
	}
	return count, nil
}

// AllThreads returns every thread in a locale in creation order. This
// is the full-reindex feed, so it does not paginate.
func (s *Store) AllThreads(ctx context.Context, locale string) ([]*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE locale = ? ORDER BY id`, locale)
	if err != nil {
		return nil, emberrors.StoreError("list all threads", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, emberrors.StoreError("scan thread", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate threads", err)
	}
	return threads, nil
}

// ListPosts returns one page of a thread's posts in creation order.
func (s *Store) ListPosts(ctx context.Context, threadID int64, page, perPage int) ([]*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if page < 1 || perPage < 1 {
		return nil, emberrors.ValidationError(
			fmt.Sprintf("page and page size must be positive (got page %d, size %d)", page, perPage), nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, author, content, created_at
		FROM posts WHERE thread_id = ?
		ORDER BY id LIMIT ? OFFSET ?
	`, threadID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, emberrors.StoreError("list posts", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.Author, &p.Content, &p.CreatedAt); err != nil {
			return nil, emberrors.StoreError("scan post", err)
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate posts", err)
	}
	return posts, nil
}

// PostBodies returns the text of every post in a thread in creation
// order, for building the thread's search document.
func (s *Store) PostBodies(ctx context.Context, threadID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM posts WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, emberrors.StoreError("list post bodies", err)
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, emberrors.StoreError("scan post body", err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate post bodies", err)
	}
	return bodies, nil
}

// DeleteThread removes a thread, its posts, and its watches.
func (s *Store) DeleteThread(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE thread_id = ?`, id); err != nil {
		return emberrors.StoreError("delete posts", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM watches WHERE kind = ? AND thread_id = ?`, WatchThread, id); err != nil {
		return emberrors.StoreError("delete watches", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return emberrors.StoreError("delete thread", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return emberrors.StoreError("rows affected", err)
	}
	if affected == 0 {
		return threadNotFound(id)
	}
	return commit(tx)
}

func threadNotFound(id int64) error {
	return emberrors.New(emberrors.ErrCodeNotFound,
		fmt.Sprintf("no thread with id %d", id), nil)
}

func validateEmail(email string) error {
	if email == "" || !strings.Contains(email, "@") {
		return emberrors.ValidationError(fmt.Sprintf("invalid email %q", email), nil)
	}
	return nil
}

// AddWatch subscribes an email to a thread or a locale. Subscribing
// twice is a no-op.
func (s *Store) AddWatch(ctx context.Context, kind WatchKind, threadID int64, locale, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	switch kind {
	case WatchThread:
		locale = ""
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM threads WHERE id = ?`, threadID).Scan(&exists)
		if err != nil {
			return emberrors.StoreError("look up thread", err)
		}
		if exists == 0 {
			return threadNotFound(threadID)
		}
	case WatchLocale:
		threadID = 0
		if strings.TrimSpace(locale) == "" {
			return emberrors.ValidationError("locale must not be empty", nil)
		}
	default:
		return emberrors.ValidationError(fmt.Sprintf("unknown watch kind %q", kind), nil)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO watches (kind, thread_id, locale, email, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, kind, threadID, locale, email, time.Now().UTC())
	if err != nil {
		return emberrors.StoreError("add watch", err)
	}
	return nil
}

// RemoveWatch drops a subscription. Removing one that does not exist is
// a no-op.
func (s *Store) RemoveWatch(ctx context.Context, kind WatchKind, threadID int64, locale, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	switch kind {
	case WatchThread:
		locale = ""
	case WatchLocale:
		threadID = 0
	default:
		return emberrors.ValidationError(fmt.Sprintf("unknown watch kind %q", kind), nil)
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM watches WHERE kind = ? AND thread_id = ? AND locale = ? AND email = ?
	`, kind, threadID, locale, email)
	if err != nil {
		return emberrors.StoreError("remove watch", err)
	}
	return nil
}

// ThreadWatchers returns the emails watching a thread.
func (s *Store) ThreadWatchers(ctx context.Context, threadID int64) ([]string, error) {
	return s.watcherEmails(ctx,
		`SELECT email FROM watches WHERE kind = ? AND thread_id = ? ORDER BY email`,
		WatchThread, threadID)
}

// LocaleWatchers returns the emails watching a locale's forum.
func (s *Store) LocaleWatchers(ctx context.Context, locale string) ([]string, error) {
	return s.watcherEmails(ctx,
		`SELECT email FROM watches WHERE kind = ? AND locale = ? ORDER BY email`,
		WatchLocale, locale)
}

func (s *Store) watcherEmails(ctx context.Context, query string, args ...any) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, emberrors.StoreError("list watchers", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, emberrors.StoreError("scan watcher", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate watchers", err)
	}
	return emails, nil
}

// WatchesByEmail lists everything one email is subscribed to.
func (s *Store) WatchesByEmail(ctx context.Context, email string) ([]*Watch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, thread_id, locale, email, created_at
		FROM watches WHERE email = ? ORDER BY id
	`, email)
	if err != nil {
		return nil, emberrors.StoreError("list watches", err)
	}
	defer rows.Close()

	var watches []*Watch
	for rows.Next() {
		var w Watch
		if err := rows.Scan(&w.ID, &w.Kind, &w.ThreadID, &w.Locale, &w.Email, &w.CreatedAt); err != nil {
			return nil, emberrors.StoreError("scan watch", err)
		}
		watches = append(watches, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, emberrors.StoreError("iterate watches", err)
	}
	return watches, nil
}
