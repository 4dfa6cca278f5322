package forum

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emberboard/emberboard/internal/store"
)

// Notification is one watch-triggered message.
type Notification struct {
	Email   string
	Subject string
	Body    string
}

// Notifier delivers notifications. Delivery is fire-and-forget from
// the forum's perspective; implementations own retries and failures.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the structured log. It stands in
// where no mail transport is wired, and keeps a record either way.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, n Notification) {
	slog.Info("notification",
		slog.String("email", n.Email),
		slog.String("subject", n.Subject))
}

// notifyLocaleWatchers tells a locale's watchers about a new thread.
func (s *Service) notifyLocaleWatchers(ctx context.Context, thread *store.Thread) {
	if s.notifier == nil {
		return
	}
	emails, err := s.store.LocaleWatchers(ctx, thread.Locale)
	if err != nil {
		slog.Warn("locale_watchers_lookup_failed",
			slog.String("locale", thread.Locale),
			slog.String("error", err.Error()))
		return
	}
	for _, email := range emails {
		s.notifier.Notify(ctx, Notification{
			Email:   email,
			Subject: fmt.Sprintf("New thread in %s: %s", thread.Locale, thread.Title),
			Body:    fmt.Sprintf("%s started %q.", thread.Author, thread.Title),
		})
	}
}

// notifyThreadWatchers tells a thread's watchers about a reply. The
// reply's author is skipped.
func (s *Service) notifyThreadWatchers(ctx context.Context, thread *store.Thread, post *store.Post) {
	if s.notifier == nil {
		return
	}
	emails, err := s.store.ThreadWatchers(ctx, thread.ID)
	if err != nil {
		slog.Warn("thread_watchers_lookup_failed",
			slog.Int64("thread", thread.ID),
			slog.String("error", err.Error()))
		return
	}
	for _, email := range emails {
		if email == post.Author {
			continue
		}
		s.notifier.Notify(ctx, Notification{
			Email:   email,
			Subject: fmt.Sprintf("Reply to %s", thread.Title),
			Body:    fmt.Sprintf("%s replied to %q.", post.Author, thread.Title),
		})
	}
}
