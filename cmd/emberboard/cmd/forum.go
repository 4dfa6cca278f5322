package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emberboard/emberboard/internal/output"
	"github.com/emberboard/emberboard/internal/store"
)

func newForumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forum",
		Short: "Post, browse, and watch forum threads",
		Example: `  emberboard forum post --title "Crash on startup" --author amy "It crashes every time."
  emberboard forum reply 3 --author mel "Try clearing the cache."
  emberboard forum list --sort last-post --desc
  emberboard forum show 3
  emberboard forum watch 3 --email amy@example.com`,
	}

	cmd.AddCommand(newForumPostCmd())
	cmd.AddCommand(newForumReplyCmd())
	cmd.AddCommand(newForumListCmd())
	cmd.AddCommand(newForumShowCmd())
	cmd.AddCommand(newForumDeleteCmd())
	cmd.AddCommand(newForumWatchCmd())
	cmd.AddCommand(newForumUnwatchCmd())

	return cmd
}

func parseThreadID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("thread id must be a number, got %q", arg)
	}
	return id, nil
}

func newForumPostCmd() *cobra.Command {
	var locale, title, author string

	cmd := &cobra.Command{
		Use:     "post <content...>",
		Aliases: []string{"new-thread"},
		Short:   "Start a new thread",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}

			thread, err := a.forum.CreateThread(cmd.Context(), loc, title, author, strings.Join(args, " "))
			if err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Successf("thread %d created in %s", thread.ID, loc)
			return nil
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale (default from config)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Thread title (required)")
	cmd.Flags().StringVarP(&author, "author", "a", "", "Author name (required)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newForumReplyCmd() *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "reply <thread-id> <content...>",
		Short: "Reply to a thread",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseThreadID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			post, err := a.forum.Reply(cmd.Context(), id, author, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Successf("post %d added to thread %d", post.ID, id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&author, "author", "a", "", "Author name (required)")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newForumListCmd() *cobra.Command {
	var locale, sortKey string
	var desc bool
	var page int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"threads"},
		Short:   "List a locale's threads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}

			threads, err := a.forum.ListThreads(cmd.Context(), loc, store.ThreadSort(sortKey), desc, page)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if len(threads) == 0 {
				out.Statusf("·", "no threads in %s (page %d)", loc, page)
				return nil
			}
			for _, thread := range threads {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-40s  %-12s  %3d replies  last %s\n",
					thread.ID, thread.Title, thread.Author, thread.Replies,
					thread.LastPostAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale (default from config)")
	cmd.Flags().StringVarP(&sortKey, "sort", "s", string(store.ThreadSortCreated),
		"Sort key: created, author, replies, last-post")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number (1-based)")
	return cmd
}

func newForumShowCmd() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Show a thread and its posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseThreadID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			thread, err := a.forum.GetThread(cmd.Context(), id)
			if err != nil {
				return err
			}
			posts, err := a.forum.ListPosts(cmd.Context(), id, page)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "#%d %s  [%s]\n", thread.ID, thread.Title, thread.Locale)
			fmt.Fprintf(w, "by %s, %d replies\n\n", thread.Author, thread.Replies)
			for _, post := range posts {
				fmt.Fprintf(w, "-- %s at %s\n%s\n\n",
					post.Author, post.CreatedAt.Format("2006-01-02 15:04"), post.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page of posts (1-based)")
	return cmd
}

func newForumDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread, its posts, and its watches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseThreadID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.forum.DeleteThread(cmd.Context(), id); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("thread %d deleted", id)
			return nil
		},
	}
	return cmd
}

func newForumWatchCmd() *cobra.Command {
	var email, locale string

	cmd := &cobra.Command{
		Use:   "watch [thread-id]",
		Short: "Subscribe to a thread's replies or a locale's new threads",
		Long: `Subscribe an email address. With a thread id, new replies to that
thread notify the address; with --locale and no thread id, new threads
in that locale's forum do.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := output.New(cmd.OutOrStdout())
			if len(args) == 1 {
				id, err := parseThreadID(args[0])
				if err != nil {
					return err
				}
				if err := a.forum.WatchThread(cmd.Context(), id, email); err != nil {
					return err
				}
				out.Successf("%s now watches thread %d", email, id)
				return nil
			}

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}
			if err := a.forum.WatchLocale(cmd.Context(), loc, email); err != nil {
				return err
			}
			out.Successf("%s now watches the %s forum", email, loc)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address to notify (required)")
	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale forum to watch (when no thread id)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newForumUnwatchCmd() *cobra.Command {
	var email, locale string

	cmd := &cobra.Command{
		Use:   "unwatch [thread-id]",
		Short: "Drop a thread or locale subscription",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := output.New(cmd.OutOrStdout())
			if len(args) == 1 {
				id, err := parseThreadID(args[0])
				if err != nil {
					return err
				}
				if err := a.forum.UnwatchThread(cmd.Context(), id, email); err != nil {
					return err
				}
				out.Successf("%s no longer watches thread %d", email, id)
				return nil
			}

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}
			if err := a.forum.UnwatchLocale(cmd.Context(), loc, email); err != nil {
				return err
			}
			out.Successf("%s no longer watches the %s forum", email, loc)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Subscribed email address (required)")
	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale forum (when no thread id)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
