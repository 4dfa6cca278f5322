package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberboard/emberboard/internal/output"
	"github.com/emberboard/emberboard/internal/tasks"
	"github.com/emberboard/emberboard/internal/watcher"
)

// stalenessPollInterval is how often the watch daemon re-checks the
// store for locales mutated by other processes.
const stalenessPollInterval = 5 * time.Second

func newSyncCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync [locale...]",
		Short: "Rebuild search indexes from the stored synonym rules",
		Long: `Compile each locale's synonym rules into the engine's filter and
rebuild its index. With no arguments every known locale is rebuilt.

--watch keeps the process running: rule mutations queue background
rebuilds, and if synonyms.dir is configured, <locale>.txt files dropped
there are imported automatically.`,
		Example: `  # One-shot rebuild of everything
  emberboard sync

  # Just one locale
  emberboard sync en-US

  # Long-running sync daemon with the file importer
  emberboard sync --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if watch {
				return runSyncWatch(cmd.Context(), cmd, a)
			}
			return runSyncOnce(cmd.Context(), cmd, a, args)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and sync on changes")
	return cmd
}

func runSyncOnce(ctx context.Context, cmd *cobra.Command, a *app, locales []string) error {
	out := output.New(cmd.OutOrStdout())

	if len(locales) == 0 {
		if err := a.sync.SynchronizeAll(ctx); err != nil {
			return err
		}
		out.Success("all locales synchronized")
		return nil
	}

	for _, locale := range locales {
		if err := a.sync.Synchronize(ctx, locale); err != nil {
			return err
		}
		out.Successf("%s synchronized", locale)
	}
	return nil
}

// runSyncWatch is the long-running form: a coalescing queue drains
// sync work in the background, and the rule-file importer (when a
// synonyms dir is configured) feeds it. Stops on SIGINT/SIGTERM.
func runSyncWatch(ctx context.Context, cmd *cobra.Command, a *app) error {
	out := output.New(cmd.OutOrStdout())

	queue, err := tasks.New(tasks.Config{
		Handler:   a.sync.Synchronize,
		Workers:   a.cfg.Sync.Workers,
		QueueSize: a.cfg.Sync.QueueSize,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	queue.Start(ctx)
	defer queue.Stop()

	// Catch up before settling into watch mode.
	if err := a.sync.SynchronizeAll(ctx); err != nil {
		out.Warningf("initial sync: %v", err)
	}

	importerDone := make(chan error, 1)
	if dir := a.cfg.Synonyms.Dir; dir != "" {
		imp, err := watcher.NewImporter(watcher.ImporterConfig{
			Dir:     dir,
			Store:   a.store,
			Enqueue: queue.Enqueue,
			Options: watcher.Options{
				DebounceWindow: a.cfg.WatchDebounceDuration(),
				PollInterval:   watcher.DefaultOptions().PollInterval,
			},
		})
		if err != nil {
			return err
		}
		go func() { importerDone <- imp.Run(ctx) }()
		out.Statusf("👀", "watching %s", dir)
	} else {
		out.Status("·", "no synonyms.dir configured; watching the store only")
		go func() { <-ctx.Done(); importerDone <- ctx.Err() }()
	}

	// Without a file importer, staleness still gets drained: poll the
	// store and queue any locale whose index trails its rules.
	go pollStaleness(ctx, a, queue)

	out.Status("⏳", "sync daemon running; Ctrl-C to stop")
	err = <-importerDone
	if err == context.Canceled {
		return nil
	}
	return err
}

// pollStaleness enqueues locales whose synced revision trails the rule
// revision. It is the safety net for mutations made by other processes
// while the daemon runs.
func pollStaleness(ctx context.Context, a *app, queue *tasks.Queue) {
	ticker := time.NewTicker(stalenessPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			locales, err := a.store.Locales(ctx)
			if err != nil {
				continue
			}
			for _, locale := range locales {
				state, err := a.store.SyncState(ctx, locale)
				if err != nil {
					continue
				}
				if state.Stale() {
					queue.Enqueue(locale)
				}
			}
		}
	}
}
