package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches one flat directory of rule files and emits debounced
// event batches. It prefers fsnotify and falls back to polling when
// the notify watch cannot be established.
type Watcher struct {
	opts      Options
	debouncer *Debouncer

	mu      sync.Mutex
	started bool
	stopped bool

	notify  *fsnotify.Watcher
	polling *pollingWatcher
	errs    chan error
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a watcher with the given options.
func New(opts Options) *Watcher {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultOptions().DebounceWindow
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	return &Watcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		errs:      make(chan error, 4),
		stopCh:    make(chan struct{}),
	}
}

// Start begins watching dir. It fails when dir does not exist or is
// not a directory.
func (w *Watcher) Start(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("watcher already started")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("synonyms dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("synonyms dir %s is not a directory", dir)
	}

	if !w.opts.ForcePolling {
		if err := w.startNotify(dir); err == nil {
			w.started = true
			slog.Info("watch_started", slog.String("dir", dir), slog.String("mode", "fsnotify"))
			return nil
		} else {
			slog.Warn("fsnotify_unavailable",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
		}
	}

	w.polling = newPollingWatcher(dir, w.opts.PollInterval)
	if err := w.polling.start(); err != nil {
		return fmt.Errorf("start polling watcher: %w", err)
	}
	w.wg.Add(1)
	go w.pumpPolling()
	w.started = true
	slog.Info("watch_started", slog.String("dir", dir), slog.String("mode", "polling"))
	return nil
}

func (w *Watcher) startNotify(dir string) error {
	nw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := nw.Add(dir); err != nil {
		_ = nw.Close()
		return err
	}
	w.notify = nw
	w.wg.Add(1)
	go w.pumpNotify()
	return nil
}

// pumpNotify translates fsnotify events into debounced FileEvents.
func (w *Watcher) pumpNotify() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.notify.Events:
			if !ok {
				return
			}
			if Locale(event.Name) == "" {
				continue
			}
			op, ok := notifyOp(event.Op)
			if !ok {
				continue
			}
			w.debouncer.Add(FileEvent{Path: event.Name, Operation: op, Timestamp: time.Now()})
		case err, ok := <-w.notify.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// notifyOp maps an fsnotify op onto ours. Renames read as deletes: if
// the file came back under a watched name there is a matching create.
func notifyOp(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	default:
		return 0, false
	}
}

func (w *Watcher) pumpPolling() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.polling.events:
			if !ok {
				return
			}
			w.debouncer.Add(event)
		case err, ok := <-w.polling.errs:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// Events delivers debounced batches of rule-file changes.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Events()
}

// Errors delivers watch-level failures. The watcher keeps running
// after an error; the importer decides whether to bail.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop halts watching and closes the event channel. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped || !w.started {
		w.stopped = true
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	if w.notify != nil {
		_ = w.notify.Close()
	}
	if w.polling != nil {
		w.polling.stop()
	}
	w.wg.Wait()
	w.debouncer.Stop()
}
