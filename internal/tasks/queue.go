// Package tasks runs keyed background jobs with coalescing: enqueue a
// locale as often as you like, at most one sync for it is ever in
// flight, and triggers that arrive mid-run fold into a single re-run.
package tasks

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	emberrors "github.com/emberboard/emberboard/internal/errors"
)

const (
	// DefaultWorkers drains the queue with this many goroutines.
	DefaultWorkers = 2

	// DefaultQueueSize bounds the waiting queue. Coalescing keeps at
	// most one entry per key, so this only matters with very many
	// locales.
	DefaultQueueSize = 64
)

// Handler does the work for one key. The queue logs failures and moves
// on; retries are the handler's business.
type Handler func(ctx context.Context, key string) error

// Config wires a Queue.
type Config struct {
	// Handler is called once per drained key (required).
	Handler Handler

	// Workers overrides DefaultWorkers when positive.
	Workers int

	// QueueSize overrides DefaultQueueSize when positive.
	QueueSize int
}

// Queue is a fire-and-forget task queue keyed by locale.
type Queue struct {
	handler Handler
	workers int

	mu      sync.Mutex
	queued  map[string]bool
	running map[string]bool
	dirty   map[string]bool
	started bool
	stopped bool

	ch     chan string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a queue. Call Start to begin draining.
func New(cfg Config) (*Queue, error) {
	if cfg.Handler == nil {
		return nil, emberrors.ConfigError("queue needs a handler", nil)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &Queue{
		handler: cfg.Handler,
		workers: workers,
		queued:  make(map[string]bool),
		running: make(map[string]bool),
		dirty:   make(map[string]bool),
		ch:      make(chan string, size),
		stopCh:  make(chan struct{}),
	}, nil
}

// Enqueue requests a run for the key and returns immediately. While
// the key waits in the queue, further enqueues are no-ops; while it
// runs, they mark it dirty so the worker goes again once with fresh
// data after the current run finishes.
func (q *Queue) Enqueue(key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	if q.queued[key] {
		return
	}
	if q.running[key] {
		q.dirty[key] = true
		return
	}

	select {
	case q.ch <- key:
		q.queued[key] = true
	default:
		slog.Warn("sync_queue_full", slog.String("key", key))
	}
}

// Pending reports how many keys wait in the queue (not counting any
// in flight).
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// Start launches the worker pool. Idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	slog.Info("sync_queue_started", slog.Int("workers", q.workers))
}

// Stop stops accepting work, lets in-flight handlers finish, and waits
// for the workers to exit. Keys still waiting in the queue are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.stopped = true
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	slog.Info("sync_queue_stopped")
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case key := <-q.ch:
			q.run(ctx, key)
		}
	}
}

// run executes the handler for a key, re-running once per dirty mark
// batch until the key comes out clean. The dirty check and the
// running-flag clear share one critical section, so an enqueue racing
// the handler's completion either marks the run dirty or queues the
// key fresh; it is never lost.
func (q *Queue) run(ctx context.Context, key string) {
	q.mu.Lock()
	delete(q.queued, key)
	q.running[key] = true
	q.mu.Unlock()

	for {
		if err := q.handler(ctx, key); err != nil {
			slog.Error("sync_task_failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}

		q.mu.Lock()
		if !q.dirty[key] {
			delete(q.running, key)
			q.mu.Unlock()
			return
		}
		delete(q.dirty, key)
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			q.clearRunning(key)
			return
		case <-q.stopCh:
			q.clearRunning(key)
			return
		default:
		}
	}
}

func (q *Queue) clearRunning(key string) {
	q.mu.Lock()
	delete(q.running, key)
	q.mu.Unlock()
}
