package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid events for the same file so an editor's
// save (temp file, rename, rewrite) imports once. Within the window,
// operations for one path merge:
//
//	CREATE + MODIFY = CREATE  (still a new file)
//	CREATE + DELETE = nothing (never really existed)
//	MODIFY + DELETE = DELETE
//	DELETE + CREATE = MODIFY  (replaced in place)
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]FileEvent
	first   map[string]Operation
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

// NewDebouncer creates a debouncer emitting batches on Events after
// each quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		first:   make(map[string]Operation),
		output:  make(chan []FileEvent, 8),
	}
}

// Add feeds one event into the current window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	path := event.Path
	if prev, ok := d.pending[path]; ok {
		merged, keep := coalesce(d.first[path], prev.Operation, event.Operation)
		if !keep {
			delete(d.pending, path)
			delete(d.first, path)
		} else {
			prev.Operation = merged
			prev.Timestamp = event.Timestamp
			d.pending[path] = prev
		}
	} else {
		d.pending[path] = event
		d.first[path] = event.Operation
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new operation into a pending one. keep=false means
// the pending event cancels out entirely.
func coalesce(first, current, next Operation) (merged Operation, keep bool) {
	switch {
	case first == OpCreate && next == OpDelete:
		return 0, false
	case first == OpCreate:
		return OpCreate, true
	case current == OpDelete && next == OpCreate:
		return OpModify, true
	case next == OpDelete:
		return OpDelete, true
	default:
		return OpModify, true
	}
}

// Events delivers one batch per quiet window.
func (d *Debouncer) Events() <-chan []FileEvent {
	return d.output
}

// Flush emits whatever is pending right now without waiting for the
// window to elapse.
func (d *Debouncer) Flush() {
	d.flush()
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]FileEvent, 0, len(d.pending))
	for _, event := range d.pending {
		batch = append(batch, event)
	}
	d.pending = make(map[string]FileEvent)
	d.first = make(map[string]Operation)
	d.mu.Unlock()

	select {
	case d.output <- batch:
	default:
		// Consumer is gone or wedged; dropping is safe because the
		// importer re-reads files, it does not replay events.
	}
}

// Stop discards pending events and closes the output channel.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	d.first = nil
	d.mu.Unlock()

	close(d.output)
}
