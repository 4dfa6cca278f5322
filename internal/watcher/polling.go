package watcher

import (
	"os"
	"path/filepath"
	"time"
)

// pollingWatcher detects changes by rescanning the directory. It is
// the fallback for filesystems where fsnotify delivers nothing.
type pollingWatcher struct {
	dir      string
	interval time.Duration
	events   chan FileEvent
	errs     chan error
	stopCh   chan struct{}
	doneCh   chan struct{}

	seen map[string]pollSnapshot
}

type pollSnapshot struct {
	modTime time.Time
	size    int64
}

func newPollingWatcher(dir string, interval time.Duration) *pollingWatcher {
	return &pollingWatcher{
		dir:      dir,
		interval: interval,
		events:   make(chan FileEvent, 64),
		errs:     make(chan error, 4),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		seen:     make(map[string]pollSnapshot),
	}
}

// start primes the baseline scan and launches the poll loop. The first
// scan emits nothing: files already present are handled by the
// importer's initial pass, not as events.
func (p *pollingWatcher) start() error {
	if _, err := p.scan(false); err != nil {
		return err
	}
	go p.loop()
	return nil
}

func (p *pollingWatcher) loop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if _, err := p.scan(true); err != nil {
				select {
				case p.errs <- err:
				default:
				}
			}
		}
	}
}

// scan walks the flat directory and, when emit is set, pushes an event
// per created, modified, or deleted rule file since the last scan.
func (p *pollingWatcher) scan(emit bool) (int, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	current := make(map[string]pollSnapshot, len(entries))
	changes := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(p.dir, entry.Name())
		if Locale(path) == "" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // racing a delete
		}
		snap := pollSnapshot{modTime: info.ModTime(), size: info.Size()}
		current[path] = snap

		prev, existed := p.seen[path]
		if !emit {
			continue
		}
		switch {
		case !existed:
			changes++
			p.emit(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			changes++
			p.emit(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}

	if emit {
		for path := range p.seen {
			if _, still := current[path]; !still {
				changes++
				p.emit(FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
			}
		}
	}

	p.seen = current
	return changes, nil
}

func (p *pollingWatcher) emit(event FileEvent) {
	select {
	case p.events <- event:
	default:
	}
}

func (p *pollingWatcher) stop() {
	close(p.stopCh)
	<-p.doneCh
}
