package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation says what happened to a rule file.
type Operation int

const (
	// OpCreate means a new rule file appeared.
	OpCreate Operation = iota
	// OpModify means an existing rule file changed.
	OpModify
	// OpDelete means a rule file went away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a rule file.
type FileEvent struct {
	// Path is the absolute path of the file.
	Path string
	// Operation is what happened to it.
	Operation Operation
	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Locale returns the locale a rule file belongs to, or "" when the
// path is not a rule file. Rule files are flat "<locale>.txt" names;
// dotfiles and editor temp files do not count.
func Locale(path string) string {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "#") || strings.HasSuffix(base, "~") {
		return ""
	}
	locale := strings.TrimSuffix(base, ".txt")
	if locale == base || locale == "" {
		return ""
	}
	return locale
}

// Options tunes a Watcher.
type Options struct {
	// DebounceWindow is how long events for the same file are
	// coalesced before being emitted.
	DebounceWindow time.Duration

	// PollInterval is the scan period of the polling fallback.
	PollInterval time.Duration

	// ForcePolling skips fsnotify entirely. For tests and for mounts
	// known not to deliver inotify events.
	ForcePolling bool
}

// DefaultOptions returns the standard watcher tuning.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
		PollInterval:   2 * time.Second,
	}
}
