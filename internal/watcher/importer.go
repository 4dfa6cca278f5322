package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	emberrors "github.com/emberboard/emberboard/internal/errors"
	"github.com/emberboard/emberboard/internal/synonym"
)

// RuleStore is the slice of the store the importer writes to.
type RuleStore interface {
	ReplaceRules(ctx context.Context, locale string, pairs []synonym.Pair) error
}

// ImporterConfig wires an Importer.
type ImporterConfig struct {
	// Dir is the flat directory of <locale>.txt rule files (required).
	Dir string

	// Store receives the parsed rule sets (required).
	Store RuleStore

	// Enqueue schedules an index sync for a locale after its rules
	// change. Nil leaves syncing to whoever else watches staleness.
	Enqueue func(locale string)

	// Options tunes the underlying watcher.
	Options Options
}

// Importer feeds rule files into the store: one initial sweep, then
// continuous imports as files change. Each import replaces the
// locale's whole rule set, so the file is authoritative for its
// locale while the importer runs.
type Importer struct {
	dir     string
	store   RuleStore
	enqueue func(locale string)
	watcher *Watcher
}

// NewImporter creates an importer.
func NewImporter(cfg ImporterConfig) (*Importer, error) {
	if cfg.Dir == "" {
		return nil, emberrors.ConfigError("importer needs a synonyms directory", nil)
	}
	if cfg.Store == nil {
		return nil, emberrors.ConfigError("importer needs a rule store", nil)
	}
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions()
	}
	return &Importer{
		dir:     cfg.Dir,
		store:   cfg.Store,
		enqueue: cfg.Enqueue,
		watcher: New(cfg.Options),
	}, nil
}

// ImportAll sweeps the directory once, importing every rule file.
// Files that fail to parse are reported and skipped; the sweep
// continues so one broken file never blocks the others.
func (imp *Importer) ImportAll(ctx context.Context) error {
	entries, err := os.ReadDir(imp.dir)
	if err != nil {
		return emberrors.ConfigError("read synonyms directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(imp.dir, entry.Name())
		if Locale(path) == "" {
			continue
		}
		imp.importFile(ctx, path)
	}
	return nil
}

// Run does the initial sweep and then imports on every change until
// ctx is canceled.
func (imp *Importer) Run(ctx context.Context) error {
	if err := imp.ImportAll(ctx); err != nil {
		return err
	}
	if err := imp.watcher.Start(imp.dir); err != nil {
		return err
	}
	defer imp.watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-imp.watcher.Events():
			if !ok {
				return nil
			}
			for _, event := range batch {
				imp.handle(ctx, event)
			}
		case err := <-imp.watcher.Errors():
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

func (imp *Importer) handle(ctx context.Context, event FileEvent) {
	switch event.Operation {
	case OpCreate, OpModify:
		imp.importFile(ctx, event.Path)
	case OpDelete:
		// The directory is authoritative while the importer runs:
		// removing a file clears its locale. Editor rename-swaps do
		// not land here, the debouncer folds delete+create into a
		// modify.
		imp.clearLocale(ctx, event.Path)
	}
}

// clearLocale drops every rule of the locale a removed file covered.
func (imp *Importer) clearLocale(ctx context.Context, path string) {
	locale := Locale(path)
	if locale == "" {
		return
	}
	if err := imp.store.ReplaceRules(ctx, locale, nil); err != nil {
		slog.Warn("rule_clear_failed",
			slog.String("locale", locale),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("rules_cleared", slog.String("locale", locale))
	if imp.enqueue != nil {
		imp.enqueue(locale)
	}
}

// importFile parses one rule file and replaces its locale's rule set.
// Problems are logged, not returned: the importer is a long-running
// background loop with nobody to hand an error to.
func (imp *Importer) importFile(ctx context.Context, path string) {
	locale := Locale(path)
	if locale == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("rule_file_unreadable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	pairs, err := synonym.Parse(string(data))
	if err != nil {
		var perr *synonym.ParseError
		if errors.As(err, &perr) {
			for _, line := range perr.Lines {
				slog.Warn("rule_file_bad_line",
					slog.String("path", path),
					slog.Int("line", line.Line),
					slog.String("reason", line.Reason),
					slog.String("text", line.Text))
			}
		} else {
			slog.Warn("rule_file_unparseable",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return
	}

	if err := imp.store.ReplaceRules(ctx, locale, pairs); err != nil {
		slog.Warn("rule_import_failed",
			slog.String("path", path),
			slog.String("locale", locale),
			slog.String("error", err.Error()))
		return
	}

	slog.Info("rules_imported",
		slog.String("locale", locale),
		slog.Int("rules", len(pairs)))
	if imp.enqueue != nil {
		imp.enqueue(locale)
	}
}
