package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gofrs/flock"

	emberrors "github.com/emberboard/emberboard/internal/errors"
	"github.com/emberboard/emberboard/internal/synonym"
)

// reindexBatchSize bounds memory during full rebuilds.
const reindexBatchSize = 200

// stagedIndex is a generation created by ApplyFilter and not yet
// promoted. It is invisible to searches until Reindex fills it.
type stagedIndex struct {
	index      bleve.Index
	generation int
	spec       synonym.FilterSpec
}

// localeIndex is the live index for one locale plus its staged
// successor, if any.
type localeIndex struct {
	index      bleve.Index
	generation int
	spec       synonym.FilterSpec
	staged     *stagedIndex
}

// Engine owns one bleve index per locale under a single root directory.
// A file lock guards the root: exactly one process serves an index
// tree at a time.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	source  DocumentSource
	lock    *flock.Flock
	locales map[string]*localeIndex
	closed  bool
}

// New opens the engine. The source feeds full rebuilds and may be nil
// when Reindex is never used (pure search tooling, some tests).
func New(cfg Config, source DocumentSource) (*Engine, error) {
	e := &Engine{cfg: cfg, source: source, locales: make(map[string]*localeIndex)}
	if cfg.MemOnly {
		return e, nil
	}

	if cfg.Dir == "" {
		return nil, emberrors.ConfigError("engine needs an index directory", nil)
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, unavailable(fmt.Sprintf("create index root %s", cfg.Dir), err)
	}

	lock := flock.New(filepath.Join(cfg.Dir, ".lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, unavailable("acquire index lock", err)
	}
	if !acquired {
		return nil, unavailable("index directory is locked by another process", nil).
			WithDetail("path", cfg.Dir).
			WithSuggestion("stop the other emberboard process, or point data_dir somewhere else")
	}
	e.lock = lock
	return e, nil
}

func unavailable(msg string, cause error) *emberrors.EmberError {
	return emberrors.IndexUnavailable(msg, cause)
}

// isCorruptionError reports whether a bleve open failure means the
// index files are damaged rather than merely busy or missing a parent.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		strings.Contains(msg, "no such file or directory")
}

func (e *Engine) genDir(locale string, gen int) string {
	return filepath.Join(e.cfg.Dir, locale, fmt.Sprintf("gen-%d", gen))
}

// highestGeneration finds the newest generation directory for a locale,
// or 0 when the locale has never been indexed.
func highestGeneration(localeDir string) (int, error) {
	entries, err := os.ReadDir(localeDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		suffix, ok := strings.CutPrefix(entry.Name(), "gen-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 1 {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

// removeOtherGenerations clears generation directories other than the
// ones to keep. Interrupted promotes leave these behind.
func (e *Engine) removeOtherGenerations(locale string, keep ...int) {
	localeDir := filepath.Join(e.cfg.Dir, locale)
	entries, err := os.ReadDir(localeDir)
	if err != nil {
		return
	}

	kept := make(map[string]struct{}, len(keep))
	for _, gen := range keep {
		kept[fmt.Sprintf("gen-%d", gen)] = struct{}{}
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, "gen-") {
			continue
		}
		if _, ok := kept[name]; ok {
			continue
		}
		_ = os.RemoveAll(filepath.Join(localeDir, name))
	}
}

// createGeneration builds a fresh index whose mapping bakes in the
// given filter spec.
func (e *Engine) createGeneration(locale string, gen int, spec synonym.FilterSpec) (bleve.Index, error) {
	m, err := buildIndexMapping(spec)
	if err != nil {
		return nil, emberrors.FilterRejected("engine refused filter "+spec.Name, err)
	}

	if e.cfg.MemOnly {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, unavailable("create in-memory index", err)
		}
		return idx, nil
	}

	dir := e.genDir(locale, gen)
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, unavailable("create locale directory", err)
	}
	// A crash mid-sync can leave a half-written generation behind.
	_ = os.RemoveAll(dir)

	idx, err := bleve.New(dir, m)
	if err != nil {
		return nil, unavailable("create index", err)
	}
	return idx, nil
}

// getOrOpenLocked returns the locale's live index, opening or creating
// it on first use. Callers hold e.mu.
func (e *Engine) getOrOpenLocked(locale string) (*localeIndex, error) {
	if li, ok := e.locales[locale]; ok {
		return li, nil
	}
	if strings.TrimSpace(locale) == "" {
		return nil, emberrors.ValidationError("locale must not be empty", nil)
	}

	// A locale that has never been synced still gets a working index;
	// the fallback spec maps a term to itself, so searches behave as
	// if no synonyms exist.
	spec := synonym.Compile(locale, nil)

	if e.cfg.MemOnly {
		idx, err := e.createGeneration(locale, 1, spec)
		if err != nil {
			return nil, err
		}
		li := &localeIndex{index: idx, generation: 1, spec: spec}
		e.locales[locale] = li
		return li, nil
	}

	gen, err := highestGeneration(filepath.Join(e.cfg.Dir, locale))
	if err != nil {
		return nil, unavailable("scan index directory", err)
	}

	var idx bleve.Index
	if gen == 0 {
		gen = 1
		idx, err = e.createGeneration(locale, gen, spec)
		if err != nil {
			return nil, err
		}
	} else {
		dir := e.genDir(locale, gen)
		idx, err = bleve.Open(dir)
		switch {
		case err == nil:
			// The stored mapping carries the vocabulary this
			// generation was built with.
			if recovered, ok := specFromMapping(idx.Mapping()); ok {
				spec = recovered
			}
		case isCorruptionError(err):
			slog.Warn("index_corrupted",
				slog.String("locale", locale),
				slog.String("path", dir),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(dir); removeErr != nil {
				return nil, emberrors.New(emberrors.ErrCodeIndexCorrupt,
					fmt.Sprintf("index for %s is corrupt and cannot be cleared", locale), err)
			}
			idx, err = e.createGeneration(locale, gen, spec)
			if err != nil {
				return nil, err
			}
			slog.Info("index_recreated",
				slog.String("locale", locale),
				slog.String("reason", "corruption detected, run a sync to rebuild"))
		default:
			return nil, unavailable(fmt.Sprintf("open index for %s", locale), err)
		}
	}

	e.removeOtherGenerations(locale, gen)

	li := &localeIndex{index: idx, generation: gen, spec: spec}
	e.locales[locale] = li
	slog.Debug("index_opened", slog.String("locale", locale), slog.Int("generation", gen))
	return li, nil
}

// ApplyFilter validates a compiled filter and stages a new index
// generation carrying it. The staged generation stays invisible to
// searches until Reindex fills and promotes it. Rejections are
// permanent; availability problems are transient and retryable.
func (e *Engine) ApplyFilter(ctx context.Context, locale string, spec synonym.FilterSpec) error {
	if err := validateSpec(spec); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return unavailable("engine is closed", nil)
	}

	li, err := e.getOrOpenLocked(locale)
	if err != nil {
		return err
	}

	// A newer filter supersedes any staged-but-unfilled predecessor.
	if li.staged != nil {
		_ = li.staged.index.Close()
		if !e.cfg.MemOnly {
			_ = os.RemoveAll(e.genDir(locale, li.staged.generation))
		}
		li.staged = nil
	}

	gen := li.generation + 1
	idx, err := e.createGeneration(locale, gen, spec)
	if err != nil {
		return err
	}
	li.staged = &stagedIndex{index: idx, generation: gen, spec: spec}

	slog.Info("filter_applied",
		slog.String("locale", locale),
		slog.String("filter", spec.Name),
		slog.Int("entries", len(spec.Body.Synonyms)),
		slog.Int("generation", gen))
	return nil
}

// Reindex rebuilds a locale from the document source into the staged
// generation and atomically promotes it. Without a staged generation
// (no filter change) it rebuilds under the current filter, so a plain
// reindex also works. Searches keep hitting the old generation until
// the swap.
func (e *Engine) Reindex(ctx context.Context, locale string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return unavailable("engine is closed", nil)
	}
	if e.source == nil {
		e.mu.Unlock()
		return emberrors.InternalError("engine has no document source", nil)
	}

	li, err := e.getOrOpenLocked(locale)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if li.staged == nil {
		gen := li.generation + 1
		idx, err := e.createGeneration(locale, gen, li.spec)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		li.staged = &stagedIndex{index: idx, generation: gen, spec: li.spec}
	}
	staged := li.staged
	e.mu.Unlock()

	start := time.Now()
	count, err := e.fill(ctx, locale, staged)
	if err != nil {
		e.discardStaged(locale, li, staged)
		return err
	}

	// Promote.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return unavailable("engine is closed", nil)
	}
	if li.staged != staged {
		// A concurrent ApplyFilter replaced the generation we just
		// filled; this rebuild is obsolete.
		e.mu.Unlock()
		_ = staged.index.Close()
		if !e.cfg.MemOnly {
			_ = os.RemoveAll(e.genDir(locale, staged.generation))
		}
		return unavailable("filter changed during rebuild", nil)
	}
	old := li.index
	oldGen := li.generation
	li.index = staged.index
	li.generation = staged.generation
	li.spec = staged.spec
	li.staged = nil
	e.mu.Unlock()

	if old != nil {
		_ = old.Close()
		if !e.cfg.MemOnly {
			_ = os.RemoveAll(e.genDir(locale, oldGen))
		}
	}

	slog.Info("reindex_complete",
		slog.String("locale", locale),
		slog.Int("documents", count),
		slog.Int("generation", staged.generation),
		slog.Duration("took", time.Since(start)))
	return nil
}

// fill streams every document for the locale into the staged index.
func (e *Engine) fill(ctx context.Context, locale string, staged *stagedIndex) (int, error) {
	docs, err := e.source.Documents(ctx, locale)
	if err != nil {
		return 0, err
	}

	batch := staged.index.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return 0, unavailable("rebuild cancelled", err)
		}
		if err := batch.Index(doc.ID, searchDoc{Title: doc.Title, Content: doc.Content}); err != nil {
			return 0, unavailable(fmt.Sprintf("index document %s", doc.ID), err)
		}
		if batch.Size() >= reindexBatchSize {
			if err := staged.index.Batch(batch); err != nil {
				return 0, unavailable("write batch", err)
			}
			batch = staged.index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := staged.index.Batch(batch); err != nil {
			return 0, unavailable("write batch", err)
		}
	}
	return len(docs), nil
}

// discardStaged throws a failed rebuild away so the next attempt
// starts from scratch instead of on top of a partial fill.
func (e *Engine) discardStaged(locale string, li *localeIndex, staged *stagedIndex) {
	e.mu.Lock()
	if li.staged == staged {
		li.staged = nil
	}
	e.mu.Unlock()

	_ = staged.index.Close()
	if !e.cfg.MemOnly {
		_ = os.RemoveAll(e.genDir(locale, staged.generation))
	}
}

// Index upserts documents into the locale's live generation. When a
// rebuild is mid-flight the staged generation gets the same write, so
// promoting it loses nothing.
func (e *Engine) Index(ctx context.Context, locale string, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if doc.ID == "" {
			return emberrors.ValidationError("document has no id", nil)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return unavailable("engine is closed", nil)
	}

	li, err := e.getOrOpenLocked(locale)
	if err != nil {
		return err
	}

	targets := []bleve.Index{li.index}
	if li.staged != nil {
		targets = append(targets, li.staged.index)
	}
	for _, idx := range targets {
		batch := idx.NewBatch()
		for _, doc := range docs {
			if err := batch.Index(doc.ID, searchDoc{Title: doc.Title, Content: doc.Content}); err != nil {
				return unavailable(fmt.Sprintf("index document %s", doc.ID), err)
			}
		}
		if err := idx.Batch(batch); err != nil {
			return unavailable("index documents", err)
		}
	}
	return nil
}

// Delete removes documents from the locale's live generation (and any
// staged one).
func (e *Engine) Delete(ctx context.Context, locale string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return unavailable("engine is closed", nil)
	}

	li, err := e.getOrOpenLocked(locale)
	if err != nil {
		return err
	}

	targets := []bleve.Index{li.index}
	if li.staged != nil {
		targets = append(targets, li.staged.index)
	}
	for _, idx := range targets {
		batch := idx.NewBatch()
		for _, id := range ids {
			batch.Delete(id)
		}
		if err := idx.Batch(batch); err != nil {
			return unavailable("delete documents", err)
		}
	}
	return nil
}

// Search runs a match query over title and content with the locale's
// synonym-expanding query analyzer.
func (e *Engine) Search(ctx context.Context, locale, queryStr string, limit int) (*SearchResult, error) {
	if strings.TrimSpace(queryStr) == "" {
		return nil, emberrors.New(emberrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	if limit < 1 {
		return nil, emberrors.ValidationError(fmt.Sprintf("limit must be positive, got %d", limit), nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, unavailable("engine is closed", nil)
	}

	li, err := e.getOrOpenLocked(locale)
	if err != nil {
		return nil, err
	}

	title := bleve.NewMatchQuery(queryStr)
	title.SetField("title")
	title.Analyzer = queryAnalyzerName

	content := bleve.NewMatchQuery(queryStr)
	content.SetField("content")
	content.Analyzer = queryAnalyzerName

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(title, content))
	req.Size = limit
	req.Fields = []string{"title"}

	res, err := li.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, emberrors.New(emberrors.ErrCodeSearchFailed, "search failed", err)
	}

	out := &SearchResult{
		Total: res.Total,
		Took:  res.Took,
		Hits:  make([]SearchHit, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}
		if title, ok := hit.Fields["title"].(string); ok {
			h.Title = title
		}
		out.Hits = append(out.Hits, h)
	}
	return out, nil
}

// DocCount returns how many documents the locale's live generation
// holds.
func (e *Engine) DocCount(locale string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, unavailable("engine is closed", nil)
	}

	li, err := e.getOrOpenLocked(locale)
	if err != nil {
		return 0, err
	}
	count, err := li.index.DocCount()
	if err != nil {
		return 0, unavailable("count documents", err)
	}
	return count, nil
}

// Close closes every index and releases the directory lock. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for _, li := range e.locales {
		if li.staged != nil {
			_ = li.staged.index.Close()
		}
		if err := li.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.lock != nil {
		_ = e.lock.Unlock()
	}
	return firstErr
}
