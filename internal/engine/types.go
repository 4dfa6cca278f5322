// Package engine adapts bleve as Emberboard's search engine: one index
// per locale, a custom query-time synonym token filter, and staged
// generation swaps for filter changes (bleve mappings are immutable, so
// a new filter means a new index).
package engine

import (
	"context"
	"time"
)

// Document is one searchable unit: a forum thread with the text of all
// its posts.
type Document struct {
	ID      string // "thread-<id>"
	Title   string
	Content string
}

// DocumentSource feeds full rebuilds. The store is the source of truth;
// a rebuild never copies documents out of the old index.
type DocumentSource interface {
	Documents(ctx context.Context, locale string) ([]Document, error)
}

// SearchHit is one matching document.
type SearchHit struct {
	ID    string
	Score float64
	Title string
}

// SearchResult is the outcome of one query.
type SearchResult struct {
	Total uint64
	Took  time.Duration
	Hits  []SearchHit
}

// Config configures the engine.
type Config struct {
	// Dir is the index root; each locale keeps its generations in a
	// subdirectory. Ignored when MemOnly is set.
	Dir string

	// MemOnly keeps every index in memory: no directories, no file
	// lock. For tests.
	MemOnly bool
}

// searchDoc is the shape bleve indexes. The document ID travels
// separately.
type searchDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
