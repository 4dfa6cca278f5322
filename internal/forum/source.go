package forum

import (
	"context"

	"github.com/emberboard/emberboard/internal/engine"
	"github.com/emberboard/emberboard/internal/store"
)

// Source feeds full index rebuilds straight from the store, one
// document per thread. It deliberately knows nothing about the engine
// instance, so it can be handed to engine.New without a cycle.
type Source struct {
	store *store.Store
}

var _ engine.DocumentSource = (*Source)(nil)

// NewSource creates a rebuild source over the store.
func NewSource(s *store.Store) *Source {
	return &Source{store: s}
}

// Documents implements engine.DocumentSource.
func (s *Source) Documents(ctx context.Context, locale string) ([]engine.Document, error) {
	threads, err := s.store.AllThreads(ctx, locale)
	if err != nil {
		return nil, err
	}

	docs := make([]engine.Document, 0, len(threads))
	for _, thread := range threads {
		bodies, err := s.store.PostBodies(ctx, thread.ID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, buildDocument(thread, bodies))
	}
	return docs, nil
}
