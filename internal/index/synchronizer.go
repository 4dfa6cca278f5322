// Package index keeps per-locale search indexes consistent with the
// synonym store: read the locale's rules, compile them into a filter,
// hand the filter to the engine, rebuild, record the synced revision.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	emberrors "github.com/emberboard/emberboard/internal/errors"
	"github.com/emberboard/emberboard/internal/store"
	"github.com/emberboard/emberboard/internal/synonym"
)

const (
	// DefaultCacheSize bounds the compiled-filter cache.
	DefaultCacheSize = 64

	// DefaultParallelism bounds how many locales SynchronizeAll
	// rebuilds at once.
	DefaultParallelism = 4
)

// Store is the slice of the persistent store the synchronizer needs.
type Store interface {
	SyncState(ctx context.Context, locale string) (store.SyncState, error)
	ListRules(ctx context.Context, locale string) ([]synonym.Rule, error)
	Locales(ctx context.Context) ([]string, error)
	MarkSynced(ctx context.Context, locale string, revision int64) error
}

// Engine is the slice of the search engine the synchronizer drives.
type Engine interface {
	ApplyFilter(ctx context.Context, locale string, spec synonym.FilterSpec) error
	Reindex(ctx context.Context, locale string) error
}

// Config wires a Synchronizer.
type Config struct {
	// Store supplies rules and revision bookkeeping (required).
	Store Store

	// Engine receives compiled filters and rebuild requests (required).
	Engine Engine

	// Retry controls backoff for transient engine failures. The zero
	// value means DefaultRetryConfig.
	Retry emberrors.RetryConfig

	// CacheSize overrides DefaultCacheSize when positive.
	CacheSize int

	// Parallelism overrides DefaultParallelism when positive.
	Parallelism int
}

// Synchronizer drives locale indexes to match their stored rules.
type Synchronizer struct {
	store       Store
	engine      Engine
	compiler    *synonym.Compiler
	retry       emberrors.RetryConfig
	parallelism int
}

// NewSynchronizer creates a synchronizer from its dependencies.
func NewSynchronizer(cfg Config) (*Synchronizer, error) {
	if cfg.Store == nil {
		return nil, emberrors.ConfigError("synchronizer needs a store", nil)
	}
	if cfg.Engine == nil {
		return nil, emberrors.ConfigError("synchronizer needs an engine", nil)
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	compiler, err := synonym.NewCompiler(cacheSize)
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	if retry == (emberrors.RetryConfig{}) {
		retry = emberrors.DefaultRetryConfig()
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	return &Synchronizer{
		store:       cfg.Store,
		engine:      cfg.Engine,
		compiler:    compiler,
		retry:       retry,
		parallelism: parallelism,
	}, nil
}

// Synchronize rebuilds one locale's index from the store. Rules are
// read at call time, never captured at trigger time, so a sync that
// sat in a queue applies whatever the rules say now. Synchronizing an
// already-synced locale is harmless: the same rules compile to the
// same filter and the rebuild lands on identical content.
func (s *Synchronizer) Synchronize(ctx context.Context, locale string) error {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return emberrors.ValidationError("locale must not be empty", nil)
	}

	state, err := s.store.SyncState(ctx, locale)
	if err != nil {
		return err
	}
	rules, err := s.store.ListRules(ctx, locale)
	if err != nil {
		return err
	}

	spec := s.compiler.Compile(locale, state.Revision, rules)
	slog.Info("sync_started",
		slog.String("locale", locale),
		slog.Int64("revision", state.Revision),
		slog.Int("rules", len(rules)),
		slog.String("filter", spec.Name))

	start := time.Now()
	err = emberrors.Retry(ctx, s.retry, func() error {
		if err := s.engine.ApplyFilter(ctx, locale, spec); err != nil {
			return err
		}
		return s.engine.Reindex(ctx, locale)
	})
	if err != nil {
		if emberrors.HasCode(err, emberrors.ErrCodeFilterRejected) {
			// Permanent: the same spec can never succeed. An operator
			// has to fix the locale's rules.
			slog.Error("filter_rejected",
				slog.String("locale", locale),
				slog.String("filter", spec.Name),
				slog.String("error", err.Error()))
			return err
		}
		slog.Error("sync_failed",
			slog.String("locale", locale),
			slog.String("error", err.Error()))
		return emberrors.New(emberrors.ErrCodeSyncFailed,
			fmt.Sprintf("synchronize %s", locale), err)
	}

	if err := s.store.MarkSynced(ctx, locale, state.Revision); err != nil {
		return err
	}

	slog.Info("sync_complete",
		slog.String("locale", locale),
		slog.Int64("revision", state.Revision),
		slog.Duration("took", time.Since(start)))
	return nil
}

// SynchronizeAll rebuilds every locale the store knows about, a few at
// a time. The first failure cancels the remaining rebuilds.
func (s *Synchronizer) SynchronizeAll(ctx context.Context) error {
	locales, err := s.store.Locales(ctx)
	if err != nil {
		return err
	}
	if len(locales) == 0 {
		slog.Info("sync_skipped", slog.String("reason", "store has no locales"))
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, locale := range locales {
		g.Go(func() error {
			return s.Synchronize(ctx, locale)
		})
	}
	return g.Wait()
}
