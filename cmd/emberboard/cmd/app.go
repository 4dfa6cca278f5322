package cmd

import (
	"github.com/spf13/cobra"

	"github.com/emberboard/emberboard/internal/config"
	"github.com/emberboard/emberboard/internal/engine"
	emberrors "github.com/emberboard/emberboard/internal/errors"
	"github.com/emberboard/emberboard/internal/forum"
	"github.com/emberboard/emberboard/internal/index"
	"github.com/emberboard/emberboard/internal/store"
)

// app bundles the stack a command needs: config, store, engine,
// synchronizer, and the forum service, opened together and closed
// together.
type app struct {
	cfg   *config.Config
	store *store.Store
	eng   *engine.Engine
	sync  *index.Synchronizer
	forum *forum.Service
}

// openApp opens the store and engine under the configured data
// directory and wires the services on top.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engine.Config{Dir: cfg.IndexDir()}, forum.NewSource(st))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sync, err := index.NewSynchronizer(index.Config{
		Store:     st,
		Engine:    eng,
		Retry:     cfg.RetryConfig(),
		CacheSize: cfg.Synonyms.CacheSize,
	})
	if err != nil {
		_ = eng.Close()
		_ = st.Close()
		return nil, err
	}

	svc, err := forum.NewService(forum.Config{
		Store:          st,
		Indexer:        eng,
		Notifier:       forum.LogNotifier{},
		ThreadsPerPage: cfg.Forum.ThreadsPerPage,
		PostsPerPage:   cfg.Forum.PostsPerPage,
	})
	if err != nil {
		_ = eng.Close()
		_ = st.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: st, eng: eng, sync: sync, forum: svc}, nil
}

// Close releases the engine and store.
func (a *app) Close() error {
	engErr := a.eng.Close()
	storeErr := a.store.Close()
	if engErr != nil {
		return engErr
	}
	return storeErr
}

// resolveLocale picks the explicit locale or the configured default.
func (a *app) resolveLocale(locale string) (string, error) {
	if locale != "" {
		return locale, nil
	}
	if a.cfg.Search.DefaultLocale != "" {
		return a.cfg.Search.DefaultLocale, nil
	}
	return "", emberrors.ConfigError("no locale given and no default configured", nil)
}
