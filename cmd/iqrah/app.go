package main

import (
	"fmt"

	"github.com/iqrahapp/iqrah-core/internal/bandit"
	"github.com/iqrahapp/iqrah-core/internal/config"
	"github.com/iqrahapp/iqrah-core/internal/content"
	"github.com/iqrahapp/iqrah-core/internal/exercise"
	"github.com/iqrahapp/iqrah-core/internal/logging"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/propagation"
	"github.com/iqrahapp/iqrah-core/internal/scheduler"
	"github.com/iqrahapp/iqrah-core/internal/session"
	"github.com/iqrahapp/iqrah-core/internal/sqlitedb"
)

// app bundles every component a command needs, built fresh per CLI
// invocation from the loaded config. Each invocation is a separate
// process, so the session engine's in-memory stateful-exercise cache
// (EchoRecall/AyahChain sub-step state) does not survive across commands
// — only a long-lived embedding process gets that benefit.
type app struct {
	cfg     *config.Watcher
	content *content.Store
	memory  *memory.Repository
	engine  *session.Engine

	closers []func() error
}

// newConfigOnly loads config and initializes file logging without opening
// either database — used by `setup install`, which may run before a
// content artifact exists at all.
func newConfigOnly() (*config.Watcher, error) {
	watcher, err := config.NewWatcher(configPath, func(err error) {
		logging.Get(logging.CategoryCLI).Warn("config reload failed: %v", err)
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := watcher.Current()
	if cfg.Logging.DebugMode || debugMode {
		if err := logging.Initialize(cfg.DataDir, logging.Settings{
			DebugMode:  true,
			Categories: cfg.Logging.Categories,
			JSONFormat: cfg.Logging.JSONFormat,
			Level:      cfg.Logging.Level,
		}); err != nil {
			return nil, fmt.Errorf("initialize logging: %w", err)
		}
	}
	return watcher, nil
}

func newApp() (*app, error) {
	watcher, err := newConfigOnly()
	if err != nil {
		return nil, err
	}
	cfg := watcher.Current()

	a := &app{cfg: watcher}

	contentStore, err := content.Open(cfg.Content.DatabasePath, cfg.Content.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	a.content = contentStore
	a.closers = append(a.closers, contentStore.Close)

	mdb, err := sqlitedb.Open(cfg.Memory.DatabasePath, sqlitedb.ReadWrite)
	if err != nil {
		contentStore.Close()
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	if err := sqlitedb.Migrate(mdb, sqlitedb.UserMigrations); err != nil {
		mdb.Close()
		contentStore.Close()
		return nil, fmt.Errorf("migrate memory database: %w", err)
	}
	a.memory = memory.New(mdb)
	a.closers = append(a.closers, mdb.Close)

	sched := scheduler.New(contentStore, a.memory)
	opt := bandit.New(mdb, cfg.Bandit.Profiles)
	gen := exercise.New(contentStore)
	prop := propagation.New(contentStore, propagation.Config{
		DefaultDepth: cfg.Propagation.DefaultDepth,
		MinDelta:     cfg.Propagation.MinDelta,
	})
	a.engine = session.New(a.memory, sched, opt, gen, prop)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	_ = a.cfg.Close()
}
