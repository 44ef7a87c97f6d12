package scistore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/log"
)

// Plugin is an optional component started by Open and stopped by Close.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize starts the plugin. Long running work belongs in a
	// goroutine stopped by Shutdown.
	Initialize(ctx context.Context, cfg PluginConfig) error

	Shutdown(ctx context.Context) error
}

// Importer saves documents read from files.
type Importer interface {
	ImportFile(ctx context.Context, path string) ([]uuid.UUID, error)
}

// PluginConfig is what a plugin gets to work with.
type PluginConfig struct {
	Importer      Importer
	Logger        log.Logger
	WatchDir      string
	DebounceDelay time.Duration
}

// BasePlugin provides no-op implementations of Plugin. Embed it and
// override what you need.
type BasePlugin struct {
	PluginName string
}

func (b BasePlugin) Name() string { return b.PluginName }

func (BasePlugin) Initialize(context.Context, PluginConfig) error { return nil }

func (BasePlugin) Shutdown(context.Context) error { return nil }

// startPlugins initializes plugins in order. On failure the ones already
// running are shut down again.
func (db *DB) startPlugins(ctx context.Context, plugins []Plugin) error {
	cfg := PluginConfig{
		Importer:      db,
		Logger:        db.logger,
		WatchDir:      db.config.WatchDir,
		DebounceDelay: db.config.DebounceDelay,
	}
	for i, p := range plugins {
		if err := safeInitialize(ctx, p, cfg); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = safeShutdown(ctx, plugins[j])
			}
			return fmt.Errorf("initialize plugin %s: %w", p.Name(), err)
		}
		db.logger.Debug("plugin initialized", log.String("plugin", p.Name()))
	}
	db.plugins = plugins
	return nil
}

func safeInitialize(ctx context.Context, p Plugin, cfg PluginConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Initialize(ctx, cfg)
}

func safeShutdown(ctx context.Context, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %s panicked during shutdown: %v", p.Name(), r)
		}
	}()
	return p.Shutdown(ctx)
}

var _ Plugin = BasePlugin{}
