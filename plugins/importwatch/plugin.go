// Package importwatch imports documents dropped into a directory.
// When enabled, it watches the directory for new or rewritten .toml and
// .json files and saves their contents through the DB.
package importwatch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/bft-labs/scistore"
	"github.com/bft-labs/scistore/pkg/log"
)

// Extensions imported by default.
var DefaultExtensions = []string{".toml", ".json"}

// Plugin implements directory watching.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	dir        string
	debounce   time.Duration
	extensions []string
	existing   bool
	onImport   func(path string, ids []uuid.UUID, err error)

	// Runtime state
	importer scistore.Importer
	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	pending  map[string]*time.Timer
}

// Config holds configuration options for the import watcher plugin.
type Config struct {
	// Dir overrides the watch directory from the DB config.
	Dir string

	// DebounceDelay is how long a file must stay quiet before it is
	// imported. Editors write in bursts.
	// Default: the DB config value
	DebounceDelay time.Duration

	// Extensions lists the file extensions to import, with the dot.
	// Default: DefaultExtensions
	Extensions []string

	// ImportExisting imports files already in the directory on start.
	ImportExisting bool

	// OnImport, if set, is called after every import attempt.
	OnImport func(path string, ids []uuid.UUID, err error)
}

// New creates a new import watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	norm := make([]string, len(exts))
	for i, e := range exts {
		norm[i] = strings.ToLower(e)
	}
	return &Plugin{
		dir:        cfg.Dir,
		debounce:   cfg.DebounceDelay,
		extensions: norm,
		existing:   cfg.ImportExisting,
		onImport:   cfg.OnImport,
		pending:    map[string]*time.Timer{},
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "importwatch"
}

// Initialize starts watching. A missing directory disables the plugin.
func (p *Plugin) Initialize(ctx context.Context, cfg scistore.PluginConfig) error {
	p.mu.Lock()
	if p.dir == "" {
		p.dir = cfg.WatchDir
	}
	if p.debounce <= 0 {
		p.debounce = cfg.DebounceDelay
	}
	if p.debounce <= 0 {
		p.debounce = 200 * time.Millisecond
	}
	p.importer = cfg.Importer
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	p.mu.Unlock()

	if p.dir == "" || p.importer == nil {
		p.logger.Warn("import watcher disabled: no directory or importer configured")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if p.existing {
		matches, _ := filepath.Glob(filepath.Join(p.dir, "*"))
		for _, m := range matches {
			if p.wanted(m) {
				p.schedule(watchCtx, m)
			}
		}
	}

	p.logger.Info("import watcher started", log.String("dir", p.dir))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops watching and drops imports that have not fired yet.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	for path, t := range p.pending {
		t.Stop()
		delete(p.pending, path)
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !p.wanted(event.Name) {
				continue
			}
			p.schedule(ctx, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("import watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) wanted(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range p.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// schedule (re)arms the debounce timer of path.
func (p *Plugin) schedule(ctx context.Context, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.pending[path]; ok {
		t.Stop()
	}
	p.pending[path] = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		delete(p.pending, path)
		p.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		p.importFile(ctx, path)
	})
}

func (p *Plugin) importFile(ctx context.Context, path string) {
	ids, err := p.importer.ImportFile(ctx, path)
	if err != nil {
		p.logger.Error("import failed", log.String("path", path), log.Err(err))
	} else {
		p.logger.Info("imported", log.String("path", path), log.Int("objects", len(ids)))
	}
	if p.onImport != nil {
		p.onImport(path, ids, err)
	}
}

// Ensure Plugin implements scistore.Plugin.
var _ scistore.Plugin = (*Plugin)(nil)
