// Package scistore persists scientific values through a registry of type
// helpers.
//
// Example usage:
//
//	cfg := scistore.DefaultConfig()
//	cfg.Dir = "/path/to/archive"
//	db, err := scistore.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//	id, err := db.Save(ctx, structure)
//	...
//	v, err := db.Load(ctx, id)
//
// Every helper shipped with this module is returned by Types. NewRegistry
// registers them and seals the registry.
package scistore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/scistore/internal/adapters/fs"
	"github.com/bft-labs/scistore/internal/adapters/memory"
	"github.com/bft-labs/scistore/internal/adapters/sqlite"
	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/pkg/fingerprint"
	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/log"
	"github.com/bft-labs/scistore/pkg/registry"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/pkg/store"
	"github.com/bft-labs/scistore/types/atomstypes"
	"github.com/bft-labs/scistore/types/chemgraphtypes"
	"github.com/bft-labs/scistore/types/crystaltypes"
	"github.com/bft-labs/scistore/types/densetypes"
	"github.com/bft-labs/scistore/types/e3types"
	"github.com/bft-labs/scistore/types/frametypes"
	"github.com/bft-labs/scistore/types/ilthermotypes"
	"github.com/bft-labs/scistore/types/molgraphtypes"
	"github.com/bft-labs/scistore/types/ndarraytypes"
	"github.com/bft-labs/scistore/types/nntypes"
	"github.com/bft-labs/scistore/types/settingstypes"
	"github.com/bft-labs/scistore/types/tensortypes"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// DefaultDBName is the database file created under Config.Dir by the sqlite
// backend.
const DefaultDBName = "scistore.db"

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = domain.ErrInvalidConfig

// Config holds the configuration of a DB.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// Backend is one of "memory", "fs" or "sqlite".
	Backend string

	// Dir is the archive directory. The fs backend keeps records and blobs
	// here; sqlite puts its database here unless SQLitePath is set.
	Dir string

	SQLitePath string

	// Creator is recorded on objects whose type asks for creation tracking.
	Creator string

	LogLevel  string
	LogFormat string

	// LoadOriginalCalculator rebuilds atoms calculators from their saved
	// parameters instead of attaching stored results.
	LoadOriginalCalculator bool

	// WatchDir and DebounceDelay configure the import watcher.
	WatchDir      string
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with default values. Dir must still be set
// for the fs and sqlite backends.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendSQLite,
		Creator:       defaultCreator(),
		LogLevel:      "info",
		LogFormat:     "console",
		DebounceDelay: 200 * time.Millisecond,
	}
}

func defaultCreator() string {
	user := os.Getenv("USER")
	host, _ := os.Hostname()
	switch {
	case user != "" && host != "":
		return user + "@" + host
	case user != "":
		return user
	}
	return host
}

// SetDefaults fills derived values.
func (c *Config) SetDefaults() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.Backend == BackendSQLite && c.SQLitePath == "" && c.Dir != "" {
		c.SQLitePath = filepath.Join(c.Dir, DefaultDBName)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = 200 * time.Millisecond
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendFS:
		if c.Dir == "" {
			return fmt.Errorf("%w: dir is required for the fs backend", ErrInvalidConfig)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: dir or sqlite-path is required for the sqlite backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.DebounceDelay < 0 {
		return fmt.Errorf("%w: debounce delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// TypesOption configures the helpers returned by Types.
type TypesOption func(*typesOptions)

type typesOptions struct {
	atoms []atomstypes.Option
}

// WithAtomsOptions passes options to the atoms helpers.
func WithAtomsOptions(opts ...atomstypes.Option) TypesOption {
	return func(o *typesOptions) {
		o.atoms = append(o.atoms, opts...)
	}
}

// Types returns every helper shipped with this module.
func Types(opts ...TypesOption) []helper.Helper {
	var o typesOptions
	for _, opt := range opts {
		opt(&o)
	}
	var out []helper.Helper
	for _, group := range [][]helper.Helper{
		ndarraytypes.Types(),
		densetypes.Types(),
		frametypes.Types(),
		tensortypes.Types(),
		e3types.Types(),
		crystaltypes.Types(),
		molgraphtypes.Types(),
		atomstypes.Types(o.atoms...),
		settingstypes.Types(),
		chemgraphtypes.Types(),
		ilthermotypes.Types(),
		nntypes.Types(),
	} {
		out = append(out, group...)
	}
	return out
}

// NewRegistry registers Types(opts...) and seals the registry.
func NewRegistry(opts ...TypesOption) (*registry.Registry, error) {
	reg := registry.New()
	if err := reg.RegisterAll(Types(opts...)...); err != nil {
		return nil, err
	}
	reg.Seal()
	return reg, nil
}

// DB is a Store bound to the backend named in its Config.
type DB struct {
	*store.Store

	config  Config
	backend store.Backend
	logger  log.Logger
	plugins []Plugin

	mu     sync.Mutex
	closed bool
}

// Open validates cfg, opens its backend and starts every plugin.
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	reg := o.registry
	if reg == nil {
		var err error
		reg, err = NewRegistry(WithAtomsOptions(atomstypes.LoadOriginalCalculator(cfg.LoadOriginalCalculator)))
		if err != nil {
			return nil, err
		}
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := store.New(reg, backend,
		store.WithLogger(o.logger),
		store.WithCreator(cfg.Creator),
	)
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}

	db := &DB{Store: s, config: cfg, backend: backend, logger: o.logger}
	if err := db.startPlugins(ctx, o.plugins); err != nil {
		return nil, errors.Join(err, backend.Close())
	}
	o.logger.Info("store opened",
		log.String("backend", cfg.Backend),
		log.Int("types", len(reg.Helpers())),
	)
	return db, nil
}

func openBackend(ctx context.Context, cfg Config) (store.Backend, error) {
	switch cfg.Backend {
	case BackendMemory:
		return memory.New(), nil
	case BackendFS:
		b, err := fs.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open fs backend: %w", err)
		}
		return b, nil
	case BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create %s: %w", dir, err)
			}
		}
		b, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
}

// Config returns the configuration the DB was opened with.
func (db *DB) Config() Config {
	return db.config
}

// Logger returns the logger passed with WithLogger.
func (db *DB) Logger() log.Logger {
	return db.logger
}

// Close stops plugins in reverse order and closes the backend. It is safe to
// call more than once.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	plugins := db.plugins
	db.mu.Unlock()

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(plugins) - 1; i >= 0; i-- {
		if err := safeShutdown(ctx, plugins[i]); err != nil {
			db.logger.Error("plugin shutdown failed",
				log.String("plugin", plugins[i].Name()),
				log.Err(err),
			)
			errs = append(errs, err)
		}
	}
	if err := db.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}

// Refs lists the objects referenced by the saved state of id.
func (db *DB) Refs(ctx context.Context, id string) ([]state.Reference, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	info, err := db.Inspect(ctx, oid)
	if err != nil {
		return nil, err
	}
	return state.References(info.State), nil
}

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"store":       {store.Version, store.MinCompatibleVersion},
		"registry":    {registry.Version, registry.MinCompatibleVersion},
		"helper":      {helper.Version, helper.MinCompatibleVersion},
		"fingerprint": {fingerprint.Version, fingerprint.MinCompatibleVersion},
		"log":         {log.Version, log.MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}

	return nil
}

// isVersionCompatible checks if version >= minVersion.
// Versions are "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
