package scistore

import (
	"github.com/bft-labs/scistore/pkg/log"
	"github.com/bft-labs/scistore/pkg/registry"
)

// Option configures optional behavior of a DB.
type Option func(*options)

// options holds the optional configuration for a DB.
type options struct {
	logger   log.Logger
	registry *registry.Registry
	plugins  []Plugin
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry replaces the registry built from Types. Open does not seal
// it.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithPlugin registers a plugin to be initialized when the DB opens.
// Plugins are initialized in registration order and shut down in reverse
// order by Close.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		if plugin != nil {
			o.plugins = append(o.plugins, plugin)
		}
	}
}
