package importwatch

import "github.com/bft-labs/scistore"

// WithImportWatch returns a scistore Option that enables directory watching.
//
// Usage:
//
//	db, err := scistore.Open(ctx, cfg,
//	    importwatch.WithImportWatch(importwatch.Config{
//	        Dir:           "/data/inbox",
//	        DebounceDelay: 500 * time.Millisecond,
//	    }),
//	)
func WithImportWatch(cfg Config) scistore.Option {
	return scistore.WithPlugin(New(cfg))
}

// WithDefaultImportWatch watches Config.WatchDir of the DB with its debounce
// delay.
//
// Usage:
//
//	db, err := scistore.Open(ctx, cfg, importwatch.WithDefaultImportWatch())
func WithDefaultImportWatch() scistore.Option {
	return WithImportWatch(Config{})
}
