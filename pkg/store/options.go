package store

import (
	"time"

	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/internal/ports"
	"github.com/bft-labs/scistore/pkg/log"
)

// Backend is the persistence port a Store writes through.
type Backend = ports.Backend

// Record is one persisted object as the backend sees it.
type Record = domain.Record

// Option configures optional behavior of a Store.
type Option func(*options)

type options struct {
	logger  log.Logger
	creator string
	clock   func() time.Time
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
		clock:  time.Now,
	}
}

// WithLogger sets a logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCreator sets the creator recorded for types with creation tracking,
// typically "user@host".
func WithCreator(creator string) Option {
	return func(o *options) {
		o.creator = creator
	}
}

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}
