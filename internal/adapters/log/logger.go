// Package log builds the zerolog-backed ports.Logger used by the CLI and the
// facade.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bft-labs/scistore/internal/ports"
	pkglog "github.com/bft-labs/scistore/pkg/log"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name. Empty means info.
	Level string

	// Format is "console" (default) or "json".
	Format string

	// Out defaults to os.Stderr.
	Out io.Writer
}

// New returns a logger writing to opts.Out at opts.Level.
func New(opts Options) (ports.Logger, error) {
	level := zerolog.InfoLevel
	if name := strings.TrimSpace(opts.Level); name != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return pkglog.NewZerologAdapter(out, level), nil
	case "json":
		return pkglog.NewZerologAdapterWithLogger(zerolog.New(out).Level(level).With().Timestamp().Logger()), nil
	}
	return nil, fmt.Errorf("log format %q: want console or json", opts.Format)
}

// Nop returns a logger that discards everything.
func Nop() ports.Logger {
	return pkglog.NewNoopLogger()
}
