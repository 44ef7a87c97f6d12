package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/scistore"
	logAdapter "github.com/bft-labs/scistore/internal/adapters/log"
	"github.com/bft-labs/scistore/internal/cliconfig"
	"github.com/bft-labs/scistore/internal/ports"
	"github.com/bft-labs/scistore/pkg/log"
)

const longHelp = `Save and load scientific objects in a content-addressed archive.

Objects are written through registered type helpers. Shared sub-objects are
stored once, cycles are preserved and large arrays go to blob files.
Configure via file ($HOME/.scistore/config.toml), SCISTORE_* environment
variables, or flags.`

var exampleUsage = strings.TrimSpace(`
  scistore --dir ./archive import structure.json settings.toml
  scistore --dir ./archive show 0b5c0f2e-7a1d-4b8e-9f3a-2c6d8e1f4a70 --path state.lattice
  scistore --dir ./archive watch --watch-dir ./inbox --import-existing
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the resolved configuration shared by all commands.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  ports.Logger
}

func main() {
	a := &app{cfg: cliconfig.DefaultConfig(), logger: logAdapter.Nop()}
	root := a.rootCommand()
	if err := root.Execute(); err != nil {
		logger, lerr := logAdapter.New(logAdapter.Options{Level: "error"})
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Error("scistore", log.Err(err))
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "scistore",
		Short:         "Save and load scientific objects in a content-addressed archive",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.scistore/config.toml)")
	f.StringVar(&a.cfg.Dir, "dir", a.cfg.Dir, "archive directory")
	f.StringVar(&a.cfg.Backend, "backend", a.cfg.Backend, "storage backend: memory, fs or sqlite")
	f.StringVar(&a.cfg.SQLitePath, "sqlite-path", a.cfg.SQLitePath, "sqlite database file (defaults to <dir>/scistore.db)")
	f.StringVar(&a.cfg.Creator, "creator", a.cfg.Creator, "creator recorded on tracked objects")
	f.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level")
	f.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "log format: console or json")
	f.BoolVar(&a.cfg.LoadOriginalCalculator, "original-calculator", a.cfg.LoadOriginalCalculator, "rebuild atoms calculators from their saved parameters")

	root.AddCommand(
		a.typesCommand(),
		a.importCommand(),
		a.showCommand(),
		a.listCommand(),
		a.verifyCommand(),
		a.watchCommand(),
	)
	return root
}

// load resolves the configuration: defaults, then the config file, then
// SCISTORE_* variables, then flags.
func (a *app) load(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	logger, err := logAdapter.New(logAdapter.Options{
		Level:  a.cfg.LogLevel,
		Format: a.cfg.LogFormat,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = logger
	a.logger.Debug("configuration",
		log.String("backend", a.cfg.Backend),
		log.String("dir", a.cfg.Dir),
		log.String("sqlite_path", a.cfg.SQLitePath),
		log.String("config", cfgFile),
	)
	return nil
}

func (a *app) open(ctx context.Context, opts ...scistore.Option) (*scistore.DB, error) {
	opts = append([]scistore.Option{scistore.WithLogger(a.logger)}, opts...)
	db, err := scistore.Open(ctx, a.cfg.Store(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
