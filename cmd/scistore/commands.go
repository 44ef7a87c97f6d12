package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bft-labs/scistore"
	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/log"
	"github.com/bft-labs/scistore/plugins/importwatch"
)

func (a *app) typesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered type helpers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTypes(cmd.OutOrStdout(), scistore.Types())
		},
	}
}

func writeTypes(out io.Writer, helpers []helper.Helper) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tSTRATEGY\tIMMUTABLE\tTRACKED")
	for _, h := range helpers {
		d := h.Descriptor()
		strategy, err := helper.StrategyOf(h)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", d.Name, d.ID, strategy, d.Immutable, d.CreationTracking)
	}
	return w.Flush()
}

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Save the objects held in settings, molecule, ILThermo or state documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			var errs []error
			for _, path := range args {
				ids, err := db.ImportFile(ctx, path)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				for _, id := range ids {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, path)
				}
			}
			return errors.Join(errs...)
		},
	}
}

func (a *app) showCommand() *cobra.Command {
	var (
		path   string
		color  bool
		noHash bool
	)
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print the saved state of an object as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("object id %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			db, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			info, err := db.Inspect(ctx, id)
			if err != nil {
				return err
			}
			var hash string
			if !noHash {
				v, err := db.Load(ctx, id)
				if err != nil {
					return err
				}
				if hash, err = db.Hash(v); err != nil {
					return err
				}
			}
			out, err := renderInfo(info, hash, path, color)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "print only this path of the document (gjson syntax)")
	cmd.Flags().BoolVar(&color, "color", false, "colorize the output")
	cmd.Flags().BoolVar(&noHash, "no-hash", false, "skip loading the object to compute its fingerprint")
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			infos, err := db.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tCREATOR\tCREATED\tBLOBS")
			for _, in := range infos {
				created := ""
				if !in.CreatedAt.IsZero() {
					created = in.CreatedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", in.ID, in.TypeName, in.Creator, created, len(in.Blobs))
			}
			return w.Flush()
		},
	}
}

func (a *app) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [ID...]",
		Short: "Check that stored objects load and match their records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			var ids []uuid.UUID
			for _, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("object id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}
			if len(ids) == 0 {
				infos, err := db.List(ctx)
				if err != nil {
					return err
				}
				for _, in := range infos {
					ids = append(ids, in.ID)
				}
			}

			failed := 0
			for _, id := range ids {
				if err := db.Verify(ctx, id); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL\t%s\t%v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok\t%s\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d objects failed verification", failed, len(ids))
			}
			return nil
		},
	}
}

func (a *app) watchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import documents dropped into a directory until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.WatchDir == "" {
				return errors.New("watch-dir is required")
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			logger := a.logger
			db, err := a.open(ctx, importwatch.WithImportWatch(importwatch.Config{
				ImportExisting: a.cfg.ImportExisting,
				OnImport: func(path string, ids []uuid.UUID, err error) {
					if err == nil {
						for _, id := range ids {
							fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, path)
						}
					}
				},
			}))
			if err != nil {
				return err
			}

			logger.Info("watching for documents",
				log.String("dir", a.cfg.WatchDir),
				log.Duration("debounce", a.cfg.DebounceDelay),
			)
			<-ctx.Done()
			logger.Info("received signal, stopping...")
			return db.Close()
		},
	}
	cmd.Flags().StringVar(&a.cfg.WatchDir, "watch-dir", a.cfg.WatchDir, "directory to watch")
	cmd.Flags().DurationVar(&a.cfg.DebounceDelay, "debounce", a.cfg.DebounceDelay, "quiet period before a changed file is imported")
	cmd.Flags().BoolVar(&a.cfg.ImportExisting, "import-existing", a.cfg.ImportExisting, "import files already in the directory")
	return cmd
}
