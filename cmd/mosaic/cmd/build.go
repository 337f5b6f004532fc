package cmd

import (
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaic/internal/app"
	"github.com/Aman-CERP/mosaic/internal/catalog"
	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/output"
)

func newBuildCmd(g *globalOptions) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build missing full-text indexes and metadata tables",
		Long: `Build a full-text index for every parquet directory that has none, then
create the metadata table of every index that lacks one.

Existing indexes and tables are left untouched. Delete them to rebuild.`,
		Example: `  mosaic build --index-dir /data/index --parquet-dir /data/parquet
  mosaic build --workers 8 --num-characters 5000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Paths.IndexDir == "" || cfg.Paths.ParquetDir == "" {
				return mosaicerrors.ConfigError("build needs both --index-dir and --parquet-dir", nil)
			}
			logger, cleanup, err := g.logger(cfg, "warn")
			if err != nil {
				return err
			}
			defer cleanup()

			start := time.Now()
			built, err := catalog.BuildMissingIndexes(ctx, cfg.Paths.IndexDir, cfg.Paths.ParquetDir,
				cfg.Store.IDColumn, workers, logger)
			if err != nil {
				return mosaicerrors.EngineError(mosaicerrors.ErrCodeBuildFailed, "The full-text indexes could not be built", err)
			}
			for _, name := range built {
				out.Successf("Indexed %s", name)
			}

			// Opening the app creates the missing tables.
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out.Successf("%d indexes ready in %s (%d built)",
				len(a.Catalog.Names()), time.Since(start).Round(time.Millisecond), len(built))
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Indexes built in parallel")

	return cmd
}
