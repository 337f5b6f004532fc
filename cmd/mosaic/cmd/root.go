// Package cmd provides the CLI commands for mosaic.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaic/internal/app"
	"github.com/Aman-CERP/mosaic/internal/config"
	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/logging"
	"github.com/Aman-CERP/mosaic/internal/profiling"
	"github.com/Aman-CERP/mosaic/pkg/version"
)

// globalOptions are the persistent flags shared by every command. Path flags
// override the configuration file when set.
type globalOptions struct {
	configPath    string
	debug         bool
	indexDir      string
	parquetDir    string
	dbFile        string
	idColumn      string
	numCharacters int

	profile  profiling.Options
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the mosaic CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "mosaic",
		Short: "Federated full-text search over parquet metadata",
		Long: `MOSAIC searches a set of full-text indexes at once, enriches each hit
with metadata from parquet files, and serves paginated results as JSON or
as an Atom feed with OpenSearch paging.

Run 'mosaic build' to create missing indexes and tables, then
'mosaic serve' to start the HTTP service.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("mosaic version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: ./mosaic.yaml)")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.mosaic/logs/")
	pf.StringVar(&opts.indexDir, "index-dir", "", "Directory holding one full-text index per name")
	pf.StringVar(&opts.parquetDir, "parquet-dir", "", "Directory holding one parquet directory per index")
	pf.StringVar(&opts.dbFile, "db-file", "", "SQLite database of the metadata tables")
	pf.StringVar(&opts.idColumn, "id-column", "", "Column identifying documents")
	pf.IntVar(&opts.numCharacters, "num-characters", 0, "Truncate plain_text to this many characters at build time")
	pf.StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	pf.StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = opts.startProfiling
	cmd.PersistentPostRunE = opts.stopProfiling

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newIndexInfoCmd(opts))
	cmd.AddCommand(newFullTextCmd(opts))
	cmd.AddCommand(newBuildCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failure to stderr.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), mosaicerrors.FormatForCLI(err))
	}
	return err
}

func (o *globalOptions) startProfiling(_ *cobra.Command, _ []string) error {
	if !o.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(o.profile)
	if err != nil {
		return err
	}
	o.profiler = s
	return nil
}

func (o *globalOptions) stopProfiling(_ *cobra.Command, _ []string) error {
	if o.profiler == nil {
		return nil
	}
	err := o.profiler.Stop()
	o.profiler = nil
	return err
}

// loadConfig loads the configuration and applies the flags that were set.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(".", o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("index-dir") {
		cfg.Paths.IndexDir = o.indexDir
	}
	if flags.Changed("parquet-dir") {
		cfg.Paths.ParquetDir = o.parquetDir
	}
	if flags.Changed("db-file") {
		cfg.Paths.DBFile = o.dbFile
	}
	if flags.Changed("id-column") {
		cfg.Store.IDColumn = o.idColumn
	}
	if flags.Changed("num-characters") {
		cfg.Store.NumCharacters = o.numCharacters
	}
	if o.debug {
		cfg.Server.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, mosaicerrors.ConfigError("invalid configuration", err)
	}
	return cfg, nil
}

// logger builds the logger of a command. level overrides the configured
// level unless --debug is set.
func (o *globalOptions) logger(cfg *config.Config, level string) (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if level != "" && !o.debug {
		logCfg.Level = level
	}
	logCfg.FilePath = cfg.Logging.File
	if o.debug && logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if cfg.Logging.MaxSizeMB > 0 {
		logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxFiles > 0 {
		logCfg.MaxFiles = cfg.Logging.MaxFiles
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, cleanup, nil
}

// openApp loads the configuration and builds the application context. The
// returned function closes the app and flushes the log.
func (o *globalOptions) openApp(ctx context.Context, cmd *cobra.Command, level string) (*app.App, func(), error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, cleanup, err := o.logger(cfg, level)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			logger.Warn("close_failed", slog.String("error", err.Error()))
		}
		cleanup()
	}, nil
}
