// Package app wires the search service together. An App is built once at
// startup from the configuration and handed to every surface that serves
// requests; nothing in the service is reached through package-level state.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/Aman-CERP/mosaic/internal/assemble"
	"github.com/Aman-CERP/mosaic/internal/catalog"
	"github.com/Aman-CERP/mosaic/internal/config"
	"github.com/Aman-CERP/mosaic/internal/cursor"
	"github.com/Aman-CERP/mosaic/internal/enrich"
	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/metrics"
	"github.com/Aman-CERP/mosaic/internal/module"
	"github.com/Aman-CERP/mosaic/internal/query"
	"github.com/Aman-CERP/mosaic/internal/search"
	"github.com/Aman-CERP/mosaic/internal/store"
)

// App is the application context of the search service.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *store.DB
	Catalog   *catalog.Catalog
	Modules   []module.Module
	Planner   *query.Planner
	Pipeline  *enrich.Pipeline
	Cursors   *cursor.Cache
	Engine    *search.Engine
	Assembler *assemble.Assembler
	Metrics   *metrics.Metrics
	Queries   *metrics.QueryStats
}

// New opens the indexes and the metadata database named by cfg, builds any
// missing metadata tables, and assembles the search components.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Paths.IndexDir == "" {
		return nil, mosaicerrors.ConfigError("paths.index_dir is not set", nil)
	}
	if cfg.Paths.ParquetDir == "" {
		return nil, mosaicerrors.ConfigError("paths.parquet_dir is not set", nil)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Queries: metrics.NewQueryStats(100, 100),
	}

	mods, err := module.Build(cfg.ModuleNames(), module.Options{
		IDColumn:     cfg.Store.IDColumn,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		Logger:       logger,
	})
	if err != nil {
		return nil, mosaicerrors.ConfigError("invalid plugins.modules", err)
	}
	a.Modules = mods

	a.Store, err = store.Open(cfg.Paths.DBFile, store.WithLogger(logger))
	if err != nil {
		return nil, mosaicerrors.EngineError(mosaicerrors.ErrCodeStoreFailed,
			fmt.Sprintf("The database %s could not be opened", cfg.Paths.DBFile), err)
	}

	a.Catalog, err = catalog.Discover(ctx, cfg.Paths.IndexDir, cfg.Paths.ParquetDir, logger)
	if err != nil {
		_ = a.Store.Close()
		return nil, err
	}

	if err := a.buildTables(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// buildTables creates the metadata table of every index that has parquet
// files but no table yet.
func (a *App) buildTables(ctx context.Context) error {
	var names []string
	for _, name := range a.Catalog.Names() {
		if a.Catalog.HasMetadata(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}

	spec := store.TableSpec{
		IDColumn:      a.Config.Store.IDColumn,
		Columns:       module.Columns(a.Modules),
		NumCharacters: a.Config.Store.NumCharacters,
	}
	created, err := a.Store.BuildTables(ctx, names, a.Config.Paths.ParquetDir, spec)
	if err != nil {
		return mosaicerrors.EngineError(mosaicerrors.ErrCodeBuildFailed, "The metadata tables could not be built", err)
	}
	if len(created) > 0 {
		a.Logger.Info("tables_built", slog.Int("count", len(created)))
	}
	return nil
}

func (a *App) wire() error {
	cfg := a.Config

	rewriter, err := query.LookupRewriter(cfg.Plugins.QueryRewrite)
	if err != nil {
		return mosaicerrors.ConfigError("invalid plugins.query_rewrite", err)
	}
	a.Planner, err = query.NewPlanner(a.Modules, a.Catalog,
		query.WithAnalyzer(cfg.Plugins.Analyzer),
		query.WithRewriter(rewriter),
		query.WithLogger(a.Logger))
	if err != nil {
		return mosaicerrors.ConfigError("invalid plugins.analyzer", err)
	}

	a.Pipeline, err = enrich.NewPipeline(a.Store, a.Modules,
		enrich.WithWorkers(cfg.Search.EnrichWorkers),
		enrich.WithIDColumn(cfg.Store.IDColumn),
		enrich.WithLogger(a.Logger),
		enrich.WithObserver(a.Metrics))
	if err != nil {
		return err
	}

	a.Cursors = cursor.NewCache(cfg.Search.CursorCacheSize)
	a.Metrics.RegisterCursorCache(a.Cursors)

	a.Engine, err = search.NewEngine(a.Catalog, a.Pipeline, a.Cursors, search.WithLogger(a.Logger))
	if err != nil {
		return err
	}

	a.Assembler, err = assemble.New(a.Modules,
		assemble.WithTextLoader(textLoader{parquetDir: cfg.Paths.ParquetDir, idColumn: cfg.Store.IDColumn}),
		assemble.WithSnippetLength(cfg.Search.SnippetLength),
		assemble.WithBaseURL(cfg.Server.BaseURL),
		assemble.WithLogger(a.Logger))
	return err
}

// textLoader reads full document texts from the parquet files.
type textLoader struct {
	parquetDir string
	idColumn   string
}

func (l textLoader) FullText(ctx context.Context, index, id string) (string, error) {
	return store.FullText(ctx, l.parquetDir, index, l.idColumn, id)
}

// Answer is a planned request together with its prepared response.
type Answer struct {
	Request  *module.Request
	Response *search.Response
}

// Search plans raw, runs it against the target indexes and prepares the
// results for output. format labels the search in the metrics.
func (a *App) Search(ctx context.Context, raw url.Values, format string) (*Answer, error) {
	start := time.Now()

	req, err := a.Planner.Plan(raw)
	if err != nil {
		return nil, err
	}
	resp, err := a.Engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	a.Assembler.Prepare(ctx, resp, req)

	elapsed := time.Since(start)
	n := len(resp.Results())
	a.Metrics.ObserveSearch(format, n, elapsed)
	a.Queries.Record(req.Query, n, elapsed)
	return &Answer{Request: req, Response: resp}, nil
}

// IndexInfo describes one index.
type IndexInfo struct {
	Name          string
	DocumentCount uint64
	Languages     []string
}

// IndexInfo reports every index in enumeration order.
func (a *App) IndexInfo(ctx context.Context) ([]IndexInfo, error) {
	names := a.Catalog.Names()
	out := make([]IndexInfo, 0, len(names))
	for _, name := range names {
		count, err := a.Catalog.DocumentCount(name)
		if err != nil {
			return nil, err
		}
		idx, _ := a.Catalog.Get(name)
		langs, err := a.Store.Languages(ctx, idx.Table)
		if err != nil {
			return nil, mosaicerrors.EngineError(mosaicerrors.ErrCodeStoreFailed,
				fmt.Sprintf("The languages of index %s could not be read", name), err)
		}
		out = append(out, IndexInfo{Name: name, DocumentCount: count, Languages: langs})
	}
	return out, nil
}

// FullText returns the untruncated text of document id, matched against
// column. With an index name only that index is read; otherwise indexes are
// tried in order until one has a non-empty text.
func (a *App) FullText(ctx context.Context, id, column, index string) (string, error) {
	if id == "" {
		return "", mosaicerrors.New(mosaicerrors.ErrCodeMissingParameter, "Missing id parameter", nil)
	}
	if column == "" {
		column = a.Config.Store.IDColumn
	}

	if index != "" {
		if !a.Catalog.Has(index) {
			return "", mosaicerrors.ValidationError(fmt.Sprintf(
				"Could not retrieve full text for document with id = %s. Index %s not found", id, index)).
				WithDetail("index", index)
		}
		text, err := store.FullText(ctx, a.Config.Paths.ParquetDir, index, column, id)
		if err != nil {
			return "", mosaicerrors.EngineError(mosaicerrors.ErrCodeStoreFailed,
				fmt.Sprintf("The full text of document %s could not be read", id), err)
		}
		return text, nil
	}

	for _, name := range a.Catalog.Names() {
		text, err := store.FullText(ctx, a.Config.Paths.ParquetDir, name, column, id)
		if err != nil {
			a.Logger.Debug("full_text_skipped", slog.String("index", name), slog.String("error", err.Error()))
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	return "", nil
}

// Close releases the indexes and the database.
func (a *App) Close() error {
	var errs []error
	if a.Catalog != nil {
		errs = append(errs, a.Catalog.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
