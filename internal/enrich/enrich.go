// Package enrich attaches metadata to full-text hits.
//
// For every hit id the pipeline runs one lookup against the index's metadata
// table, with the filter fragments of every active module pushed into the
// WHERE clause. The first returned row that every module accepts becomes the
// result. Lookups fan out over a bounded worker pool and are joined before
// the results are returned in hit order.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mosaic/internal/module"
)

// DefaultWorkers is the default number of concurrent lookups.
const DefaultWorkers = 8

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Store is the metadata store the pipeline reads.
type Store interface {
	Columns(ctx context.Context, table string) (module.ColumnSet, error)
	Lookup(ctx context.Context, table, idColumn, id string, cols []string, filter module.Filter) ([]module.Row, error)
}

// Observer receives the outcome counts of each enrichment batch.
type Observer interface {
	ObserveEnrichment(index string, accepted, rejected, failed int, elapsed time.Duration)
}

// Pipeline enriches hits with metadata.
type Pipeline struct {
	store    Store
	modules  []module.Module
	idColumn string
	workers  int
	logger   *slog.Logger
	observer Observer

	mu     sync.Mutex
	tables map[string]module.ColumnSet
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds the number of concurrent lookups.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithIDColumn sets the column lookups match hit ids against.
func WithIDColumn(col string) Option {
	return func(p *Pipeline) {
		if col != "" {
			p.idColumn = col
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver sets the receiver of outcome counts.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// NewPipeline creates a pipeline over store for the given modules.
func NewPipeline(store Store, mods []module.Module, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}
	if len(mods) == 0 {
		return nil, fmt.Errorf("%w: at least one module is required", ErrNilDependency)
	}

	p := &Pipeline{
		store:    store,
		modules:  mods,
		idColumn: "record_id",
		workers:  DefaultWorkers,
		logger:   slog.Default(),
		tables:   make(map[string]module.ColumnSet),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Plan is the lookup shape for one table and request.
type Plan struct {
	Table   string
	Columns []string
	Filter  module.Filter
}

// tableColumns returns the columns of table, read once. Tables do not change
// while the service runs.
func (p *Pipeline) tableColumns(ctx context.Context, table string) (module.ColumnSet, error) {
	p.mu.Lock()
	cols, ok := p.tables[table]
	p.mu.Unlock()
	if ok {
		return cols, nil
	}

	cols, err := p.store.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.tables[table] = cols
	p.mu.Unlock()
	return cols, nil
}

// PlanFor builds the projection and filter for table: the module columns
// the table has, sorted, and the module filters in registration order.
func (p *Pipeline) PlanFor(ctx context.Context, table string, req *module.Request) (Plan, error) {
	available, err := p.tableColumns(ctx, table)
	if err != nil {
		return Plan{}, err
	}

	projection := module.ColumnSet{}
	for col := range module.Columns(p.modules) {
		if available.Has(col) {
			projection[col] = struct{}{}
		}
	}

	return Plan{
		Table:   table,
		Columns: projection.Sorted(),
		Filter:  module.Filters(p.modules, req, available),
	}, nil
}

// Enrich looks up every id of a batch of hits from index and returns the
// accepted results in hit order. Ids whose lookup fails, returns nothing, or
// is rejected by a module are left out.
func (p *Pipeline) Enrich(ctx context.Context, index, table string, ids []string, req *module.Request) ([]*module.Result, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	plan, err := p.PlanFor(ctx, table, req)
	if err != nil {
		return nil, fmt.Errorf("plan lookup for %s: %w", table, err)
	}
	if len(plan.Columns) == 0 {
		p.logger.Warn("metadata_table_missing",
			slog.String("index", index),
			slog.String("table", table))
		p.observe(index, 0, 0, len(ids), 0)
		return nil, nil
	}

	start := time.Now()
	slots := make([]*module.Result, len(ids))
	failed := make([]bool, len(ids))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, id := range ids {
		g.Go(func() error {
			res, err := p.enrichOne(ctx, index, id, plan, req)
			if err != nil {
				failed[i] = true
				p.logger.Error("metadata_lookup_failed",
					slog.String("index", index),
					slog.String("id", id),
					slog.String("error", err.Error()))
				return nil
			}
			slots[i] = res
			return nil
		})
	}
	_ = g.Wait()

	results := make([]*module.Result, 0, len(ids))
	nFailed := 0
	for i, res := range slots {
		switch {
		case res != nil:
			results = append(results, res)
		case failed[i]:
			nFailed++
		}
	}
	p.observe(index, len(results), len(ids)-len(results)-nFailed, nFailed, time.Since(start))

	p.logger.Debug("enrichment_done",
		slog.String("index", index),
		slog.Int("hits", len(ids)),
		slog.Int("accepted", len(results)),
		slog.Int("failed", nFailed))
	return results, nil
}

// enrichOne returns the accepted result for id, or nil when no row passes.
func (p *Pipeline) enrichOne(ctx context.Context, index, id string, plan Plan, req *module.Request) (*module.Result, error) {
	rows, err := p.store.Lookup(ctx, plan.Table, p.idColumn, id, plan.Columns, plan.Filter)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if module.AcceptAll(p.modules, row, req) {
			return &module.Result{ID: id, Index: index, Row: row}, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) observe(index string, accepted, rejected, failed int, elapsed time.Duration) {
	if p.observer != nil {
		p.observer.ObserveEnrichment(index, accepted, rejected, failed, elapsed)
	}
}
