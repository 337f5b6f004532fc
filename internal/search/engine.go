// Package search runs a planned request against every target index.
//
// Each index is read as a ranked hit stream. Hits are enriched with metadata
// in batches until the page is full or the stream runs dry, and the stream
// position reached is remembered in the cursor cache so the next page can
// resume there. Per-index results are concatenated in index order; scores
// from different indexes are never compared.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mosaic/internal/catalog"
	"github.com/Aman-CERP/mosaic/internal/cursor"
	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/module"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Enricher turns a batch of hit ids into accepted results, in hit order.
type Enricher interface {
	Enrich(ctx context.Context, index, table string, ids []string, req *module.Request) ([]*module.Result, error)
}

// IndexResult is the page of one index.
type IndexResult struct {
	Index   string
	Results []*module.Result
	// TotalHits is the length of the index's hit stream for the query,
	// before metadata filtering.
	TotalHits uint64
}

// Response is the outcome of a search, one entry per target index in
// enumeration order.
type Response struct {
	Indexes []IndexResult
}

// TotalHits sums the stream lengths of every index.
func (r *Response) TotalHits() uint64 {
	var n uint64
	for _, ir := range r.Indexes {
		n += ir.TotalHits
	}
	return n
}

// Results concatenates the results of every index in order.
func (r *Response) Results() []*module.Result {
	var out []*module.Result
	for _, ir := range r.Indexes {
		out = append(out, ir.Results...)
	}
	return out
}

// Engine is the federated search engine.
type Engine struct {
	catalog  *catalog.Catalog
	enricher Enricher
	cursors  *cursor.Cache
	logger   *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine over the catalog's indexes.
func NewEngine(cat *catalog.Catalog, enricher Enricher, cursors *cursor.Cache, opts ...EngineOption) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrNilDependency)
	}
	if enricher == nil {
		return nil, fmt.Errorf("%w: enricher is required", ErrNilDependency)
	}
	if cursors == nil {
		return nil, fmt.Errorf("%w: cursor cache is required", ErrNilDependency)
	}

	e := &Engine{
		catalog:  cat,
		enricher: enricher,
		cursors:  cursors,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search returns the requested page of every target index.
func (e *Engine) Search(ctx context.Context, req *module.Request) (*Response, error) {
	targets := e.catalog.Targets(req.Index)
	if req.Index != "" && len(targets) == 0 {
		return nil, mosaicerrors.UnknownIndexError(req.Index)
	}

	start := time.Now()
	e.logger.Info("search_started",
		slog.String("query", req.Query),
		slog.Int("indexes", len(targets)),
		slog.Int("limit", req.Limit),
		slog.Int("page", req.Page))

	resp := &Response{Indexes: make([]IndexResult, len(targets))}
	g, gctx := errgroup.WithContext(ctx)
	for i, idx := range targets {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("search_panic",
						slog.String("index", idx.Name),
						slog.String("panic", fmt.Sprint(r)))
					err = mosaicerrors.EngineError(mosaicerrors.ErrCodeSearchFailed,
						fmt.Sprintf("The search in index %s failed", idx.Name), fmt.Errorf("panic: %v", r))
				}
			}()

			ir, err := e.searchIndex(gctx, idx, req)
			if err != nil {
				return err
			}
			resp.Indexes[i] = ir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info("search_completed",
		slog.String("query", req.Query),
		slog.Int("results", len(resp.Results())),
		slog.Uint64("total_hits", resp.TotalHits()),
		slog.Duration("duration", time.Since(start)))
	return resp, nil
}

// searchIndex fills one page from one index.
func (e *Engine) searchIndex(ctx context.Context, idx *catalog.Index, req *module.Request) (IndexResult, error) {
	stream := NewBleveStream(idx.Full)

	var pos cursor.Cursor
	warm := false
	if req.Page > 1 {
		pos, warm = e.cursors.Get(req.CacheKey(idx.Name, req.Page-1))
	}

	target := req.Limit
	if !warm {
		target = window(req.Page, req.Limit)
	}
	e.logger.Debug("page_plan",
		slog.String("index", idx.Name),
		slog.Bool("warm", warm),
		slog.String("after", pos.DocID),
		slog.Int("target", target))

	var accepted []*module.Result
	var total uint64
	for len(accepted) < target {
		want := min(target-len(accepted), MaxBatch)
		batch, err := stream.Fetch(ctx, req.Search, pos, want)
		if err != nil {
			return IndexResult{}, mosaicerrors.EngineError(mosaicerrors.ErrCodeSearchFailed,
				fmt.Sprintf("The search in index %s failed", idx.Name), err)
		}
		total = batch.Total
		if len(batch.Hits) == 0 {
			break
		}

		ids := make([]string, len(batch.Hits))
		for i, h := range batch.Hits {
			ids[i] = h.ID
		}
		results, err := e.enricher.Enrich(ctx, idx.Name, idx.Table, ids, req)
		if err != nil {
			return IndexResult{}, mosaicerrors.EngineError(mosaicerrors.ErrCodeStoreFailed,
				fmt.Sprintf("The metadata of index %s could not be read", idx.Name), err)
		}
		accepted = append(accepted, results...)

		last := batch.Hits[len(batch.Hits)-1]
		pos = cursor.Cursor{Score: last.Score, DocID: last.ID}

		if len(batch.Hits) < want {
			break
		}
	}

	if !warm && req.Page > 1 {
		skip := window(req.Page-1, req.Limit)
		if skip >= len(accepted) {
			accepted = nil
		} else {
			accepted = accepted[skip:]
		}
	}

	e.cursors.Put(req.CacheKey(idx.Name, req.Page), pos)

	return IndexResult{Index: idx.Name, Results: accepted, TotalHits: total}, nil
}

// window returns page*limit, saturating at math.MaxInt.
func window(page, limit int) int {
	if page <= 0 || limit <= 0 {
		return 0
	}
	if page > math.MaxInt/limit {
		return math.MaxInt
	}
	return page * limit
}
