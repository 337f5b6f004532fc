// Package query turns raw request parameters into a validated search request
// and the full-text query it runs.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/module"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Planner validates and normalizes requests against an ordered module list.
// It holds no per-request state and is safe for concurrent use.
type Planner struct {
	modules  []module.Module
	catalog  module.Catalog
	analyzer string
	rewriter Rewriter
	logger   *slog.Logger
}

// PlannerOption configures the planner.
type PlannerOption func(*Planner)

// WithAnalyzer selects the analyzer applied to parsed text clauses.
func WithAnalyzer(name string) PlannerOption {
	return func(p *Planner) {
		p.analyzer = name
	}
}

// WithRewriter sets the rewrite applied to q before parsing.
func WithRewriter(r Rewriter) PlannerOption {
	return func(p *Planner) {
		if r != nil {
			p.rewriter = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PlannerOption {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPlanner creates a planner for mods, validating index names against catalog.
func NewPlanner(mods []module.Module, catalog module.Catalog, opts ...PlannerOption) (*Planner, error) {
	if len(mods) == 0 {
		return nil, fmt.Errorf("%w: at least one module is required", ErrNilDependency)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrNilDependency)
	}

	p := &Planner{
		modules:  mods,
		catalog:  catalog,
		analyzer: standard.Name,
		rewriter: Passthrough{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if !knownAnalyzer(p.analyzer) {
		return nil, fmt.Errorf("unknown analyzer %q", p.analyzer)
	}
	return p, nil
}

// Plan validates raw against every module, stopping at the first violation,
// then builds the normalized request and parses its query.
func (p *Planner) Plan(raw url.Values) (*module.Request, error) {
	for _, m := range p.modules {
		if err := m.Validate(raw, p.catalog); err != nil {
			p.logger.Warn("request_rejected",
				slog.String("module", m.Name()),
				slog.String("error", err.Error()))
			return nil, err
		}
	}

	req := &module.Request{}
	for _, m := range p.modules {
		if err := m.Parse(raw, req); err != nil {
			return nil, err
		}
	}

	if !req.MatchesAll() {
		req.Query = p.rewriter.Rewrite(req.Query)
	}

	q, err := p.Parse(req.Query)
	if err != nil {
		return nil, err
	}
	req.Search = q
	return req, nil
}

// Parse converts a query string into a full-text query. The match-all
// marker and the empty string match every document.
func (p *Planner) Parse(s string) (bquery.Query, error) {
	if s == "" || s == module.MatchAll {
		return bleve.NewMatchAllQuery(), nil
	}

	q, err := bleve.NewQueryStringQuery(s).Parse()
	if err != nil {
		return nil, mosaicerrors.New(mosaicerrors.ErrCodeInvalidQuery,
			fmt.Sprintf("The query %s could not be parsed", s), err)
	}
	applyAnalyzer(q, p.analyzer)
	return q, nil
}
