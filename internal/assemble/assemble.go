// Package assemble turns search responses into output: it re-ranks each
// index's page, picks text snippets, and serializes results through the
// active metadata modules as JSON or as an Atom/OpenSearch feed.
package assemble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Aman-CERP/mosaic/internal/module"
	"github.com/Aman-CERP/mosaic/internal/search"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Ranking modes.
const (
	RankingAsc  = "asc"
	RankingDesc = "desc"
)

// TextLoader reads the untruncated text of a document.
type TextLoader interface {
	FullText(ctx context.Context, index, id string) (string, error)
}

// Assembler prepares and serializes search responses.
type Assembler struct {
	modules       []module.Module
	loader        TextLoader
	snippetLength int
	baseURL       string
	logger        *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithTextLoader enables full-text reloads for snippets of requests that ask
// for them.
func WithTextLoader(l TextLoader) Option {
	return func(a *Assembler) {
		a.loader = l
	}
}

// WithSnippetLength sets the minimum snippet length.
func WithSnippetLength(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.snippetLength = n
		}
	}
}

// WithBaseURL sets the public URL feed links are built from.
func WithBaseURL(u string) Option {
	return func(a *Assembler) {
		a.baseURL = strings.TrimRight(u, "/")
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an assembler serializing through mods in order.
func New(mods []module.Module, opts ...Option) (*Assembler, error) {
	if len(mods) == 0 {
		return nil, fmt.Errorf("%w: at least one module is required", ErrNilDependency)
	}
	a := &Assembler{
		modules:       mods,
		snippetLength: DefaultSnippetLength,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Rerank orders results by the word count of their text when ranking is asc
// or desc, compared case-insensitively. Equal counts keep their order. Any
// other ranking leaves results untouched.
func Rerank(results []*module.Result, ranking string) {
	var sign int
	switch strings.ToLower(ranking) {
	case RankingAsc:
		sign = 1
	case RankingDesc:
		sign = -1
	default:
		return
	}
	slices.SortStableFunc(results, func(a, b *module.Result) int {
		return sign * (a.WordCount() - b.WordCount())
	})
}

// Prepare re-ranks every index's page and fills in result snippets.
// Results of different indexes are never ranked against each other.
func (a *Assembler) Prepare(ctx context.Context, resp *search.Response, req *module.Request) {
	for i := range resp.Indexes {
		Rerank(resp.Indexes[i].Results, req.Ranking)
	}
	if req.MatchesAll() {
		return
	}

	terms := Terms(req.Query)
	for _, ir := range resp.Indexes {
		for _, res := range ir.Results {
			res.Snippet = a.snippet(ctx, res, terms, req.FullText)
		}
	}
}

// snippet picks the snippet of one result. When the stored text has no
// matching sentence and the request allows it, the full text is loaded once
// and searched again.
func (a *Assembler) snippet(ctx context.Context, res *module.Result, terms []string, fullText bool) string {
	text := res.Row["plain_text"]
	if s, ok := Snippet(text, terms, a.snippetLength); ok {
		return s
	}
	if !fullText || a.loader == nil {
		return Head(text, a.snippetLength)
	}

	full, err := a.loader.FullText(ctx, res.Index, res.ID)
	if err != nil {
		a.logger.Error("full_text_load_failed",
			slog.String("index", res.Index),
			slog.String("id", res.ID),
			slog.String("error", err.Error()))
	} else if full != "" {
		text = full
	}
	if s, ok := Snippet(text, terms, a.snippetLength); ok {
		return s
	}
	return Head(text, a.snippetLength)
}

// JSON serializes resp as {"results":[{"<index>":[...]}, ...]}, one object
// per index in response order.
func (a *Assembler) JSON(resp *search.Response, req *module.Request) ([]byte, error) {
	perIndex := make([]map[string][]json.RawMessage, 0, len(resp.Indexes))
	for _, ir := range resp.Indexes {
		items := make([]json.RawMessage, 0, len(ir.Results))
		for _, res := range ir.Results {
			item, err := a.resultJSON(res, req)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		perIndex = append(perIndex, map[string][]json.RawMessage{ir.Index: items})
	}
	return json.Marshal(struct {
		Results []map[string][]json.RawMessage `json:"results"`
	}{Results: perIndex})
}

// resultJSON joins the object fragments of every module into one object.
// Field order follows module order, then each module's own field order.
func (a *Assembler) resultJSON(res *module.Result, req *module.Request) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, m := range a.modules {
		frag, err := json.Marshal(m.JSON(res, req))
		if err != nil {
			return nil, fmt.Errorf("serialize %s fields: %w", m.Name(), err)
		}
		inner := bytes.TrimSpace(frag)
		if len(inner) < 2 || inner[0] != '{' || inner[len(inner)-1] != '}' {
			return nil, fmt.Errorf("module %s did not produce a JSON object", m.Name())
		}
		inner = bytes.TrimSpace(inner[1 : len(inner)-1])
		if len(inner) == 0 {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		buf.Write(inner)
		first = false
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
