package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Rewriter rewrites the free-text query before it is parsed.
type Rewriter interface {
	Name() string
	Rewrite(q string) string
}

// Passthrough returns the query unchanged.
type Passthrough struct{}

// Name implements Rewriter.
func (Passthrough) Name() string { return "passthrough" }

// Rewrite implements Rewriter.
func (Passthrough) Rewrite(q string) string { return q }

// RequiredTerms turns every optional clause into a required one, so a query
// of several words only matches documents containing all of them.
//
// Example:
//
//	Input:  climate "sea level" -storm
//	Output: +climate +"sea level" -storm
type RequiredTerms struct{}

// Name implements Rewriter.
func (RequiredTerms) Name() string { return "required-terms" }

// Rewrite implements Rewriter.
func (RequiredTerms) Rewrite(q string) string {
	fields := strings.Fields(q)
	out := make([]string, 0, len(fields))
	inPhrase := false
	for _, f := range fields {
		if !inPhrase && f[0] != '+' && f[0] != '-' {
			f = "+" + f
		}
		if strings.Count(f, `"`)%2 == 1 {
			inPhrase = !inPhrase
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

var rewriters = map[string]Rewriter{
	"":               Passthrough{},
	"passthrough":    Passthrough{},
	"required-terms": RequiredTerms{},
}

// LookupRewriter returns the rewriter registered under name. The empty name
// selects Passthrough.
func LookupRewriter(name string) (Rewriter, error) {
	r, ok := rewriters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown query rewrite %q (available: passthrough, required-terms)", name)
	}
	return r, nil
}

// Analyzers lists the analyzer names a planner can be configured with.
func Analyzers() []string {
	names := []string{standard.Name, en.AnalyzerName, simple.Name, keyword.Name}
	sort.Strings(names)
	return names
}

func knownAnalyzer(name string) bool {
	for _, n := range Analyzers() {
		if n == name {
			return true
		}
	}
	return false
}

// applyAnalyzer sets the analyzer of every text clause in q that does not
// name one already.
func applyAnalyzer(q query.Query, analyzer string) {
	switch t := q.(type) {
	case *query.BooleanQuery:
		if t == nil {
			return
		}
		applyAnalyzer(t.Must, analyzer)
		applyAnalyzer(t.Should, analyzer)
		applyAnalyzer(t.MustNot, analyzer)
	case *query.ConjunctionQuery:
		if t == nil {
			return
		}
		for _, c := range t.Conjuncts {
			applyAnalyzer(c, analyzer)
		}
	case *query.DisjunctionQuery:
		if t == nil {
			return
		}
		for _, d := range t.Disjuncts {
			applyAnalyzer(d, analyzer)
		}
	case *query.MatchQuery:
		if t != nil && t.Analyzer == "" {
			t.Analyzer = analyzer
		}
	case *query.MatchPhraseQuery:
		if t != nil && t.Analyzer == "" {
			t.Analyzer = analyzer
		}
	}
}
