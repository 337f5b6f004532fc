package module

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/gorilla/schema"
)

// MatchAll is the query string used when q is absent or empty.
const MatchAll = "*:*"

// Request is a validated, normalized search request. It is built once per
// call by the query planner and not modified afterwards.
type Request struct {
	// Query is the free-text query after any rewrite.
	Query string
	// Search is the parsed form of Query.
	Search query.Query
	// Index restricts the search to one index when non-empty.
	Index    string
	Language string
	// Ranking is "asc", "desc" or empty.
	Ranking  string
	Limit    int
	Page     int
	FullText bool

	// Params holds module parameters keyed by module name. Values must
	// format deterministically with %v.
	Params map[string]any
}

// Param returns the parameters stored by the named module.
func (r *Request) Param(module string) any {
	if r.Params == nil {
		return nil
	}
	return r.Params[module]
}

// SetParam stores the parameters of the named module.
func (r *Request) SetParam(module string, v any) {
	if r.Params == nil {
		r.Params = make(map[string]any)
	}
	r.Params[module] = v
}

// MatchesAll reports whether the request carries no free-text query.
func (r *Request) MatchesAll() bool {
	return r.Query == "" || r.Query == MatchAll
}

// CacheKey identifies the request for index at the given page. Two requests
// share a key only when every normalized parameter agrees.
func (r *Request) CacheKey(index string, page int) string {
	v := url.Values{}
	v.Set("index", index)
	v.Set("target", r.Index)
	v.Set("q", r.Query)
	v.Set("lang", r.Language)
	v.Set("ranking", r.Ranking)
	v.Set("limit", strconv.Itoa(r.Limit))
	v.Set("pw", strconv.Itoa(page))
	v.Set("fulltext", strconv.FormatBool(r.FullText))

	names := make([]string, 0, len(r.Params))
	for name := range r.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v.Set("module."+name, fmt.Sprintf("%v", r.Params[name]))
	}
	return v.Encode()
}

// decoder maps query-string values onto module parameter structs.
var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

func decodeParams(dst any, raw url.Values) error {
	return decoder.Decode(dst, raw)
}
