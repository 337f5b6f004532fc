// Package module defines the metadata modules that shape a search: the
// columns they need from the metadata store, the parameters they validate
// and parse, the filter fragments they push into the per-document lookup,
// the predicate they apply after the lookup, and the fields they contribute
// to JSON and XML output.
//
// Modules form a closed set registered by name (see Build). A search runs
// with an ordered list of them; "core" is always first.
package module

import (
	"encoding/xml"
	"net/url"
	"sort"
	"strings"
)

// Module is one metadata facet.
type Module interface {
	// Name is the registry name of the module.
	Name() string

	// Columns lists the metadata columns the module reads.
	Columns() []string

	// Validate rejects raw parameters the module cannot serve. It runs
	// before any engine is touched.
	Validate(raw url.Values, catalog Catalog) error

	// Parse stores the module's normalized parameters on req.
	Parse(raw url.Values, req *Request) error

	// Filter returns the lookup predicate fragments and their bound values
	// for req, restricted to the columns the table actually has.
	Filter(req *Request, available ColumnSet) Filter

	// Accept is applied to every row the lookup returns.
	Accept(row Row, req *Request) bool

	// JSON returns a value whose JSON object encoding holds the module's
	// fields in output order.
	JSON(res *Result, req *Request) any

	// WriteXML writes the module's elements for one feed item.
	WriteXML(enc *xml.Encoder, res *Result, req *Request) error
}

// Catalog is the view of the index catalog modules validate against.
type Catalog interface {
	Has(name string) bool
	HasMetadata(name string) bool
}

// Row is one metadata record keyed by column name. NULL columns are absent.
type Row map[string]string

// Result is one accepted hit with its metadata.
type Result struct {
	// ID is the document id shared by the full-text index and the table.
	ID string
	// Index is the name of the index the hit came from.
	Index string
	// Row holds the projected metadata columns.
	Row Row
	// Snippet is the text excerpt chosen for the query.
	Snippet string
}

// WordCount is the number of whitespace-separated words in plain_text.
func (r *Result) WordCount() int {
	return len(strings.Fields(r.Row["plain_text"]))
}

// ColumnSet is a set of column names.
type ColumnSet map[string]struct{}

// NewColumnSet builds a set from names.
func NewColumnSet(names ...string) ColumnSet {
	s := make(ColumnSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s ColumnSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s ColumnSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Filter is a run of " AND <predicate>" fragments together with the values
// bound to their placeholders, in placeholder order.
type Filter struct {
	Clause string
	Args   []any
}

// And appends one predicate and its values.
func (f *Filter) And(predicate string, args ...any) {
	f.Clause += " AND " + predicate
	f.Args = append(f.Args, args...)
}

// Append concatenates other after f.
func (f *Filter) Append(other Filter) {
	f.Clause += other.Clause
	f.Args = append(f.Args, other.Args...)
}

// Columns returns the union of every module's declared columns.
func Columns(mods []Module) ColumnSet {
	s := ColumnSet{}
	for _, m := range mods {
		for _, c := range m.Columns() {
			s[c] = struct{}{}
		}
	}
	return s
}

// Filters concatenates the filters of mods in order.
func Filters(mods []Module, req *Request, available ColumnSet) Filter {
	var f Filter
	for _, m := range mods {
		f.Append(m.Filter(req, available))
	}
	return f
}

// AcceptAll reports whether every module accepts row. It stops at the first
// module that does not.
func AcceptAll(mods []Module, row Row, req *Request) bool {
	for _, m := range mods {
		if !m.Accept(row, req) {
			return false
		}
	}
	return true
}
