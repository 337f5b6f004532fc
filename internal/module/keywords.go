package module

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"

	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
)

// Keywords restricts results to documents tagged with a keyword. The keywords
// column holds a JSON array of strings.
type Keywords struct {
	logger *slog.Logger
}

var _ Module = (*Keywords)(nil)

// NewKeywords creates the keywords module.
func NewKeywords(opts Options) *Keywords {
	opts = opts.withDefaults()
	return &Keywords{logger: opts.Logger}
}

type keywordsParams struct {
	Keyword string `schema:"keyword"`
}

// Name implements Module.
func (k *Keywords) Name() string { return "keywords" }

// Columns implements Module.
func (k *Keywords) Columns() []string { return []string{"keywords"} }

// Validate implements Module.
func (k *Keywords) Validate(url.Values, Catalog) error { return nil }

// Parse implements Module.
func (k *Keywords) Parse(raw url.Values, req *Request) error {
	var p keywordsParams
	if err := decodeParams(&p, raw); err != nil {
		return mosaicerrors.ValidationError(fmt.Sprintf("Invalid query parameters: %v", err))
	}
	if p.Keyword != "" {
		req.SetParam(k.Name(), p.Keyword)
	}
	return nil
}

// Filter pushes keyword membership into the lookup. Tables without a
// keywords column are not filtered.
func (k *Keywords) Filter(req *Request, available ColumnSet) Filter {
	var f Filter
	keyword, ok := req.Param(k.Name()).(string)
	if !ok || !available.Has("keywords") {
		return f
	}
	f.And("json_valid(keywords) AND EXISTS (SELECT 1 FROM json_each(keywords) WHERE json_each.value = ?)", keyword)
	return f
}

// Accept implements Module.
func (k *Keywords) Accept(Row, *Request) bool { return true }

type keywordsJSON struct {
	Keywords []string `json:"keywords"`
}

// JSON implements Module.
func (k *Keywords) JSON(res *Result, _ *Request) any {
	return keywordsJSON{Keywords: k.keywords(res.Row)}
}

type keywordsXML struct {
	XMLName  xml.Name `xml:"keywords"`
	Keywords []string `xml:"keyword"`
}

// WriteXML implements Module.
func (k *Keywords) WriteXML(enc *xml.Encoder, res *Result, _ *Request) error {
	return enc.Encode(keywordsXML{Keywords: k.keywords(res.Row)})
}

func (k *Keywords) keywords(row Row) []string {
	out := []string{}
	raw, ok := row["keywords"]
	if !ok || raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		k.logger.Debug("keywords_unparsable", slog.String("error", err.Error()))
		return []string{}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
