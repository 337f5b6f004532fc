package module

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
)

// warcDateLayout is the layout of the warc_date column.
const warcDateLayout = "2006-01-02T15:04:05Z"

// Core serves the parameters and fields every search has: the query, the
// target index, language, ranking, paging and the basic page metadata.
type Core struct {
	idColumn     string
	defaultLimit int
	maxLimit     int
}

var _ Module = (*Core)(nil)

// NewCore creates the core module.
func NewCore(opts Options) *Core {
	opts = opts.withDefaults()
	return &Core{idColumn: opts.IDColumn, defaultLimit: opts.DefaultLimit, maxLimit: opts.MaxLimit}
}

type coreParams struct {
	Q        string `schema:"q"`
	Index    string `schema:"index"`
	Lang     string `schema:"lang"`
	Ranking  string `schema:"ranking"`
	Limit    string `schema:"limit"`
	Page     string `schema:"pw"`
	FullText string `schema:"fulltext"`
}

// Name implements Module.
func (c *Core) Name() string { return "core" }

// Columns implements Module.
func (c *Core) Columns() []string {
	return []string{c.idColumn, "url", "title", "plain_text", "language", "warc_date"}
}

// Validate checks the target index and the paging parameters. Non-numeric
// limit and pw values are not errors; Parse falls back to the defaults.
func (c *Core) Validate(raw url.Values, catalog Catalog) error {
	if name := raw.Get("index"); name != "" {
		if !catalog.Has(name) {
			return mosaicerrors.UnknownIndexError(name)
		}
		if !catalog.HasMetadata(name) {
			return mosaicerrors.New(mosaicerrors.ErrCodeMissingMetadata,
				fmt.Sprintf("The metadata for index %s could not be found", name), nil).
				WithDetail("index", name)
		}
	}

	for _, p := range []string{"limit", "pw"} {
		if !raw.Has(p) {
			continue
		}
		if n, ok := parseInt(raw.Get(p)); ok && n <= 0 {
			return mosaicerrors.ValidationError(
				fmt.Sprintf("The %s parameter %s is invalid and must be a positive value", p, raw.Get(p))).
				WithDetail("parameter", p)
		}
	}
	if n, ok := parseInt(raw.Get("limit")); ok && n > c.maxLimit {
		return mosaicerrors.ValidationError(
			fmt.Sprintf("The limit parameter %s is invalid and must not exceed %d", raw.Get("limit"), c.maxLimit)).
			WithDetail("parameter", "limit")
	}
	return nil
}

// Parse implements Module.
func (c *Core) Parse(raw url.Values, req *Request) error {
	var p coreParams
	if err := decodeParams(&p, raw); err != nil {
		return mosaicerrors.ValidationError(fmt.Sprintf("Invalid query parameters: %v", err))
	}

	req.Query = p.Q
	if req.Query == "" {
		req.Query = MatchAll
	}
	req.Index = p.Index
	req.Language = p.Lang
	req.Ranking = strings.ToLower(p.Ranking)

	req.Limit = c.defaultLimit
	if n, ok := parseInt(p.Limit); ok {
		req.Limit = n
	}
	req.Page = 1
	if n, ok := parseInt(p.Page); ok {
		req.Page = n
	}

	req.FullText, _ = strconv.ParseBool(p.FullText)
	return nil
}

// Filter pushes the language restriction into the lookup.
func (c *Core) Filter(req *Request, available ColumnSet) Filter {
	var f Filter
	if req.Language != "" && available.Has("language") {
		f.And("language = ?", req.Language)
	}
	return f
}

// Accept implements Module. Core has no post-fetch condition.
func (c *Core) Accept(Row, *Request) bool { return true }

type coreJSON struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	TextSnippet string `json:"textSnippet"`
	Language    string `json:"language"`
	WarcDate    int64  `json:"warcDate"`
	WordCount   int    `json:"wordCount"`
}

// JSON implements Module.
func (c *Core) JSON(res *Result, _ *Request) any {
	return coreJSON{
		ID:          c.id(res),
		URL:         strings.TrimSpace(res.Row["url"]),
		Title:       strings.TrimSpace(res.Row["title"]),
		TextSnippet: strings.TrimSpace(res.Snippet),
		Language:    strings.TrimSpace(res.Row["language"]),
		WarcDate:    WarcDateMillis(res.Row["warc_date"]),
		WordCount:   res.WordCount(),
	}
}

// WriteXML implements Module.
func (c *Core) WriteXML(enc *xml.Encoder, res *Result, _ *Request) error {
	description := strings.TrimSpace(strings.ReplaceAll(res.Snippet, "\n", " "))

	fields := []struct {
		name  string
		value string
	}{
		{"title", strings.TrimSpace(res.Row["title"])},
		{"link", strings.TrimSpace(res.Row["url"])},
		{"description", description},
		{"id", c.id(res)},
		{"language", strings.TrimSpace(res.Row["language"])},
		{"warcDate", strconv.FormatInt(WarcDateMillis(res.Row["warc_date"]), 10)},
		{"wordCount", strconv.Itoa(res.WordCount())},
	}
	for _, f := range fields {
		if err := enc.EncodeElement(f.value, xml.StartElement{Name: xml.Name{Local: f.name}}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) id(res *Result) string {
	if id, ok := res.Row[c.idColumn]; ok {
		return id
	}
	return res.ID
}

// WarcDateMillis converts a warc_date value to milliseconds since the epoch.
// It returns -1 when the value cannot be parsed.
func WarcDateMillis(s string) int64 {
	t, err := time.Parse(warcDateLayout, strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return t.UnixMilli()
}

// parseInt parses a decimal integer, reporting false for anything else.
func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}
