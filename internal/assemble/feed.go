package assemble

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Aman-CERP/mosaic/internal/module"
	"github.com/Aman-CERP/mosaic/internal/search"
)

const (
	atomNamespace       = "http://www.w3.org/2005/Atom"
	openSearchNamespace = "http://a9.com/-/spec/opensearch/1.1/"

	feedAuthor = "OpenWebSearch.eu"

	mimeJSON        = "application/json"
	mimeAtom        = "application/atom+xml"
	mimeDescription = "application/opensearchdescription+xml"
)

// feedWriter wraps an encoder and keeps the first error.
type feedWriter struct {
	enc *xml.Encoder
	err error
}

func (w *feedWriter) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

func (w *feedWriter) start(name string, attrs ...xml.Attr) {
	w.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (w *feedWriter) end(name string) {
	w.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (w *feedWriter) text(name, value string, attrs ...xml.Attr) {
	w.start(name, attrs...)
	if value != "" {
		w.token(xml.CharData(value))
	}
	w.end(name)
}

func (w *feedWriter) link(rel, href, typ string) {
	w.text("link", "", attr("rel", rel), attr("href", href), attr("type", typ))
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// FeedPaging holds the OpenSearch paging numbers of a feed.
type FeedPaging struct {
	TotalResults int
	StartIndex   int
	ItemsPerPage int
	// LastPage is TotalResults / ItemsPerPage, rounded down.
	LastPage int
	// HasNext is set when results remain past the current page.
	HasNext bool
}

// Paging computes the paging numbers for a page of limit results.
func Paging(total uint64, limit, page int) FeedPaging {
	p := FeedPaging{
		TotalResults: int(total),
		StartIndex:   1 + limit*(page-1),
		ItemsPerPage: limit,
	}
	if limit > 0 {
		p.LastPage = p.TotalResults / limit
	}
	p.HasNext = p.TotalResults > p.StartIndex+p.ItemsPerPage
	return p
}

// pageURL is a link to page of the same query at path.
func (a *Assembler) pageURL(path string, req *module.Request, page int) string {
	v := url.Values{}
	v.Set("q", req.Query)
	v.Set("pw", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(req.Limit))
	return a.baseURL + path + "?" + v.Encode()
}

// Feed serializes resp as an Atom feed with OpenSearch paging elements. Each
// result becomes one item holding the elements of every module followed by
// the name of its index.
func (a *Assembler) Feed(resp *search.Response, req *module.Request) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	w := &feedWriter{enc: xml.NewEncoder(&buf)}
	paging := Paging(resp.TotalHits(), req.Limit, req.Page)
	q := req.Query

	w.start("feed", attr("xmlns", atomNamespace), attr("xmlns:opensearch", openSearchNamespace))
	w.text("title", "MOSAIC Search: "+q)
	w.text("description", "Search results for \""+q+"\" at MOSAIC Search Service")
	w.start("author")
	w.text("name", feedAuthor)
	w.end("author")
	w.text("opensearch:totalResults", strconv.Itoa(paging.TotalResults))
	w.text("opensearch:startIndex", strconv.Itoa(paging.StartIndex))
	w.text("opensearch:itemsPerPage", strconv.Itoa(paging.ItemsPerPage))
	w.text("opensearch:Query", "", attr("role", "request"), attr("searchTerms", q), attr("startPage", "1"))

	w.link("alternate", a.pageURL("/search", req, req.Page), mimeJSON)
	w.link("self", a.pageURL("/searchxml", req, req.Page), mimeAtom)
	if req.Page > 1 {
		w.link("first", a.pageURL("/searchxml", req, 1), mimeAtom)
		w.link("previous", a.pageURL("/searchxml", req, req.Page-1), mimeAtom)
	}
	if paging.HasNext {
		w.link("next", a.pageURL("/searchxml", req, req.Page+1), mimeAtom)
		w.link("last", a.pageURL("/searchxml", req, paging.LastPage), mimeAtom)
	}
	w.link("search", a.baseURL+"/opensearch.xml", mimeDescription)

	for _, ir := range resp.Indexes {
		for _, res := range ir.Results {
			w.start("item")
			for _, m := range a.modules {
				if w.err != nil {
					break
				}
				if err := m.WriteXML(w.enc, res, req); err != nil {
					return nil, fmt.Errorf("serialize %s elements: %w", m.Name(), err)
				}
			}
			w.text("index", ir.Index)
			w.end("item")
		}
	}
	w.end("feed")

	if w.err == nil {
		w.err = w.enc.Flush()
	}
	if w.err != nil {
		return nil, fmt.Errorf("write feed: %w", w.err)
	}
	return buf.Bytes(), nil
}

type descriptionURL struct {
	Type     string `xml:"type,attr"`
	Template string `xml:"template,attr"`
}

type description struct {
	XMLName        xml.Name         `xml:"OpenSearchDescription"`
	Xmlns          string           `xml:"xmlns,attr"`
	ShortName      string           `xml:"ShortName"`
	Description    string           `xml:"Description"`
	InputEncoding  string           `xml:"InputEncoding"`
	OutputEncoding string           `xml:"OutputEncoding"`
	URLs           []descriptionURL `xml:"Url"`
}

// Description returns the OpenSearch description document advertising the
// feed at templateURL.
func Description(templateURL string) ([]byte, error) {
	doc := description{
		Xmlns:          openSearchNamespace,
		ShortName:      "MOSAIC",
		Description:    "MOSAIC Search Service",
		InputEncoding:  "UTF-8",
		OutputEncoding: "UTF-8",
		URLs:           []descriptionURL{{Type: mimeAtom, Template: templateURL}},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("write description: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
