package assemble

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mosaic/internal/module"
	"github.com/Aman-CERP/mosaic/internal/search"
)

const catText = "A cat sat. The cat ran fast. A dog slept."

func TestSnippet_TieGoesToFirstSentence(t *testing.T) {
	// Given: two sentences containing "cat" once each
	// When: a snippet is picked with a small minimum length
	got, ok := Snippet(catText, []string{"cat"}, 5)

	// Then: the first of them in the text wins
	require.True(t, ok)
	assert.Equal(t, "A cat sat", got)
}

func TestSnippet_MoreTermsWin(t *testing.T) {
	got, ok := Snippet(catText, []string{"cat", "FAST"}, 5)

	require.True(t, ok)
	assert.Equal(t, "The cat ran fast", got)
}

func TestSnippet_ExpandsForward(t *testing.T) {
	text := "Intro. Zebra here. More text follows after this."

	got, ok := Snippet(text, []string{"zebra"}, 20)

	require.True(t, ok)
	assert.Equal(t, "Zebra here. More tex", got)
}

func TestSnippet_StopsAtEndOfText(t *testing.T) {
	got, ok := Snippet(catText, []string{"dog"}, 200)

	require.True(t, ok)
	assert.Equal(t, "A dog slept.", got)
}

func TestSnippet_CountsCharactersNotBytes(t *testing.T) {
	got, ok := Snippet("Über alles. Ärger hier.", []string{"ärger"}, 5)

	require.True(t, ok)
	assert.Equal(t, "Ärger hier", got)
}

func TestSnippet_NoMatch(t *testing.T) {
	_, ok := Snippet(catText, []string{"horse"}, 200)
	assert.False(t, ok)

	_, ok = Snippet("", []string{"cat"}, 200)
	assert.False(t, ok)
}

func TestTermsAndHead(t *testing.T) {
	assert.Equal(t, []string{"a", "B"}, Terms("a  B "))
	assert.Nil(t, Terms(""))

	assert.Equal(t, "ab", Head("abc", 2))
	assert.Equal(t, "ab", Head("ab", 5))
	assert.Equal(t, "Üb", Head("Über", 2))
}

func result(id, text string) *module.Result {
	return &module.Result{ID: id, Index: "web", Row: module.Row{"record_id": id, "plain_text": text}}
}

func resultIDs(results []*module.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestRerank(t *testing.T) {
	tests := []struct {
		name    string
		ranking string
		want    []string
	}{
		{name: "ascending", ranking: "asc", want: []string{"one", "two-a", "two-b", "three"}},
		{name: "descending ignores case", ranking: "DESC", want: []string{"three", "two-a", "two-b", "one"}},
		{name: "no ranking", ranking: "", want: []string{"two-a", "three", "one", "two-b"}},
		{name: "unknown ranking", ranking: "random", want: []string{"two-a", "three", "one", "two-b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := []*module.Result{
				result("two-a", "a b"),
				result("three", "a b c"),
				result("one", "a"),
				result("two-b", "c d"),
			}

			Rerank(results, tt.ranking)

			assert.Equal(t, tt.want, resultIDs(results))
		})
	}
}

type fakeLoader struct {
	text  string
	err   error
	calls int
}

func (f *fakeLoader) FullText(context.Context, string, string) (string, error) {
	f.calls++
	return f.text, f.err
}

func newAssembler(t *testing.T, opts ...Option) *Assembler {
	t.Helper()
	mods, err := module.Build([]string{"geo", "keywords"}, module.Options{})
	require.NoError(t, err)
	a, err := New(mods, opts...)
	require.NoError(t, err)
	return a
}

func TestNew_RequiresModules(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestPrepare_RerankPerIndexAndSnippets(t *testing.T) {
	// Given: two indexes whose pages are in reverse word-count order
	resp := &search.Response{Indexes: []search.IndexResult{
		{Index: "a", Results: []*module.Result{result("a2", "zebra one. two"), result("a1", "zebra")}},
		{Index: "b", Results: []*module.Result{result("b1", "zebra")}},
	}}
	req := &module.Request{Query: "zebra", Ranking: "asc"}

	// When: the response is prepared
	newAssembler(t).Prepare(context.Background(), resp, req)

	// Then: each index is re-ranked on its own and snippets are filled
	assert.Equal(t, []string{"a1", "a2"}, resultIDs(resp.Indexes[0].Results))
	assert.Equal(t, "b1", resp.Indexes[1].Results[0].ID)
	assert.Equal(t, "zebra", resp.Indexes[0].Results[0].Snippet)
	assert.Equal(t, "zebra one. two", resp.Indexes[0].Results[1].Snippet)
}

func TestPrepare_MatchAllHasNoSnippet(t *testing.T) {
	resp := &search.Response{Indexes: []search.IndexResult{
		{Index: "web", Results: []*module.Result{result("x", "Some text.")}},
	}}

	newAssembler(t).Prepare(context.Background(), resp, &module.Request{Query: module.MatchAll})

	assert.Empty(t, resp.Indexes[0].Results[0].Snippet)
}

func TestPrepare_ReloadsFullText(t *testing.T) {
	// Given: stored text without the term and a full text that has it
	loader := &fakeLoader{text: "Start. A zebra appears."}
	a := newAssembler(t, WithTextLoader(loader))
	res := result("x", "Nothing relevant here.")
	resp := &search.Response{Indexes: []search.IndexResult{{Index: "web", Results: []*module.Result{res}}}}

	// When: the request allows full-text loading
	a.Prepare(context.Background(), resp, &module.Request{Query: "zebra", FullText: true})

	// Then: the snippet comes from the full text
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, "A zebra appears.", res.Snippet)
}

func TestPrepare_NoReloadFallsBackToHead(t *testing.T) {
	loader := &fakeLoader{text: "A zebra appears."}
	a := newAssembler(t, WithTextLoader(loader), WithSnippetLength(7))
	res := result("x", "Nothing relevant here.")
	resp := &search.Response{Indexes: []search.IndexResult{{Index: "web", Results: []*module.Result{res}}}}

	a.Prepare(context.Background(), resp, &module.Request{Query: "zebra"})

	assert.Zero(t, loader.calls)
	assert.Equal(t, "Nothing", res.Snippet)
}

func TestPrepare_ReloadFailureFallsBackToStoredText(t *testing.T) {
	loader := &fakeLoader{err: errors.New("gone")}
	a := newAssembler(t, WithTextLoader(loader), WithSnippetLength(7))
	res := result("x", "Nothing relevant here.")
	resp := &search.Response{Indexes: []search.IndexResult{{Index: "web", Results: []*module.Result{res}}}}

	a.Prepare(context.Background(), resp, &module.Request{Query: "zebra", FullText: true})

	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, "Nothing", res.Snippet)
}

func sampleResponse() *search.Response {
	res := &module.Result{
		ID:    "doc-1",
		Index: "web",
		Row: module.Row{
			"record_id":  "doc-1",
			"url":        "http://example.org",
			"title":      "T",
			"plain_text": "one two three",
			"language":   "en",
			"warc_date":  "2024-01-02T03:04:05Z",
			"keywords":   `["a","b"]`,
		},
		Snippet: "snip",
	}
	return &search.Response{Indexes: []search.IndexResult{
		{Index: "web", Results: []*module.Result{res}, TotalHits: 42},
		{Index: "wiki", Results: nil},
	}}
}

func TestJSON_FieldOrderFollowsModules(t *testing.T) {
	out, err := newAssembler(t).JSON(sampleResponse(), &module.Request{Query: "q"})

	require.NoError(t, err)
	assert.Equal(t,
		`{"results":[{"web":[{"id":"doc-1","url":"http://example.org","title":"T","textSnippet":"snip",`+
			`"language":"en","warcDate":1704164645000,"wordCount":3,"locations":[],"keywords":["a","b"]}]},`+
			`{"wiki":[]}]}`,
		string(out))
}

func TestJSON_EmptyResponse(t *testing.T) {
	out, err := newAssembler(t).JSON(&search.Response{}, &module.Request{})

	require.NoError(t, err)
	assert.Equal(t, `{"results":[]}`, string(out))
}

func wellFormed(t *testing.T, doc []byte) {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
	}
}

func TestFeed_PagingAndItems(t *testing.T) {
	// Given: page 2 of ten with 42 total hits
	a := newAssembler(t, WithBaseURL("http://localhost:8008/"))
	req := &module.Request{Query: "zebra", Limit: 10, Page: 2}

	// When: the feed is written
	out, err := a.Feed(sampleResponse(), req)
	require.NoError(t, err)
	doc := string(out)

	// Then: it is a well-formed Atom feed with OpenSearch paging
	wellFormed(t, out)
	assert.True(t, strings.HasPrefix(doc, xml.Header))
	assert.Contains(t, doc, `xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/"`)
	assert.Contains(t, doc, `<title>MOSAIC Search: zebra</title>`)
	assert.Contains(t, doc, `<opensearch:totalResults>42</opensearch:totalResults>`)
	assert.Contains(t, doc, `<opensearch:startIndex>11</opensearch:startIndex>`)
	assert.Contains(t, doc, `<opensearch:itemsPerPage>10</opensearch:itemsPerPage>`)

	// And: navigation links cover first, previous, next and last pages
	assert.Contains(t, doc, `rel="first" href="http://localhost:8008/searchxml?limit=10&amp;pw=1&amp;q=zebra"`)
	assert.Contains(t, doc, `rel="previous" href="http://localhost:8008/searchxml?limit=10&amp;pw=1&amp;q=zebra"`)
	assert.Contains(t, doc, `rel="next" href="http://localhost:8008/searchxml?limit=10&amp;pw=3&amp;q=zebra"`)
	assert.Contains(t, doc, `rel="last" href="http://localhost:8008/searchxml?limit=10&amp;pw=4&amp;q=zebra"`)
	assert.Contains(t, doc, `href="http://localhost:8008/opensearch.xml"`)

	// And: the item carries module elements and its index
	assert.Contains(t, doc, `<item><title>T</title><link>http://example.org</link>`)
	assert.Contains(t, doc, `<keywords><keyword>a</keyword><keyword>b</keyword></keywords><index>web</index></item>`)
	assert.Equal(t, 1, strings.Count(doc, "<item>"))
}

func TestFeed_FirstPageHasNoBackLinks(t *testing.T) {
	req := &module.Request{Query: "zebra", Limit: 50, Page: 1}

	out, err := newAssembler(t).Feed(sampleResponse(), req)

	require.NoError(t, err)
	assert.NotContains(t, string(out), `rel="first"`)
	assert.NotContains(t, string(out), `rel="previous"`)
	assert.NotContains(t, string(out), `rel="next"`)
}

func TestPaging(t *testing.T) {
	tests := []struct {
		name               string
		total              uint64
		limit, page        int
		wantStart, wantEnd int
		wantNext           bool
	}{
		{name: "middle page", total: 42, limit: 10, page: 2, wantStart: 11, wantEnd: 4, wantNext: true},
		{name: "partial second page", total: 15, limit: 10, page: 1, wantStart: 1, wantEnd: 1, wantNext: true},
		{name: "exact single page", total: 10, limit: 10, page: 1, wantStart: 1, wantEnd: 1, wantNext: false},
		{name: "empty", total: 0, limit: 20, page: 1, wantStart: 1, wantEnd: 0, wantNext: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paging(tt.total, tt.limit, tt.page)

			assert.Equal(t, tt.wantStart, p.StartIndex)
			assert.Equal(t, tt.wantEnd, p.LastPage)
			assert.Equal(t, tt.wantNext, p.HasNext)
			assert.Equal(t, tt.limit, p.ItemsPerPage)
		})
	}
}

func TestDescription(t *testing.T) {
	out, err := Description("http://localhost:8008/searchxml?q={searchTerms}")

	require.NoError(t, err)
	wellFormed(t, out)
	assert.Contains(t, string(out), `template="http://localhost:8008/searchxml?q={searchTerms}"`)
	assert.Contains(t, string(out), `<ShortName>MOSAIC</ShortName>`)
}
