package app

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mosaic/internal/catalog"
	"github.com/Aman-CERP/mosaic/internal/config"
	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/module"
	"github.com/Aman-CERP/mosaic/internal/testutil"
)

// newTestApp serves two indexes: news with 7 documents and web with 5.
func newTestApp(t *testing.T) *App {
	t.Helper()
	root := t.TempDir()
	parquetDir := filepath.Join(root, "parquet")
	indexDir := filepath.Join(root, "index")

	testutil.WriteParquet(t, parquetDir, "news", testutil.Docs(7))
	testutil.WriteParquet(t, parquetDir, "web", testutil.Docs(5))
	_, err := catalog.BuildMissingIndexes(context.Background(), indexDir, parquetDir, "record_id", 2, nil)
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.Paths.IndexDir = indexDir
	cfg.Paths.ParquetDir = parquetDir
	cfg.Paths.DBFile = filepath.Join(root, "mosaic.db")

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func ids(results []*module.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestNew_RequiresPaths(t *testing.T) {
	cfg := config.NewConfig()

	_, err := New(context.Background(), cfg, nil)

	assert.Equal(t, mosaicerrors.CategoryConfig, mosaicerrors.GetCategory(err))
}

func TestNew_BuildsMetadataTables(t *testing.T) {
	a := newTestApp(t)

	for _, table := range []string{"news", "web"} {
		ok, err := a.Store.TableExists(context.Background(), table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}
}

func TestSearch_FederatesIndexes(t *testing.T) {
	a := newTestApp(t)

	// When: a term found in both indexes is searched
	ans, err := a.Search(context.Background(), url.Values{"q": {"zebra"}}, "json")
	require.NoError(t, err)

	// Then: each index contributes its matches, in name order, with snippets
	require.Len(t, ans.Response.Indexes, 2)
	assert.Equal(t, "news", ans.Response.Indexes[0].Index)
	assert.Len(t, ans.Response.Indexes[0].Results, 4)
	assert.Equal(t, "web", ans.Response.Indexes[1].Index)
	assert.Len(t, ans.Response.Indexes[1].Results, 3)
	for _, res := range ans.Response.Results() {
		assert.Contains(t, strings.ToLower(res.Snippet), "zebra")
	}

	// And: the query is counted
	assert.Equal(t, int64(1), a.Queries.Snapshot(10).TotalQueries)
}

func TestSearch_LanguageAndKeywordFilters(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	de, err := a.Search(ctx, url.Values{"q": {"common"}, "index": {"news"}, "lang": {"de"}}, "json")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-000", "doc-003", "doc-006"}, ids(de.Response.Results()))

	k1, err := a.Search(ctx, url.Values{"q": {"common"}, "index": {"web"}, "keyword": {"k1"}}, "json")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-001", "doc-003"}, ids(k1.Response.Results()))
}

func TestSearch_PagesMatchSinglePage(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	all, err := a.Search(ctx, url.Values{"q": {"common"}, "index": {"news"}, "limit": {"10"}}, "json")
	require.NoError(t, err)

	var paged []string
	for _, pw := range []string{"1", "2", "3"} {
		ans, err := a.Search(ctx, url.Values{"q": {"common"}, "index": {"news"}, "limit": {"3"}, "pw": {pw}}, "json")
		require.NoError(t, err)
		paged = append(paged, ids(ans.Response.Results())...)
	}

	assert.Len(t, paged, 7)
	assert.Equal(t, ids(all.Response.Results()), paged)
}

func TestSearch_RejectsInvalidRequests(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  url.Values
		want string
	}{
		{name: "zero limit", raw: url.Values{"limit": {"0"}}, want: "The limit parameter 0 is invalid"},
		{name: "negative limit", raw: url.Values{"limit": {"-5"}}, want: "The limit parameter -5 is invalid"},
		{name: "zero page", raw: url.Values{"pw": {"0"}}, want: "The pw parameter 0 is invalid"},
		{name: "unknown index", raw: url.Values{"index": {"nope"}}, want: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Search(ctx, tt.raw, "json")

			require.Error(t, err)
			assert.True(t, mosaicerrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIndexInfo(t *testing.T) {
	a := newTestApp(t)

	infos, err := a.IndexInfo(context.Background())

	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, IndexInfo{Name: "news", DocumentCount: 7, Languages: []string{"de", "en"}}, infos[0])
	assert.Equal(t, "web", infos[1].Name)
	assert.Equal(t, uint64(5), infos[1].DocumentCount)
}

func TestFullText(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	text, err := a.FullText(ctx, "doc-004", "", "web")
	require.NoError(t, err)
	assert.Equal(t, "Document 4 is about common things. A zebra lives here.", text)

	// Without an index, the first index holding the document answers.
	text, err = a.FullText(ctx, "doc-006", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Document 6 is about common things. A zebra lives here.", text)

	text, err = a.FullText(ctx, "doc-999", "", "")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestFullText_Errors(t *testing.T) {
	a := newTestApp(t)

	_, err := a.FullText(context.Background(), "", "", "")
	assert.Equal(t, mosaicerrors.ErrCodeMissingParameter, mosaicerrors.GetCode(err))

	_, err = a.FullText(context.Background(), "doc-001", "", "nope")
	assert.True(t, mosaicerrors.IsValidation(err))
	assert.Contains(t, err.Error(), "Index nope not found")
}
