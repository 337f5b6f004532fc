package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/testutil"
)

// buildDirs writes parquet fixtures for each index and builds their bleve
// indexes, returning the index and parquet directories.
func buildDirs(t *testing.T, sizes map[string]int) (string, string) {
	t.Helper()
	indexDir := t.TempDir()
	parquetDir := t.TempDir()
	for name, n := range sizes {
		testutil.WriteParquet(t, parquetDir, name, testutil.Docs(n))
	}
	_, err := BuildMissingIndexes(context.Background(), indexDir, parquetDir, "record_id", 2, nil)
	require.NoError(t, err)
	return indexDir, parquetDir
}

func TestDiscover_OpensEveryIndex(t *testing.T) {
	// Given: two built indexes
	indexDir, parquetDir := buildDirs(t, map[string]int{"web-b": 3, "web-a": 5})

	// When: the catalog is discovered
	c, err := Discover(context.Background(), indexDir, parquetDir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// Then: indexes are enumerated in lexical order with their tables
	assert.Equal(t, []string{"web-a", "web-b"}, c.Names())
	idx, ok := c.Get("web-a")
	require.True(t, ok)
	assert.Equal(t, "web_a", idx.Table)
	assert.True(t, c.Has("web-b"))
	assert.False(t, c.Has("web-c"))
	assert.True(t, c.HasMetadata("web-a"))
}

func TestDiscover_DocumentCount(t *testing.T) {
	indexDir, parquetDir := buildDirs(t, map[string]int{"web": 7})

	c, err := Discover(context.Background(), indexDir, parquetDir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	n, err := c.DocumentCount("web")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)

	_, err = c.DocumentCount("other")
	assert.Equal(t, mosaicerrors.ErrCodeUnknownIndex, mosaicerrors.GetCode(err))
}

func TestDiscover_MissingIndexDir(t *testing.T) {
	_, err := Discover(context.Background(), filepath.Join(t.TempDir(), "absent"), "", nil)

	require.Error(t, err)
	assert.Equal(t, mosaicerrors.ErrCodeIndexOpen, mosaicerrors.GetCode(err))
	assert.Equal(t, 500, mosaicerrors.HTTPStatus(err))
}

func TestDiscover_CorruptIndex(t *testing.T) {
	// Given: an index directory whose meta file is empty
	indexDir := t.TempDir()
	broken := filepath.Join(indexDir, "broken")
	require.NoError(t, os.MkdirAll(broken, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "index_meta.json"), nil, 0644))

	// When: the catalog is discovered
	_, err := Discover(context.Background(), indexDir, "", nil)

	// Then: startup fails with a corrupt index error
	require.Error(t, err)
	assert.Equal(t, mosaicerrors.ErrCodeCorruptIndex, mosaicerrors.GetCode(err))
}

func TestDiscover_NoMetadataDirectory(t *testing.T) {
	indexDir, _ := buildDirs(t, map[string]int{"web": 1})

	c, err := Discover(context.Background(), indexDir, t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.True(t, c.Has("web"))
	assert.False(t, c.HasMetadata("web"))
}

func TestTargets(t *testing.T) {
	a, err := bleve.NewMemOnly(NewIndexMapping())
	require.NoError(t, err)
	b, err := bleve.NewMemOnly(NewIndexMapping())
	require.NoError(t, err)
	c := New(map[string]bleve.Index{"b": b, "a": a}, nil)
	t.Cleanup(func() { _ = c.Close() })

	all := c.Targets("")
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)

	one := c.Targets("b")
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].Name)

	assert.Empty(t, c.Targets("zzz"))
}

func TestBuildMissingIndexes_SkipsExisting(t *testing.T) {
	// Given: one index already built
	indexDir, parquetDir := buildDirs(t, map[string]int{"first": 2})
	testutil.WriteParquet(t, parquetDir, "second", testutil.Docs(2))

	// When: missing indexes are built again
	created, err := BuildMissingIndexes(context.Background(), indexDir, parquetDir, "record_id", 4, nil)

	// Then: only the new one is created
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, created)
}

func TestIndexDocuments_Searchable(t *testing.T) {
	// Given: an in-memory index filled from parquet
	dir := t.TempDir()
	path := testutil.WriteParquet(t, dir, "web", testutil.Docs(4))
	idx, err := bleve.NewMemOnly(NewIndexMapping())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	n, err := IndexDocuments(context.Background(), idx, []string{path}, "record_id")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// When: a term only even documents contain is searched
	res, err := idx.Search(bleve.NewSearchRequest(bleve.NewQueryStringQuery("zebra")))
	require.NoError(t, err)

	// Then: both even documents match
	assert.Equal(t, uint64(2), res.Total)
}

func TestBuildIndex_NoParquet(t *testing.T) {
	_, err := BuildIndex(context.Background(), filepath.Join(t.TempDir(), "idx"), t.TempDir(), "record_id")
	require.Error(t, err)
}
