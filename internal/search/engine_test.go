package search

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mosaic/internal/catalog"
	"github.com/Aman-CERP/mosaic/internal/cursor"
	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/module"
)

// fakeEnricher accepts every id it is not told to reject.
type fakeEnricher struct {
	reject map[string]bool

	mu      sync.Mutex
	batches [][]string
}

func (f *fakeEnricher) Enrich(_ context.Context, index, _ string, ids []string, _ *module.Request) ([]*module.Result, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.mu.Unlock()

	var out []*module.Result
	for _, id := range ids {
		if f.reject[id] {
			continue
		}
		out = append(out, &module.Result{ID: id, Index: index, Row: module.Row{"record_id": id}})
	}
	return out, nil
}

func (f *fakeEnricher) fetched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

// memIndex builds an in-memory index of n identical documents named
// <prefix>-NN. Equal scores make the stream order the id order.
func memIndex(t *testing.T, prefix string, n int) bleve.Index {
	t.Helper()
	idx, err := bleve.NewMemOnly(catalog.NewIndexMapping())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	batch := idx.NewBatch()
	for i := 0; i < n; i++ {
		doc := map[string]any{catalog.ContentsField: "common words here"}
		require.NoError(t, batch.Index(fmt.Sprintf("%s-%02d", prefix, i), doc))
	}
	require.NoError(t, idx.Batch(batch))
	return idx
}

func newEngine(t *testing.T, cat *catalog.Catalog, enr Enricher) *Engine {
	t.Helper()
	e, err := NewEngine(cat, enr, cursor.NewCache(100))
	require.NoError(t, err)
	return e
}

func request(limit, page int) *module.Request {
	return &module.Request{
		Query:  "common",
		Search: bleve.NewQueryStringQuery("common"),
		Limit:  limit,
		Page:   page,
	}
}

func ids(results []*module.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestNewEngine_NilDependencies(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{}, nil)

	_, err := NewEngine(nil, &fakeEnricher{}, cursor.NewCache(1))
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = NewEngine(cat, nil, cursor.NewCache(1))
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = NewEngine(cat, &fakeEnricher{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestSearch_PagesConcatenateToAcceptedStream(t *testing.T) {
	// Given: 23 hits, a few of which have no acceptable metadata
	cat := catalog.New(map[string]bleve.Index{"web": memIndex(t, "web", 23)}, nil)
	enr := &fakeEnricher{reject: map[string]bool{"web-03": true, "web-08": true, "web-15": true}}
	ctx := context.Background()

	// And: the full accepted stream read in one page
	all, err := newEngine(t, cat, enr).Search(ctx, request(100, 1))
	require.NoError(t, err)
	stream := ids(all.Results())
	require.Len(t, stream, 20)

	// When: the same stream is read page by page
	e := newEngine(t, cat, enr)
	var paged []string
	for page := 1; page <= 5; page++ {
		resp, err := e.Search(ctx, request(6, page))
		require.NoError(t, err)
		paged = append(paged, ids(resp.Results())...)
	}

	// Then: the pages concatenate to the accepted stream without gaps or repeats
	assert.Equal(t, stream, paged)
}

func TestSearch_ColdPageEqualsWarmPage(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{"web": memIndex(t, "web", 30)}, nil)
	enr := &fakeEnricher{reject: map[string]bool{"web-01": true, "web-04": true}}
	ctx := context.Background()

	// Given: page 3 requested directly on an empty cache
	cold, err := newEngine(t, cat, enr).Search(ctx, request(5, 3))
	require.NoError(t, err)

	// When: page 3 is requested after pages 1 and 2 warmed the cache
	warmEngine := newEngine(t, cat, enr)
	for page := 1; page <= 2; page++ {
		_, err := warmEngine.Search(ctx, request(5, page))
		require.NoError(t, err)
	}
	before := enr.fetched()
	warm, err := warmEngine.Search(ctx, request(5, 3))
	require.NoError(t, err)

	// Then: both return the same results, and the warm read only fetched
	// one page worth of hits
	assert.Equal(t, ids(cold.Results()), ids(warm.Results()))
	assert.Len(t, warm.Results(), 5)
	assert.Equal(t, 5, enr.fetched()-before)
}

func TestSearch_RepeatedRequestIsIdempotent(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{"web": memIndex(t, "web", 12)}, nil)
	e := newEngine(t, cat, &fakeEnricher{})
	ctx := context.Background()

	first, err := e.Search(ctx, request(4, 2))
	require.NoError(t, err)
	second, err := e.Search(ctx, request(4, 2))
	require.NoError(t, err)

	assert.Equal(t, ids(first.Results()), ids(second.Results()))
}

func TestSearch_ExpandsBatchesPastRejectedHits(t *testing.T) {
	// Given: the first three hits are rejected
	idx := memIndex(t, "web", 10)
	cat := catalog.New(map[string]bleve.Index{"web": idx}, nil)
	all, err := newEngine(t, cat, &fakeEnricher{}).Search(context.Background(), request(10, 1))
	require.NoError(t, err)
	order := ids(all.Results())
	enr := &fakeEnricher{reject: map[string]bool{order[0]: true, order[1]: true, order[2]: true}}

	// When: a page of four is requested
	resp, err := newEngine(t, cat, enr).Search(context.Background(), request(4, 1))
	require.NoError(t, err)

	// Then: the page is filled from later hits, asking only for what is missing
	assert.Equal(t, order[3:7], ids(resp.Results()))
	require.Len(t, enr.batches, 2)
	assert.Len(t, enr.batches[0], 4)
	assert.Len(t, enr.batches[1], 3)
}

func TestSearch_ShortStreamStops(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{"web": memIndex(t, "web", 3)}, nil)
	enr := &fakeEnricher{}

	resp, err := newEngine(t, cat, enr).Search(context.Background(), request(10, 1))

	require.NoError(t, err)
	assert.Len(t, resp.Results(), 3)
	assert.Len(t, enr.batches, 1)
	assert.Equal(t, uint64(3), resp.TotalHits())
}

func TestSearch_PageBeyondEndIsEmpty(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{"web": memIndex(t, "web", 3)}, nil)

	resp, err := newEngine(t, cat, &fakeEnricher{}).Search(context.Background(), request(5, 4))

	require.NoError(t, err)
	assert.Empty(t, resp.Results())
	assert.Equal(t, uint64(3), resp.TotalHits())
}

func TestSearch_ConcatenatesIndexesInOrder(t *testing.T) {
	// Given: two indexes
	cat := catalog.New(map[string]bleve.Index{
		"beta":  memIndex(t, "beta", 4),
		"alpha": memIndex(t, "alpha", 3),
	}, nil)

	// When: all indexes are searched
	resp, err := newEngine(t, cat, &fakeEnricher{}).Search(context.Background(), request(2, 1))
	require.NoError(t, err)

	// Then: each index contributes its own page, in name order
	require.Len(t, resp.Indexes, 2)
	assert.Equal(t, "alpha", resp.Indexes[0].Index)
	assert.Equal(t, "beta", resp.Indexes[1].Index)
	assert.Len(t, resp.Indexes[0].Results, 2)
	assert.Len(t, resp.Indexes[1].Results, 2)
	assert.Equal(t, uint64(3), resp.Indexes[0].TotalHits)
	assert.Equal(t, uint64(7), resp.TotalHits())

	results := resp.Results()
	require.Len(t, results, 4)
	assert.Equal(t, "alpha", results[0].Index)
	assert.Equal(t, "beta", results[3].Index)
}

func TestSearch_SelectedIndexOnly(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{
		"alpha": memIndex(t, "alpha", 3),
		"beta":  memIndex(t, "beta", 3),
	}, nil)
	req := request(10, 1)
	req.Index = "beta"

	resp, err := newEngine(t, cat, &fakeEnricher{}).Search(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Indexes, 1)
	assert.Equal(t, "beta", resp.Indexes[0].Index)
}

func TestSearch_UnknownIndex(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{"alpha": memIndex(t, "alpha", 1)}, nil)
	req := request(10, 1)
	req.Index = "nope"

	_, err := newEngine(t, cat, &fakeEnricher{}).Search(context.Background(), req)

	assert.Equal(t, mosaicerrors.ErrCodeUnknownIndex, mosaicerrors.GetCode(err))
}

func TestSearch_StoresCursorUnderPageKey(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{"web": memIndex(t, "web", 10)}, nil)
	cache := cursor.NewCache(10)
	e, err := NewEngine(cat, &fakeEnricher{}, cache)
	require.NoError(t, err)
	req := request(4, 1)

	_, err = e.Search(context.Background(), req)
	require.NoError(t, err)

	cur, ok := cache.Get(req.CacheKey("web", 1))
	require.True(t, ok)
	assert.Equal(t, "web-03", cur.DocID)
	assert.Positive(t, cur.Score)
}

func TestSearch_WarmPageResumesAfterStoredCursor(t *testing.T) {
	// Given: a cursor for page 1 that points at web-05 instead of web-02
	idx := memIndex(t, "web", 12)
	cat := catalog.New(map[string]bleve.Index{"web": idx}, nil)
	cache := cursor.NewCache(10)
	e, err := NewEngine(cat, &fakeEnricher{}, cache)
	require.NoError(t, err)

	head, err := NewBleveStream(idx).Fetch(context.Background(), request(3, 1).Search, cursor.Cursor{}, 12)
	require.NoError(t, err)
	anchor := head.Hits[5]
	require.Equal(t, "web-05", anchor.ID)
	cache.Put(request(3, 1).CacheKey("web", 1), cursor.Cursor{Score: anchor.Score, DocID: anchor.ID})

	// When: page 2 is requested
	resp, err := e.Search(context.Background(), request(3, 2))

	// Then: reading starts strictly after the stored hit
	require.NoError(t, err)
	assert.Equal(t, []string{"web-06", "web-07", "web-08"}, ids(resp.Results()))
	assert.Equal(t, uint64(12), resp.TotalHits())
}

func TestSearch_HugePageDoesNotOverflow(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{"web": memIndex(t, "web", 5)}, nil)
	e := newEngine(t, cat, &fakeEnricher{})
	ctx := context.Background()

	for page := 1; page <= 2; page++ {
		resp, err := e.Search(ctx, request(math.MaxInt, page))
		require.NoError(t, err)
		if page == 1 {
			assert.Len(t, resp.Results(), 5)
		} else {
			assert.Empty(t, resp.Results())
		}
	}

	resp, err := newEngine(t, cat, &fakeEnricher{}).Search(ctx, request(1000, math.MaxInt))
	require.NoError(t, err)
	assert.Empty(t, resp.Results())
}

// panicEnricher fails the way a broken dependency would.
type panicEnricher struct{}

func (panicEnricher) Enrich(context.Context, string, string, []string, *module.Request) ([]*module.Result, error) {
	panic("enrichment exploded")
}

func TestSearch_PanicBecomesEngineFailure(t *testing.T) {
	cat := catalog.New(map[string]bleve.Index{"web": memIndex(t, "web", 3)}, nil)

	resp, err := newEngine(t, cat, panicEnricher{}).Search(context.Background(), request(2, 1))

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, mosaicerrors.ErrCodeSearchFailed, mosaicerrors.GetCode(err))
	assert.Contains(t, err.Error(), "The search in index web failed")
}

func TestWindow(t *testing.T) {
	assert.Equal(t, 12, window(3, 4))
	assert.Equal(t, 0, window(0, 4))
	assert.Equal(t, math.MaxInt, window(math.MaxInt, 2))
	assert.Equal(t, math.MaxInt, window(2, math.MaxInt))
}

func TestBleveStream_DeterministicOrder(t *testing.T) {
	idx := memIndex(t, "web", 8)
	s := NewBleveStream(idx)
	q := bleve.NewMatchAllQuery()

	all, err := s.Fetch(context.Background(), q, cursor.Cursor{}, 8)
	require.NoError(t, err)
	head, err := s.Fetch(context.Background(), q, cursor.Cursor{}, 3)
	require.NoError(t, err)
	last := head.Hits[len(head.Hits)-1]
	tail, err := s.Fetch(context.Background(), q, cursor.Cursor{Score: last.Score, DocID: last.ID}, 5)
	require.NoError(t, err)

	assert.Equal(t, all.Hits, append(head.Hits, tail.Hits...))
	assert.Equal(t, uint64(8), all.Total)
	assert.Equal(t, "web-00", all.Hits[0].ID)
}

func TestBleveStream_ClampsSize(t *testing.T) {
	s := NewBleveStream(memIndex(t, "web", 4))
	q := bleve.NewMatchAllQuery()

	none, err := s.Fetch(context.Background(), q, cursor.Cursor{}, -1)
	require.NoError(t, err)
	assert.Empty(t, none.Hits)
	assert.Equal(t, uint64(4), none.Total)

	all, err := s.Fetch(context.Background(), q, cursor.Cursor{}, math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, all.Hits, 4)
}
