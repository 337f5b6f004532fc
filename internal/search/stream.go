package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/mosaic/internal/cursor"
)

// MaxBatch is the most hits one Fetch returns. Larger requests are read in
// several batches.
const MaxBatch = 10_000

// hitOrder ranks by descending score and breaks ties by ascending id, so
// the stream is identical on every read.
var hitOrder = []string{"-_score", "_id"}

// Hit is one entry of a ranked hit stream.
type Hit struct {
	ID    string
	Score float64
}

// Batch is a slice of the hit stream plus the stream's total length.
type Batch struct {
	Hits  []Hit
	Total uint64
}

// Stream is a ranked, deterministic sequence of hits for a query.
type Stream interface {
	// Fetch returns up to size hits ranked strictly after the cursor, or
	// from the start of the stream when after is zero.
	Fetch(ctx context.Context, q query.Query, after cursor.Cursor, size int) (Batch, error)
}

// BleveStream reads the hit stream of a bleve index.
type BleveStream struct {
	index bleve.Index
}

var _ Stream = (*BleveStream)(nil)

// NewBleveStream wraps idx.
func NewBleveStream(idx bleve.Index) *BleveStream {
	return &BleveStream{index: idx}
}

// Fetch implements Stream. size is clamped to [0, MaxBatch].
func (s *BleveStream) Fetch(ctx context.Context, q query.Query, after cursor.Cursor, size int) (Batch, error) {
	size = min(max(size, 0), MaxBatch)

	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.SortBy(hitOrder)
	if !after.IsZero() {
		req.SetSearchAfter(searchAfter(after))
	}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return Batch{}, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]Hit, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = Hit{ID: h.ID, Score: h.Score}
	}
	return Batch{Hits: hits, Total: res.Total}, nil
}

// searchAfter encodes c as sort values matching hitOrder.
func searchAfter(c cursor.Cursor) []string {
	return []string{strconv.FormatFloat(c.Score, 'g', -1, 64), c.DocID}
}
