package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a coarse search latency class.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket maps a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Ring is a fixed-capacity FIFO buffer that overwrites its oldest item.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding up to capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest one when full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// Items returns the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	if r.size < len(r.items) {
		copy(out, r.items[:r.size])
		return out
	}
	n := copy(out, r.items[r.head:])
	copy(out[n:], r.items[:r.head])
	return out
}

// QueryTerms lowercases q and keeps the words of at least three bytes.
// Match-all queries have no terms.
func QueryTerms(q string) []string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" || q == "*:*" {
		return nil
	}
	var terms []string
	for _, w := range strings.Fields(q) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QuerySnapshot is a point-in-time copy of the query statistics.
type QuerySnapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	Since               time.Time               `json:"since"`
}

// QueryStats keeps in-memory statistics about the queries the service
// answers: the most searched terms, the latest queries that found nothing,
// and a latency histogram. Nothing is persisted.
type QueryStats struct {
	mu          sync.Mutex
	terms       *lru.Cache[string, int64]
	zeroResults *Ring[string]
	latencies   map[LatencyBucket]int64
	total       int64
	zeroCount   int64
	since       time.Time
}

// NewQueryStats tracks up to termCapacity terms and zeroCapacity
// zero-result queries.
func NewQueryStats(termCapacity, zeroCapacity int) *QueryStats {
	if termCapacity <= 0 {
		termCapacity = 100
	}
	terms, _ := lru.New[string, int64](termCapacity)
	return &QueryStats{
		terms:       terms,
		zeroResults: NewRing[string](zeroCapacity),
		latencies:   make(map[LatencyBucket]int64),
		since:       time.Now(),
	}
}

// Record adds one answered query.
func (s *QueryStats) Record(q string, results int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.latencies[LatencyToBucket(latency)]++
	for _, t := range QueryTerms(q) {
		n, _ := s.terms.Get(t)
		s.terms.Add(t, n+1)
	}
	if results == 0 {
		s.zeroCount++
		s.zeroResults.Add(q)
	}
}

// Snapshot returns the current statistics with at most topN terms, most
// frequent first.
func (s *QueryStats) Snapshot(topN int) QuerySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	terms := make([]TermCount, 0, s.terms.Len())
	for _, t := range s.terms.Keys() {
		if n, ok := s.terms.Peek(t); ok {
			terms = append(terms, TermCount{Term: t, Count: n})
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if topN > 0 && len(terms) > topN {
		terms = terms[:topN]
	}

	latencies := make(map[LatencyBucket]int64, len(s.latencies))
	for b, n := range s.latencies {
		latencies[b] = n
	}

	return QuerySnapshot{
		TotalQueries:        s.total,
		ZeroResultCount:     s.zeroCount,
		TopTerms:            terms,
		ZeroResultQueries:   s.zeroResults.Items(),
		LatencyDistribution: latencies,
		Since:               s.since,
	}
}
