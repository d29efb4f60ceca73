// Package eval measures HNSW search quality against brute-force exact
// nearest-neighbor search, the recall@k benchmark a vraftd bench subcommand
// and the package's own tests both drive.
package eval

import (
	"container/heap"
	"fmt"
	"math/rand"

	"github.com/vraft/vraft/pkg/hnsw"
	"github.com/vraft/vraft/pkg/vector"
)

// Dataset is a set of labeled vectors used as both the index's corpus and
// the brute-force ground truth.
type Dataset struct {
	Dimension int
	Vectors   map[uint64][]float32 // already normalized
}

// GenerateRandomDataset builds n random unit-ish vectors of the given
// dimension, deterministic for a given seed.
func GenerateRandomDataset(n, dimension int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &Dataset{Dimension: dimension, Vectors: make(map[uint64][]float32, n)}
	for i := 1; i <= n; i++ {
		v := make([]float32, dimension)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		normalized, err := vector.Normalized(v)
		if err != nil {
			continue
		}
		ds.Vectors[uint64(i)] = normalized
	}
	return ds
}

// BruteForceKNN returns the k nearest ids to query by true distance, scanning
// every vector in ds.
func BruteForceKNN(ds *Dataset, query []float32, k int) []uint64 {
	h := &maxHeap{}
	heap.Init(h)
	for id, v := range ds.Vectors {
		d := vector.FastEuclideanSquared(query, v)
		heap.Push(h, scoredItem{id: id, dist: d})
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]uint64, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(scoredItem).id
	}
	return out
}

type scoredItem struct {
	id   uint64
	dist float32
}

type maxHeap []scoredItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist } // max-heap on distance
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(scoredItem)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Result summarizes one recall@k benchmark run.
type Result struct {
	K          int
	NumQueries int
	Recall     float64
}

// RecallAtK builds idx from ds, runs numQueries random queries against it,
// and compares each result set to BruteForceKNN's ground truth, returning
// the fraction of ground-truth ids that appeared in the approximate result.
func RecallAtK(ds *Dataset, idx *hnsw.Index, numQueries, k int, seed int64) (Result, error) {
	for id, v := range ds.Vectors {
		if _, err := idx.Insert(v, id); err != nil {
			return Result{}, fmt.Errorf("eval: inserting id %d: %w", id, err)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	var totalHits, totalWant int
	for q := 0; q < numQueries; q++ {
		query := make([]float32, ds.Dimension)
		for j := range query {
			query[j] = rng.Float32()*2 - 1
		}
		normalized, err := vector.Normalized(query)
		if err != nil {
			continue
		}

		got, err := idx.Search(normalized, k)
		if err != nil {
			return Result{}, fmt.Errorf("eval: searching: %w", err)
		}
		want := BruteForceKNN(ds, normalized, k)
		wantSet := make(map[uint64]bool, len(want))
		for _, id := range want {
			wantSet[id] = true
		}
		for _, r := range got {
			if wantSet[r.ID] {
				totalHits++
			}
		}
		totalWant += len(want)
	}

	recall := 0.0
	if totalWant > 0 {
		recall = float64(totalHits) / float64(totalWant)
	}
	return Result{K: k, NumQueries: numQueries, Recall: recall}, nil
}
