package hnsw

// heapItem is an entry in a candidateHeap. The same type backs both the
// min-heap frontier (max=false, closest on top) and the max-heap result set
// (max=true, farthest on top) searchLayer needs simultaneously.
type heapItem struct {
	id   uint64
	dist float32
	max  bool
}

type candidateHeap []heapItem

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].max {
		return h[i].dist > h[j].dist
	}
	return h[i].dist < h[j].dist
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x interface{}) {
	*h = append(*h, x.(heapItem))
}

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
