// Package hnsw implements a Hierarchical Navigable Small World graph: an
// in-memory approximate-nearest-neighbor index over dense float32 vectors.
//
// An Index is safe for concurrent use: it holds a single internal lock
// guarding the whole graph, matching the core's single-threaded-cooperative
// replica model. Reads (Search) may run
// concurrently with each other; a write (Insert/Delete/Update) excludes all
// other access for its duration.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/vraft/vraft/pkg/vector"
)

// node is a single HNSW graph vertex. neighbors[k] holds the sorted,
// deduplicated set of level-k neighbor ids; len(neighbors) == level+1.
type node struct {
	id        uint64
	vector    []float32
	level     int
	neighbors [][]uint64
}

// SearchResult is one hit returned by Search, ordered nearest-first.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// Stats summarizes the current shape of an Index.
type Stats struct {
	NodeCount           int
	MaxLevel            int
	AverageOutDegree    float64
	EstimatedMemoryBytes uint64
}

// Index is a single HNSW graph over vectors of a fixed dimension.
type Index struct {
	mu         sync.RWMutex
	cfg        Config
	nodes      map[uint64]*node
	entryPoint uint64 // 0 means "no entry point"
	maxLevel   int
	nextID     uint64
}

// New constructs an empty Index. cfg is validated; an invalid configuration
// returns ErrInvalidConfig.
func New(cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Index{
		cfg:    cfg,
		nodes:  make(map[uint64]*node),
		nextID: 1,
	}, nil
}

// DrawLevel samples a node level from the exponential distribution HNSW
// uses to keep the graph hierarchy roughly scale-free:
// floor(-ln(U) * ml), U ~ Uniform(0, 1).
//
// Replicated callers (pkg/statemachine) call this once on the leader and
// stamp the result into the committed Insert command, so every replica's
// InsertAt applies the identical level instead of redrawing independently.
func DrawLevel(ml float64) int {
	u := rand.Float64()
	for u == 0 {
		u = rand.Float64()
	}
	return int(math.Floor(-math.Log(u) * ml))
}

// Insert draws its own level via DrawLevel and delegates to InsertAt. id may
// be 0 to request an internally assigned id; a non-zero id that already
// exists fails with ErrDuplicateID.
func (idx *Index) Insert(vec []float32, id uint64) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.insertLocked(vec, id, DrawLevel(idx.cfg.ML))
}

// InsertAt inserts vec at a caller-supplied level, skipping the internal
// random draw. This is how a replicated state machine keeps every replica's
// graph in lockstep: the leader draws the level once and every apply call,
// on every replica, uses InsertAt with that same level.
func (idx *Index) InsertAt(vec []float32, id uint64, level int) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.insertLocked(vec, id, level)
}

func (idx *Index) insertLocked(vec []float32, id uint64, level int) (uint64, error) {
	if len(vec) != idx.cfg.Dimension {
		return 0, ErrDimensionMismatch
	}
	if id != 0 {
		if _, exists := idx.nodes[id]; exists {
			return 0, ErrDuplicateID
		}
	}
	owned, err := vector.Normalized(vec)
	if err != nil {
		return 0, ErrZeroVector
	}
	if level < 0 {
		level = 0
	}

	if id == 0 {
		id = idx.nextID
	}
	if id >= idx.nextID {
		idx.nextID = id + 1
	}

	n := &node{
		id:        id,
		vector:    owned,
		level:     level,
		neighbors: make([][]uint64, level+1),
	}
	for i := range n.neighbors {
		n.neighbors[i] = nil
	}
	idx.nodes[id] = n

	if idx.entryPoint == 0 {
		idx.entryPoint = id
		idx.maxLevel = level
		return id, nil
	}

	cursor := idx.entryPoint
	epLevel := idx.nodes[cursor].level

	for l := epLevel; l > level; l-- {
		cursor = idx.greedyDescend(owned, cursor, l)
	}

	top := level
	if epLevel < top {
		top = epLevel
	}
	for l := top; l >= 0; l-- {
		candidates := idx.searchLayer(owned, []uint64{cursor}, idx.cfg.EfConstruction, l)
		cap := idx.capAtLevel(l)
		selected := idx.selectNeighbors(owned, candidates, minInt(idx.cfg.M, cap))
		n.neighbors[l] = append([]uint64(nil), idsOf(selected)...)

		for _, nb := range selected {
			neighbor := idx.nodes[nb.id]
			idx.addEdge(neighbor, l, id)
			if len(neighbor.neighbors[l]) > idx.capAtLevel(l) {
				idx.shrinkNeighbors(neighbor, l)
			}
		}

		if len(candidates) > 0 {
			cursor = candidates[0].id
		}
	}

	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.entryPoint = id
	}

	return id, nil
}

// capAtLevel returns the out-degree cap for level l: 2*M at level 0, M
// above it.
func (idx *Index) capAtLevel(l int) int {
	if l == 0 {
		return 2 * idx.cfg.M
	}
	return idx.cfg.M
}

// addEdge installs a bidirectional edge between a and b at level l,
// keeping neighbor lists sorted and free of duplicates.
func (idx *Index) addEdge(a *node, l int, b uint64) {
	if l >= len(a.neighbors) {
		return
	}
	for _, existing := range a.neighbors[l] {
		if existing == b {
			return
		}
	}
	a.neighbors[l] = insertSorted(a.neighbors[l], b)
}

func insertSorted(s []uint64, v uint64) []uint64 {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeSorted(s []uint64, v uint64) []uint64 {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	if i < len(s) && s[i] == v {
		return append(s[:i], s[i+1:]...)
	}
	return s
}

// shrinkNeighbors reapplies neighbor selection at level l against a's own
// vector, dropping a's level-l out-degree back down to its cap. Edges are
// removed symmetrically: when a drops b, b also drops a.
func (idx *Index) shrinkNeighbors(a *node, l int) {
	cap := idx.capAtLevel(l)
	candidates := make([]scored, 0, len(a.neighbors[l]))
	for _, nbID := range a.neighbors[l] {
		nb, ok := idx.nodes[nbID]
		if !ok {
			continue
		}
		candidates = append(candidates, scored{id: nbID, dist: distance(a.vector, nb.vector)})
	}
	kept := idx.selectNeighbors(a.vector, candidates, cap)
	keptSet := make(map[uint64]bool, len(kept))
	for _, k := range kept {
		keptSet[k.id] = true
	}
	for _, nbID := range a.neighbors[l] {
		if keptSet[nbID] {
			continue
		}
		if nb, ok := idx.nodes[nbID]; ok && l < len(nb.neighbors) {
			nb.neighbors[l] = removeSorted(nb.neighbors[l], a.id)
		}
	}
	ids := make([]uint64, len(kept))
	for i, k := range kept {
		ids[i] = k.id
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	a.neighbors[l] = ids
}

// greedyDescend starting from cursor repeatedly moves to a strictly closer
// level-l neighbor until no neighbor improves on the current cursor.
func (idx *Index) greedyDescend(query []float32, cursor uint64, level int) uint64 {
	current := cursor
	currentDist := distance(query, idx.nodes[current].vector)
	for {
		moved := false
		n := idx.nodes[current]
		if level >= len(n.neighbors) {
			break
		}
		for _, nbID := range n.neighbors[level] {
			nb := idx.nodes[nbID]
			d := distance(query, nb.vector)
			if d < currentDist {
				current = nbID
				currentDist = d
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return current
}

type scored struct {
	id   uint64
	dist float32
}

// searchLayer is the canonical HNSW layer search: a min-heap frontier and a
// max-heap result set, both seeded from entryPoints, expanding the closest
// unvisited candidate until the frontier can no longer improve the worst
// kept result. Returns up to ef results sorted ascending by distance.
func (idx *Index) searchLayer(query []float32, entryPoints []uint64, ef int, level int) []scored {
	visited := make(map[uint64]bool, ef*2)
	frontier := &candidateHeap{}
	results := &candidateHeap{}
	heap.Init(frontier)
	heap.Init(results)

	for _, ep := range entryPoints {
		n, ok := idx.nodes[ep]
		if !ok || visited[ep] {
			continue
		}
		visited[ep] = true
		d := distance(query, n.vector)
		heap.Push(frontier, heapItem{id: ep, dist: d, max: false})
		heap.Push(results, heapItem{id: ep, dist: d, max: true})
	}

	for frontier.Len() > 0 {
		closest := heap.Pop(frontier).(heapItem)
		if results.Len() >= ef && closest.dist > (*results)[0].dist {
			break
		}

		n, ok := idx.nodes[closest.id]
		if !ok || level >= len(n.neighbors) {
			continue
		}
		for _, nbID := range n.neighbors[level] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			nb := idx.nodes[nbID]
			d := distance(query, nb.vector)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(frontier, heapItem{id: nbID, dist: d, max: false})
				heap.Push(results, heapItem{id: nbID, dist: d, max: true})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scored, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item := heap.Pop(results).(heapItem)
		out[i] = scored{id: item.id, dist: item.dist}
	}
	return out
}

// selectNeighbors sorts candidates by ascending distance (ties broken by
// smaller id) and keeps the first m.
func (idx *Index) selectNeighbors(query []float32, candidates []scored, m int) []scored {
	sorted := append([]scored(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].dist != sorted[j].dist {
			return sorted[i].dist < sorted[j].dist
		}
		return sorted[i].id < sorted[j].id
	})
	if len(sorted) > m {
		sorted = sorted[:m]
	}
	return sorted
}

func idsOf(s []scored) []uint64 {
	ids := make([]uint64, len(s))
	for i, x := range s {
		ids[i] = x.id
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// distance is the squared Euclidean distance, monotonic with both true
// Euclidean distance and 1-cosine on unit vectors; using the square avoids
// a sqrt per comparison on the hot search/insert path.
func distance(a, b []float32) float32 {
	return vector.FastEuclideanSquared(a, b)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Search returns the k approximate nearest neighbors to query, nearest
// first. An empty index returns an empty, nil-error result.
func (idx *Index) Search(query []float32, k int) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.cfg.Dimension {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if idx.entryPoint == 0 {
		return []SearchResult{}, nil
	}

	normalized, err := vector.Normalized(query)
	if err != nil {
		return nil, ErrZeroVector
	}

	cursor := idx.entryPoint
	for l := idx.maxLevel; l > 0; l-- {
		cursor = idx.greedyDescend(normalized, cursor, l)
	}

	ef := idx.cfg.EfSearch
	if k > ef {
		ef = k
	}
	candidates := idx.searchLayer(normalized, []uint64{cursor}, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		out[i] = SearchResult{ID: c.id, Distance: float32(math.Sqrt(float64(c.dist)))}
	}
	return out, nil
}

// Delete removes id's node and every reverse edge pointing at it. If id was
// the entry point, the remaining node with the highest level (the smallest
// id among equals) becomes the new entry point, if any node remains.
func (idx *Index) Delete(id uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.deleteLocked(id)
}

func (idx *Index) deleteLocked(id uint64) error {
	n, ok := idx.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}

	for l := 0; l <= n.level; l++ {
		if l >= len(n.neighbors) {
			continue
		}
		for _, nbID := range n.neighbors[l] {
			nb, ok := idx.nodes[nbID]
			if !ok || l >= len(nb.neighbors) {
				continue
			}
			nb.neighbors[l] = removeSorted(nb.neighbors[l], id)
		}
	}

	delete(idx.nodes, id)

	if idx.entryPoint == id {
		idx.entryPoint = 0
		idx.maxLevel = 0
		for nid, other := range idx.nodes {
			if idx.entryPoint == 0 || other.level > idx.maxLevel ||
				(other.level == idx.maxLevel && nid < idx.entryPoint) {
				idx.entryPoint = nid
				idx.maxLevel = other.level
			}
		}
	}

	return nil
}

// Update replaces id's vector, keeping its existing level. It is implemented
// as delete-then-reinsert with the same id, matching how the state machine
// needs a single atomic-looking call per applied Update command.
func (idx *Index) Update(id uint64, vec []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n, ok := idx.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	if len(vec) != idx.cfg.Dimension {
		return ErrDimensionMismatch
	}
	if vector.Norm(vec) == 0 {
		return ErrZeroVector
	}
	level := n.level
	if err := idx.deleteLocked(id); err != nil {
		return err
	}
	_, err := idx.insertLocked(vec, id, level)
	return err
}

// NextID reports the smallest id an auto-assigning Insert (id == 0) would
// use right now. Exposed so a replicated caller can seed its own id
// allocator from whatever state this replica has already applied, which
// matters after a leader failover: the new leader must not reuse an id the
// old one already committed.
func (idx *Index) NextID() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.nextID
}

// Stats reports the current size and shape of the graph.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var totalEdges int
	for _, n := range idx.nodes {
		for _, level := range n.neighbors {
			totalEdges += len(level)
		}
	}
	avg := 0.0
	if len(idx.nodes) > 0 {
		avg = float64(totalEdges) / float64(len(idx.nodes))
	}

	var mem uint64
	for _, n := range idx.nodes {
		mem += uint64(len(n.vector)) * 4
		for _, level := range n.neighbors {
			mem += uint64(len(level)) * 8
		}
		mem += 32
	}

	return Stats{
		NodeCount:            len(idx.nodes),
		MaxLevel:             idx.maxLevel,
		AverageOutDegree:     avg,
		EstimatedMemoryBytes: mem,
	}
}
