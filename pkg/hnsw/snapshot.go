package hnsw

// NodeSnapshot is one graph vertex's complete on-disk representation: its
// normalized vector, assigned level, and per-level neighbor lists. Vector is
// already normalized, matching what insertLocked stores internally, so
// ImportSnapshot does not re-normalize it.
type NodeSnapshot struct {
	ID        uint64
	Vector    []float32
	Level     int
	Neighbors [][]uint64
}

// GraphSnapshot is everything ImportSnapshot needs to reproduce an Index's
// exact internal state, used by a replicated state machine to persist and
// restore the graph without replaying every historical Insert/Delete.
type GraphSnapshot struct {
	Nodes      []NodeSnapshot
	EntryPoint uint64
	MaxLevel   int
	NextID     uint64
}

// Export captures the current graph as a GraphSnapshot. Safe to call
// concurrently with Search; excludes Insert/Delete/Update for its duration
// like any other write-shaped access.
func (idx *Index) Export() GraphSnapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snap := GraphSnapshot{
		Nodes:      make([]NodeSnapshot, 0, len(idx.nodes)),
		EntryPoint: idx.entryPoint,
		MaxLevel:   idx.maxLevel,
		NextID:     idx.nextID,
	}
	for _, n := range idx.nodes {
		neighbors := make([][]uint64, len(n.neighbors))
		for i, level := range n.neighbors {
			neighbors[i] = append([]uint64(nil), level...)
		}
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			ID:        n.id,
			Vector:    append([]float32(nil), n.vector...),
			Level:     n.level,
			Neighbors: neighbors,
		})
	}
	return snap
}

// ImportSnapshot replaces the graph wholesale with snap's contents, trusting
// it as already-consistent (the output of a prior Export, or a peer's
// InstallSnapshot payload) rather than re-running neighbor selection.
func (idx *Index) ImportSnapshot(snap GraphSnapshot) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	nodes := make(map[uint64]*node, len(snap.Nodes))
	for _, ns := range snap.Nodes {
		nodes[ns.ID] = &node{
			id:        ns.ID,
			vector:    append([]float32(nil), ns.Vector...),
			level:     ns.Level,
			neighbors: ns.Neighbors,
		}
	}
	idx.nodes = nodes
	idx.entryPoint = snap.EntryPoint
	idx.maxLevel = snap.MaxLevel
	idx.nextID = snap.NextID
}
