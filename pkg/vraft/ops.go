package vraft

import (
	"errors"
	"fmt"

	"github.com/vraft/vraft/pkg/hnsw"
	"github.com/vraft/vraft/pkg/raft"
	"github.com/vraft/vraft/pkg/statemachine"
)

// ErrNotLeader is returned by every write operation issued against a
// follower. Retry against the current leader, discoverable via Raft().State().
var ErrNotLeader = errors.New("vraft: not leader")

// Insert assigns vec a new id and replicates it, returning the assigned id
// once the insertion is committed and applied locally. The id and the HNSW
// level are both decided here, on the leader, so that every replica applies
// the identical InsertAt call; followers must not draw their own level or id.
func (n *Node) Insert(vec []float32) (uint64, error) {
	if !n.raft.IsLeader() {
		return 0, ErrNotLeader
	}
	id := n.allocateID()
	payload, err := statemachine.BuildInsertOp(n.idxCfg, id, vec)
	if err != nil {
		return 0, fmt.Errorf("vraft: building insert op: %w", err)
	}
	if _, _, err := n.raft.Submit(raft.Command{Kind: raft.CommandApplication, Payload: payload}); err != nil {
		return 0, fmt.Errorf("vraft: submitting insert: %w", err)
	}
	return id, nil
}

// Delete removes id from the index across the cluster.
func (n *Node) Delete(id uint64) error {
	if !n.raft.IsLeader() {
		return ErrNotLeader
	}
	payload, err := statemachine.BuildDeleteOp(id)
	if err != nil {
		return fmt.Errorf("vraft: building delete op: %w", err)
	}
	_, _, err = n.raft.Submit(raft.Command{Kind: raft.CommandApplication, Payload: payload})
	return err
}

// Update replaces id's vector across the cluster. id must already exist.
func (n *Node) Update(id uint64, vec []float32) error {
	if !n.raft.IsLeader() {
		return ErrNotLeader
	}
	payload, err := statemachine.BuildUpdateOp(id, vec)
	if err != nil {
		return fmt.Errorf("vraft: building update op: %w", err)
	}
	_, _, err = n.raft.Submit(raft.Command{Kind: raft.CommandApplication, Payload: payload})
	return err
}

// Search runs a local, non-replicated approximate kNN query against this
// replica's index. Any replica, leader or follower, may serve reads; a
// follower may lag the leader by however many entries are not yet applied.
func (n *Node) Search(query []float32, k int) ([]hnsw.SearchResult, error) {
	return n.driver.Index().Search(query, k)
}

// Metrics reports a snapshot of this replica's index and raft state, useful
// for a status endpoint or CLI command.
type Metrics struct {
	Role      string
	Term      uint64
	NodeCount int
	MaxLevel  int
}

// Metrics returns a point-in-time snapshot of this replica's state.
func (n *Node) Metrics() Metrics {
	stats := n.driver.Index().Stats()
	state := n.raft.State()
	return Metrics{
		Role:      state.Role.String(),
		Term:      state.CurrentTerm,
		NodeCount: stats.NodeCount,
		MaxLevel:  stats.MaxLevel,
	}
}

// allocateID hands out the next id for a leader-issued insert. It seeds from
// and, on every call, reconciles against the local index's own id high-water
// mark, so that a freshly elected leader - which may have applied inserts
// committed by a previous leader that this replica's in-memory counter never
// saw incremented for - never reuses an id already present in the graph.
func (n *Node) allocateID() uint64 {
	if floor := n.driver.Index().NextID(); floor > n.nextID.Load() {
		n.nextID.Store(floor)
	}
	id := n.nextID.Load()
	n.nextID.Store(id + 1)
	return id
}
