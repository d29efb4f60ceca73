// Package transport provides raft.Transport implementations: an in-process
// registry for tests and single-process demos, and a WebSocket-backed
// networked transport for real multi-machine clusters.
package transport

import (
	"fmt"
	"sync"

	"github.com/vraft/vraft/pkg/raft"
)

// dialable is the subset of *raft.Node that InProcess needs to route calls
// to a peer without importing the concrete type's unexported internals.
type dialable interface {
	HandleRequestVote(*raft.RequestVoteArgs) (*raft.RequestVoteReply, error)
	HandleAppendEntries(*raft.AppendEntriesArgs) (*raft.AppendEntriesReply, error)
	HandleInstallSnapshot(*raft.InstallSnapshotArgs) (*raft.InstallSnapshotReply, error)
}

// InProcess is a raft.Transport that dials peers registered in the same Go
// process directly, with no network involved. It is the backbone of
// pkg/vraft's multi-node tests and of any single-process cluster.
type InProcess struct {
	mu    sync.RWMutex
	peers map[string]dialable
}

// NewInProcess returns an empty registry. Peers are added with Register.
func NewInProcess() *InProcess {
	return &InProcess{peers: make(map[string]dialable)}
}

// Register makes id reachable at node for subsequent Send* calls.
func (t *InProcess) Register(id string, node dialable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = node
}

// Unregister removes id, simulating that peer becoming unreachable.
func (t *InProcess) Unregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

func (t *InProcess) lookup(id string) (dialable, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.peers[id]
	if !ok {
		return nil, fmt.Errorf("transport: no such peer %q", id)
	}
	return n, nil
}

func (t *InProcess) SendRequestVote(peer string, args *raft.RequestVoteArgs) (*raft.RequestVoteReply, error) {
	n, err := t.lookup(peer)
	if err != nil {
		return nil, err
	}
	return n.HandleRequestVote(args)
}

func (t *InProcess) SendAppendEntries(peer string, args *raft.AppendEntriesArgs) (*raft.AppendEntriesReply, error) {
	n, err := t.lookup(peer)
	if err != nil {
		return nil, err
	}
	return n.HandleAppendEntries(args)
}

func (t *InProcess) SendInstallSnapshot(peer string, args *raft.InstallSnapshotArgs) (*raft.InstallSnapshotReply, error) {
	n, err := t.lookup(peer)
	if err != nil {
		return nil, err
	}
	return n.HandleInstallSnapshot(args)
}

var _ raft.Transport = (*InProcess)(nil)
