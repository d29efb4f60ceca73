package raft

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSM is a trivial StateMachine used by tests: it remembers every
// applied payload in order.
type recordingSM struct {
	mu      sync.Mutex
	applied [][]byte
}

func (s *recordingSM) Apply(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, append([]byte(nil), payload...))
	return nil
}

func (s *recordingSM) Snapshot() ([]byte, error) { return nil, nil }
func (s *recordingSM) Restore([]byte) error      { return nil }

func (s *recordingSM) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

// registry is a shared directory of in-process nodes, addressed by server
// id, that fakeTransport dials directly without touching the network.
type registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

func newRegistry() *registry { return &registry{nodes: make(map[string]*Node)} }

func (r *registry) set(id string, n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id] = n
}

func (r *registry) get(id string) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[id]
}

type fakeTransport struct {
	reg *registry
}

func (t *fakeTransport) SendRequestVote(peer string, args *RequestVoteArgs) (*RequestVoteReply, error) {
	n := t.reg.get(peer)
	if n == nil {
		return nil, fmt.Errorf("fakeTransport: no such peer %q", peer)
	}
	return n.HandleRequestVote(args)
}

func (t *fakeTransport) SendAppendEntries(peer string, args *AppendEntriesArgs) (*AppendEntriesReply, error) {
	n := t.reg.get(peer)
	if n == nil {
		return nil, fmt.Errorf("fakeTransport: no such peer %q", peer)
	}
	return n.HandleAppendEntries(args)
}

func (t *fakeTransport) SendInstallSnapshot(peer string, args *InstallSnapshotArgs) (*InstallSnapshotReply, error) {
	n := t.reg.get(peer)
	if n == nil {
		return nil, fmt.Errorf("fakeTransport: no such peer %q", peer)
	}
	return n.HandleInstallSnapshot(args)
}

type cluster struct {
	reg   *registry
	nodes map[string]*Node
	sms   map[string]*recordingSM
}

func newCluster(t *testing.T, ids []string) *cluster {
	t.Helper()
	reg := newRegistry()
	c := &cluster{reg: reg, nodes: make(map[string]*Node), sms: make(map[string]*recordingSM)}

	for _, id := range ids {
		var peers []string
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		cfg := DefaultConfig(id, peers)
		cfg.ElectionTimeoutMin = 40 * time.Millisecond
		cfg.ElectionTimeoutMax = 80 * time.Millisecond
		cfg.HeartbeatTimeout = 15 * time.Millisecond
		cfg.SnapshotThreshold = 0

		sm := &recordingSM{}
		node, err := New(cfg, NewMemoryStorage(), &fakeTransport{reg: reg}, sm, nil)
		require.NoError(t, err)
		reg.set(id, node)
		c.nodes[id] = node
		c.sms[id] = sm
	}
	return c
}

func (c *cluster) start() {
	for _, n := range c.nodes {
		n.Start()
	}
}

func (c *cluster) stop() {
	for _, n := range c.nodes {
		n.Stop()
	}
}

func (c *cluster) waitForLeader(t *testing.T, timeout time.Duration) *Node {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, n := range c.nodes {
			if n.State().Role == Leader {
				return n
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no leader elected within timeout")
	return nil
}

func TestElectionConvergesToSingleLeader(t *testing.T) {
	c := newCluster(t, []string{"a", "b", "c"})
	c.start()
	defer c.stop()

	leader := c.waitForLeader(t, 2*time.Second)
	require.NotNil(t, leader)

	time.Sleep(100 * time.Millisecond)
	leaderCount := 0
	leaderTerm := leader.State().CurrentTerm
	for _, n := range c.nodes {
		s := n.State()
		if s.Role == Leader {
			leaderCount++
			assert.Equal(t, leaderTerm, s.CurrentTerm, "at most one leader per term")
		}
	}
	assert.Equal(t, 1, leaderCount)
}

func TestSubmitReplicatesToAllNodes(t *testing.T) {
	c := newCluster(t, []string{"a", "b", "c"})
	c.start()
	defer c.stop()

	leader := c.waitForLeader(t, 2*time.Second)

	_, _, err := leader.Submit(Command{Kind: CommandApplication, Payload: []byte("hello")})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		allApplied := true
		for _, sm := range c.sms {
			if sm.count() < 1 {
				allApplied = false
			}
		}
		if allApplied {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("not all replicas applied the committed entry in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	for id, sm := range c.sms {
		sm.mu.Lock()
		assert.Equal(t, []byte("hello"), sm.applied[0], "replica %s applied the wrong payload", id)
		sm.mu.Unlock()
	}
}

func TestSubmitOnFollowerFailsWithNotLeader(t *testing.T) {
	c := newCluster(t, []string{"a", "b", "c"})
	c.start()
	defer c.stop()

	leader := c.waitForLeader(t, 2*time.Second)

	var follower *Node
	for id, n := range c.nodes {
		if id != leader.cfg.ID {
			follower = n
			break
		}
	}
	require.NotNil(t, follower)

	_, _, err := follower.Submit(Command{Kind: CommandApplication, Payload: []byte("x")})
	require.Error(t, err)
	var notLeader *NotLeaderError
	assert.ErrorAs(t, err, &notLeader)
}

func TestSingleNodeClusterCommitsImmediately(t *testing.T) {
	c := newCluster(t, []string{"solo"})
	c.start()
	defer c.stop()

	leader := c.waitForLeader(t, time.Second)
	index, _, err := leader.Submit(Command{Kind: CommandApplication, Payload: []byte("one")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), index)
	assert.Equal(t, 1, c.sms["solo"].count())
}

func TestAddServerMembershipChange(t *testing.T) {
	c := newCluster(t, []string{"a", "b"})
	c.start()
	defer c.stop()

	leader := c.waitForLeader(t, 2*time.Second)

	cfgC := DefaultConfig("c", []string{"a", "b"})
	cfgC.ElectionTimeoutMin = 40 * time.Millisecond
	cfgC.ElectionTimeoutMax = 80 * time.Millisecond
	cfgC.HeartbeatTimeout = 15 * time.Millisecond
	smC := &recordingSM{}
	nodeC, err := New(cfgC, NewMemoryStorage(), &fakeTransport{reg: c.reg}, smC, nil)
	require.NoError(t, err)
	c.reg.set("c", nodeC)
	c.nodes["c"] = nodeC
	c.sms["c"] = smC
	nodeC.Start()

	require.NoError(t, leader.AddServer("c"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		found := false
		for _, p := range leader.State().Config {
			if p == "c" {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("new server never appeared in cluster config")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRestartRecoversFromStorage(t *testing.T) {
	storage := NewMemoryStorage()
	cfg := DefaultConfig("solo", nil)
	cfg.ElectionTimeoutMin = 20 * time.Millisecond
	cfg.ElectionTimeoutMax = 40 * time.Millisecond
	sm1 := &recordingSM{}
	reg := newRegistry()
	n1, err := New(cfg, storage, &fakeTransport{reg: reg}, sm1, nil)
	require.NoError(t, err)
	reg.set("solo", n1)
	n1.Start()

	deadline := time.Now().Add(time.Second)
	for n1.State().Role != Leader {
		if time.Now().After(deadline) {
			t.Fatal("node never became leader")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, _, err = n1.Submit(Command{Kind: CommandApplication, Payload: []byte("persisted")})
	require.NoError(t, err)
	n1.Stop()

	sm2 := &recordingSM{}
	n2, err := New(cfg, storage, &fakeTransport{reg: reg}, sm2, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n2.lastLogIndex(), "recovered log should contain the previously submitted entry")
}
