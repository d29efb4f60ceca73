package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vraft/vraft/pkg/raft"
)

// WebSocket is a networked raft.Transport backed by
// github.com/gorilla/websocket: one duplex connection per peer, opened
// lazily and kept alive across calls, with requests and replies correlated
// by envelope id so concurrent callers can share the same socket. The
// server side (WebSocketServer) answers one connection's requests one at a
// time in arrival order, so a slow RPC delays the ones queued behind it.
type WebSocket struct {
	selfID    string
	addresses map[string]string // peer id -> ws URL, e.g. ws://host:port/raft

	mu      sync.Mutex
	conns   map[string]*wsConn
	nextID  uint64
	timeout time.Duration
}

type wsConn struct {
	conn    *websocket.Conn
	mu      sync.Mutex // guards writes; gorilla conns are not write-concurrent-safe
	pending sync.Map   // id -> chan envelope
}

// NewWebSocket constructs a client-side transport. addresses maps each peer
// id to the ws:// URL its server endpoint listens on.
func NewWebSocket(selfID string, addresses map[string]string) *WebSocket {
	return &WebSocket{
		selfID:    selfID,
		addresses: addresses,
		conns:     make(map[string]*wsConn),
		timeout:   5 * time.Second,
	}
}

func (t *WebSocket) connFor(peer string) (*wsConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[peer]; ok {
		return c, nil
	}
	addr, ok := t.addresses[peer]
	if !ok {
		return nil, fmt.Errorf("transport: no address registered for peer %q", peer)
	}
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", addr, err)
	}
	c := &wsConn{conn: conn}
	go t.readLoop(peer, c)
	t.conns[peer] = c
	return c, nil
}

func (t *WebSocket) readLoop(peer string, c *wsConn) {
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			t.mu.Lock()
			if t.conns[peer] == c {
				delete(t.conns, peer)
			}
			t.mu.Unlock()
			c.pending.Range(func(key, value any) bool {
				value.(chan envelope) <- envelope{Error: err.Error()}
				return true
			})
			return
		}
		if ch, ok := c.pending.LoadAndDelete(env.ID); ok {
			ch.(chan envelope) <- env
		}
	}
}

func (t *WebSocket) roundTrip(peer string, req envelope) (envelope, error) {
	c, err := t.connFor(peer)
	if err != nil {
		return envelope{}, err
	}
	req.ID = atomic.AddUint64(&t.nextID, 1)
	req.From = t.selfID
	req.To = peer

	reply := make(chan envelope, 1)
	c.pending.Store(req.ID, reply)

	c.mu.Lock()
	err = c.conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.pending.Delete(req.ID)
		return envelope{}, fmt.Errorf("transport: writing to %s: %w", peer, err)
	}

	select {
	case env := <-reply:
		if env.Error != "" {
			return envelope{}, fmt.Errorf("transport: %s: %s", peer, env.Error)
		}
		return env, nil
	case <-time.After(t.timeout):
		c.pending.Delete(req.ID)
		return envelope{}, fmt.Errorf("transport: timed out waiting for %s", peer)
	}
}

func (t *WebSocket) SendRequestVote(peer string, args *raft.RequestVoteArgs) (*raft.RequestVoteReply, error) {
	env, err := t.roundTrip(peer, envelope{Type: typeRequestVote, RequestVoteArgs: args})
	if err != nil {
		return nil, err
	}
	return env.RequestVoteReply, nil
}

func (t *WebSocket) SendAppendEntries(peer string, args *raft.AppendEntriesArgs) (*raft.AppendEntriesReply, error) {
	env, err := t.roundTrip(peer, envelope{Type: typeAppendEntries, AppendEntriesArgs: args})
	if err != nil {
		return nil, err
	}
	return env.AppendEntriesReply, nil
}

func (t *WebSocket) SendInstallSnapshot(peer string, args *raft.InstallSnapshotArgs) (*raft.InstallSnapshotReply, error) {
	env, err := t.roundTrip(peer, envelope{Type: typeInstallSnapshot, InstallSnapshotArgs: args})
	if err != nil {
		return nil, err
	}
	return env.InstallSnapshotReply, nil
}

var _ raft.Transport = (*WebSocket)(nil)
