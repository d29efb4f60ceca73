package transport

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketServer accepts inbound RPC connections and dispatches each
// envelope to the local node's Handle* methods, mirroring the client's
// envelope format exactly so either side can be a gorilla/websocket peer.
type WebSocketServer struct {
	node     dialable
	upgrader websocket.Upgrader
	logger   *log.Logger
	http     *http.Server
}

// NewWebSocketServer wires node as the handler for every inbound RPC
// received on this replica's listen address.
func NewWebSocketServer(addr string, node dialable, logger *log.Logger) *WebSocketServer {
	if logger == nil {
		logger = log.Default()
	}
	s := &WebSocketServer{
		node:     node,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/raft", s.handleConn)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving inbound raft RPC connections until the
// server is shut down.
func (s *WebSocketServer) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Handler returns the server's http.Handler, for embedding under a test
// server or an existing mux instead of binding s.http's own listener.
func (s *WebSocketServer) Handler() http.Handler {
	return s.http.Handler
}

// Shutdown gracefully stops accepting new connections and waits for
// in-flight ones to finish, bounded by ctx.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *WebSocketServer) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("transport: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req envelope
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		reply := s.dispatch(req)
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *WebSocketServer) dispatch(req envelope) envelope {
	reply := envelope{ID: req.ID, Type: req.Type, From: req.To, To: req.From}

	switch req.Type {
	case typeRequestVote:
		r, err := s.node.HandleRequestVote(req.RequestVoteArgs)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		reply.RequestVoteReply = r

	case typeAppendEntries:
		r, err := s.node.HandleAppendEntries(req.AppendEntriesArgs)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		reply.AppendEntriesReply = r

	case typeInstallSnapshot:
		r, err := s.node.HandleInstallSnapshot(req.InstallSnapshotArgs)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		reply.InstallSnapshotReply = r

	default:
		reply.Error = "transport: unknown envelope type " + req.Type
	}
	return reply
}
