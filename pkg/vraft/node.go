// Package vraft is the embedding application's public surface: a single
// Node type exposing Insert/Delete/Update/Search/Metrics, wiring together a
// replicated raft.Node, a hnsw.Index, durable storage, and a transport.
package vraft

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/vraft/vraft/pkg/config"
	"github.com/vraft/vraft/pkg/hnsw"
	"github.com/vraft/vraft/pkg/raft"
	"github.com/vraft/vraft/pkg/statemachine"
	"github.com/vraft/vraft/pkg/storage"
	"github.com/vraft/vraft/pkg/transport"
)

// Node is one replica's embedding application surface. Construct with Open;
// call Close when done.
type Node struct {
	cfg     *config.Config
	raft    *raft.Node
	driver  *statemachine.Driver
	idxCfg  hnsw.Config
	nextID  atomic.Uint64
	logger  *log.Logger
	storage closer
	wsSrv   *transport.WebSocketServer
}

type closer interface {
	Close() error
}

// Open constructs and starts a replica from cfg. registry is the shared
// in-process peer directory used when cfg.Node.Transport == "inprocess";
// pass nil for a single-node cluster or when using "websocket" transport.
func Open(cfg *config.Config, logger *log.Logger, registry *transport.InProcess) (*Node, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vraft: invalid config: %w", err)
	}

	idxCfg := hnsw.Config{
		Dimension:      cfg.Index.Dimension,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		ML:             cfg.Index.ML,
		MaxElements:    cfg.Index.MaxElements,
	}
	idx, err := hnsw.New(idxCfg)
	if err != nil {
		return nil, fmt.Errorf("vraft: building index: %w", err)
	}
	driver := statemachine.New(idx, logger)

	var store raft.Storage
	var storeCloser closer
	if cfg.Node.DataDir == "" {
		store = raft.NewMemoryStorage()
	} else {
		bs, err := storage.NewBadgerStorage(storage.BadgerOptions{DataDir: cfg.Node.DataDir, SyncWrites: true})
		if err != nil {
			return nil, fmt.Errorf("vraft: opening storage: %w", err)
		}
		store = bs
		storeCloser = bs
	}

	var tr raft.Transport
	var wsSrv *transport.WebSocketServer
	switch cfg.Node.Transport {
	case "websocket":
		ws := transport.NewWebSocket(cfg.Node.ID, cfg.Node.PeerAddresses)
		tr = ws
	default: // "inprocess"
		if registry == nil {
			registry = transport.NewInProcess()
		}
		tr = registry
	}

	raftCfg := raft.Config{
		ID:                 cfg.Node.ID,
		Peers:              cfg.Node.Peers,
		HeartbeatTimeout:   cfg.Raft.HeartbeatTimeout,
		ElectionTimeoutMin: cfg.Raft.ElectionTimeoutMin,
		ElectionTimeoutMax: cfg.Raft.ElectionTimeoutMax,
		BatchSize:          cfg.Raft.BatchSize,
		SnapshotThreshold:  cfg.Raft.SnapshotThreshold,
	}
	rnode, err := raft.New(raftCfg, store, tr, driver, logger)
	if err != nil {
		return nil, fmt.Errorf("vraft: building raft node: %w", err)
	}

	if cfg.Node.Transport == "inprocess" {
		registry.Register(cfg.Node.ID, rnode)
	}
	if cfg.Node.Transport == "websocket" {
		wsSrv = transport.NewWebSocketServer(cfg.Node.ListenAddress, rnode, logger)
		go func() {
			if err := wsSrv.ListenAndServe(); err != nil {
				logger.Printf("vraft: websocket server stopped: %v", err)
			}
		}()
	}

	n := &Node{
		cfg:     cfg,
		raft:    rnode,
		driver:  driver,
		idxCfg:  idxCfg,
		logger:  logger,
		storage: storeCloser,
		wsSrv:   wsSrv,
	}
	n.nextID.Store(idx.NextID())

	rnode.Start()
	return n, nil
}

// Close stops the replica's raft goroutine and releases its storage and
// transport resources.
func (n *Node) Close() error {
	n.raft.Stop()
	if n.wsSrv != nil {
		_ = n.wsSrv.Shutdown(context.Background())
	}
	if n.storage != nil {
		return n.storage.Close()
	}
	return nil
}

// Raft exposes the underlying replica for callers that need direct access
// to State()/IsLeader(), e.g. a CLI's status output.
func (n *Node) Raft() *raft.Node { return n.raft }
