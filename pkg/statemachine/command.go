// Package statemachine drives a hnsw.Index from a replicated raft log: it is
// the core-out StateMachine implementation every replica's raft.Node applies
// committed commands through, so that every replica ends up with a
// bit-for-bit identical graph.
package statemachine

import "encoding/json"

// OpKind distinguishes the vector-index operations this state machine knows
// how to apply. Raft's own membership commands (AddServer/RemoveServer/
// ChangeConfig) never reach here — raft.Node applies those itself.
type OpKind uint8

const (
	OpInsert OpKind = iota
	OpDelete
	OpUpdate
)

// Op is the payload carried inside a raft.Command's Payload field, JSON
// encoded so it survives a restart/replay without depending on any
// in-process pointer.
//
// Level is only meaningful for OpInsert: the leader draws it once via
// hnsw.DrawLevel before Submit, and every replica's Apply uses this exact
// value via Index.InsertAt instead of redrawing, so the graph topology
// produced by replaying the log is identical across replicas.
type Op struct {
	Kind   OpKind    `json:"kind"`
	ID     uint64    `json:"id"`
	Vector []float32 `json:"vector,omitempty"`
	Level  int       `json:"level,omitempty"`
}

func encodeOp(op Op) ([]byte, error) { return json.Marshal(op) }

func decodeOp(payload []byte) (Op, error) {
	var op Op
	err := json.Unmarshal(payload, &op)
	return op, err
}
