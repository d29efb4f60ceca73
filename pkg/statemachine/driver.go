package statemachine

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/vraft/vraft/pkg/hnsw"
	"github.com/vraft/vraft/pkg/raft"
)

// Driver is the raft.StateMachine a Node applies its committed log through.
// It owns the hnsw.Index and translates each committed Op into the matching
// Index call.
type Driver struct {
	index  *hnsw.Index
	logger *log.Logger
}

// New wraps index as a state machine driver. index should not be mutated by
// any other caller; all writes must flow through the owning raft.Node's
// apply loop, and reads (Search) may run concurrently against the index's
// own internal lock.
func New(index *hnsw.Index, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{index: index, logger: logger}
}

// Index returns the underlying index for read-only access (Search, Stats).
func (d *Driver) Index() *hnsw.Index { return d.index }

// BuildInsertOp draws a level for vec via hnsw.DrawLevel and packages it
// with id into an Op ready to submit through raft. Called only on the
// leader, before Submit, so the drawn level is what every replica's Apply
// eventually uses.
func BuildInsertOp(cfg hnsw.Config, id uint64, vec []float32) ([]byte, error) {
	op := Op{Kind: OpInsert, ID: id, Vector: vec, Level: hnsw.DrawLevel(cfg.ML)}
	return encodeOp(op)
}

// BuildDeleteOp packages a delete-by-id Op.
func BuildDeleteOp(id uint64) ([]byte, error) {
	return encodeOp(Op{Kind: OpDelete, ID: id})
}

// BuildUpdateOp packages a replace-vector Op. Update reuses the node's
// existing level (see hnsw.Index.Update), so no level needs to be drawn
// here.
func BuildUpdateOp(id uint64, vec []float32) ([]byte, error) {
	return encodeOp(Op{Kind: OpUpdate, ID: id, Vector: vec})
}

// Apply dispatches a committed Op to the index. Per raft.StateMachine's
// contract Apply must be total: an index-level failure (duplicate id,
// dimension mismatch) is logged and swallowed rather than returned, since
// every replica must apply the identical sequence of commands regardless of
// whether a given one turned out to be a no-op.
func (d *Driver) Apply(payload []byte) error {
	op, err := decodeOp(payload)
	if err != nil {
		return fmt.Errorf("statemachine: decoding op: %w", err)
	}

	switch op.Kind {
	case OpInsert:
		if _, err := d.index.InsertAt(op.Vector, op.ID, op.Level); err != nil {
			d.logger.Printf("statemachine: insert id=%d failed: %v", op.ID, err)
		}
	case OpDelete:
		if err := d.index.Delete(op.ID); err != nil {
			d.logger.Printf("statemachine: delete id=%d failed: %v", op.ID, err)
		}
	case OpUpdate:
		if err := d.index.Update(op.ID, op.Vector); err != nil {
			d.logger.Printf("statemachine: update id=%d failed: %v", op.ID, err)
		}
	default:
		d.logger.Printf("statemachine: unknown op kind %d ignored", op.Kind)
	}
	return nil
}

// Snapshot serializes the whole graph as JSON, matching the teacher's
// convention of JSON-encoding durable records rather than a binary format.
func (d *Driver) Snapshot() ([]byte, error) {
	return json.Marshal(d.index.Export())
}

// Restore replaces the graph wholesale from a prior Snapshot's output.
func (d *Driver) Restore(data []byte) error {
	var snap hnsw.GraphSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("statemachine: decoding snapshot: %w", err)
	}
	d.index.ImportSnapshot(snap)
	return nil
}

var _ raft.StateMachine = (*Driver)(nil)
