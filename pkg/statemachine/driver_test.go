package statemachine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vraft/vraft/pkg/hnsw"
)

func randVec(dim int, rng *rand.Rand) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func newTestDriver(t *testing.T) (*Driver, hnsw.Config) {
	t.Helper()
	cfg := hnsw.DefaultConfig(16)
	idx, err := hnsw.New(cfg)
	require.NoError(t, err)
	return New(idx, nil), cfg
}

func TestApplyInsertAddsNode(t *testing.T) {
	d, cfg := newTestDriver(t)
	rng := rand.New(rand.NewSource(1))
	vec := randVec(cfg.Dimension, rng)

	payload, err := BuildInsertOp(cfg, 1, vec)
	require.NoError(t, err)
	require.NoError(t, d.Apply(payload))

	assert.Equal(t, 1, d.Index().Stats().NodeCount)
}

func TestApplyDeleteRemovesNode(t *testing.T) {
	d, cfg := newTestDriver(t)
	rng := rand.New(rand.NewSource(2))
	vec := randVec(cfg.Dimension, rng)

	payload, err := BuildInsertOp(cfg, 1, vec)
	require.NoError(t, err)
	require.NoError(t, d.Apply(payload))

	del, err := BuildDeleteOp(1)
	require.NoError(t, err)
	require.NoError(t, d.Apply(del))

	assert.Equal(t, 0, d.Index().Stats().NodeCount)
}

func TestApplyUnknownIDDeleteIsSwallowed(t *testing.T) {
	d, _ := newTestDriver(t)
	del, err := BuildDeleteOp(999)
	require.NoError(t, err)
	// Apply must be total: an index-level failure never propagates.
	assert.NoError(t, d.Apply(del))
}

func TestSnapshotRoundTripsGraph(t *testing.T) {
	d, cfg := newTestDriver(t)
	rng := rand.New(rand.NewSource(3))

	for i := uint64(1); i <= 20; i++ {
		payload, err := BuildInsertOp(cfg, i, randVec(cfg.Dimension, rng))
		require.NoError(t, err)
		require.NoError(t, d.Apply(payload))
	}

	data, err := d.Snapshot()
	require.NoError(t, err)

	idx2, err := hnsw.New(cfg)
	require.NoError(t, err)
	d2 := New(idx2, nil)
	require.NoError(t, d2.Restore(data))

	assert.Equal(t, d.Index().Stats().NodeCount, d2.Index().Stats().NodeCount)
	assert.Equal(t, d.Index().Stats().MaxLevel, d2.Index().Stats().MaxLevel)
}

func TestTwoDriversApplyingSameOpsConverge(t *testing.T) {
	d1, cfg := newTestDriver(t)
	idx2, err := hnsw.New(cfg)
	require.NoError(t, err)
	d2 := New(idx2, nil)

	rng := rand.New(rand.NewSource(4))
	for i := uint64(1); i <= 10; i++ {
		payload, err := BuildInsertOp(cfg, i, randVec(cfg.Dimension, rng))
		require.NoError(t, err)
		// Same payload (level already stamped) applied to both replicas.
		require.NoError(t, d1.Apply(payload))
		require.NoError(t, d2.Apply(payload))
	}

	s1 := d1.Index().Export()
	s2 := d2.Index().Export()
	assert.Equal(t, s1.EntryPoint, s2.EntryPoint)
	assert.Equal(t, s1.MaxLevel, s2.MaxLevel)
	assert.Equal(t, len(s1.Nodes), len(s2.Nodes))
}
