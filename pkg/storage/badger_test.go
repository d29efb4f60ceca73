package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vraft/vraft/pkg/raft"
)

func newTestStorage(t *testing.T) *BadgerStorage {
	t.Helper()
	s, err := NewBadgerStorage(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadState(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.LoadState()
	require.NoError(t, err)

	want := raft.PersistentState{CurrentTerm: 7, VotedFor: "node-b"}
	require.NoError(t, s.SaveState(want))

	got, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAppendAndReadEntries(t *testing.T) {
	s := newTestStorage(t)

	entries := []raft.LogEntry{
		{Term: 1, Index: 1, Command: raft.Command{Kind: raft.CommandApplication, Payload: []byte("a")}},
		{Term: 1, Index: 2, Command: raft.Command{Kind: raft.CommandApplication, Payload: []byte("b")}},
		{Term: 2, Index: 3, Command: raft.Command{Kind: raft.CommandApplication, Payload: []byte("c")}},
	}
	require.NoError(t, s.AppendEntries(entries))

	got, err := s.Entries(0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, entries, got)

	got, err = s.Entries(1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Index)
}

func TestTruncateFromDropsTail(t *testing.T) {
	s := newTestStorage(t)
	entries := []raft.LogEntry{
		{Term: 1, Index: 1},
		{Term: 1, Index: 2},
		{Term: 1, Index: 3},
	}
	require.NoError(t, s.AppendEntries(entries))
	require.NoError(t, s.TruncateFrom(2))

	got, err := s.Entries(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Index)
}

func TestDiscardThroughDropsHead(t *testing.T) {
	s := newTestStorage(t)
	entries := []raft.LogEntry{
		{Term: 1, Index: 1},
		{Term: 1, Index: 2},
		{Term: 1, Index: 3},
	}
	require.NoError(t, s.AppendEntries(entries))
	require.NoError(t, s.DiscardThrough(2))

	got, err := s.Entries(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Index)
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	s := newTestStorage(t)

	_, ok, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.False(t, ok)

	want := raft.SnapshotRecord{
		LastIncludedIndex: 10,
		LastIncludedTerm:  2,
		Config:            []string{"a", "b"},
		Data:              []byte("snapshot-bytes"),
	}
	require.NoError(t, s.SaveSnapshot(want))

	got, ok, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestOperationsFailAfterClose(t *testing.T) {
	s, err := NewBadgerStorage(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	_, err = s.LoadState()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDecodeChecksumedDetectsCorruption(t *testing.T) {
	enc, err := encodeChecksumed(raft.PersistentState{CurrentTerm: 1})
	require.NoError(t, err)
	enc[len(enc)-2] ^= 0xFF // flip a byte inside the checksum field

	var out raft.PersistentState
	err = decodeChecksumed(enc, &out)
	require.Error(t, err)
}
