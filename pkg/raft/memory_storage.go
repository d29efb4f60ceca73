package raft

import "sync"

// MemoryStorage is a non-durable Storage implementation for tests and
// ephemeral single-process demos. It mirrors the teacher's in-memory engine
// pattern: same contract as the persistent implementation, no disk I/O.
type MemoryStorage struct {
	mu       sync.Mutex
	state    PersistentState
	log      []LogEntry
	snapshot SnapshotRecord
	hasSnap  bool
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) SaveState(state PersistentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

func (s *MemoryStorage) LoadState() (PersistentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *MemoryStorage) AppendEntries(entries []LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entries...)
	return nil
}

func (s *MemoryStorage) TruncateFrom(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.log[:0:0]
	for _, e := range s.log {
		if e.Index < index {
			out = append(out, e)
		}
	}
	s.log = out
	return nil
}

func (s *MemoryStorage) Entries(afterIndex uint64) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, 0, len(s.log))
	for _, e := range s.log {
		if e.Index > afterIndex {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStorage) SaveSnapshot(snap SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	s.hasSnap = true
	return nil
}

func (s *MemoryStorage) LoadSnapshot() (SnapshotRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.hasSnap, nil
}

func (s *MemoryStorage) DiscardThrough(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.log[:0:0]
	for _, e := range s.log {
		if e.Index > index {
			out = append(out, e)
		}
	}
	s.log = out
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
