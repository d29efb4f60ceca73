// Package storage provides durable persistence for a replicated log.
//
// BadgerStorage implements raft.Storage using BadgerDB: the current term and
// vote, the log tail since the last snapshot, and the snapshot itself are
// all persisted with CRC32-checksummed records, following the teacher's
// BadgerEngine/WAL pattern (single-byte key prefixes, checksum-guarded
// records) adapted from a property graph's node/edge/index keyspace to a
// replicated log's term/entry/snapshot keyspace.
package storage

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/vraft/vraft/pkg/raft"
)

// BadgerOptions configures the BadgerDB-backed store.
type BadgerOptions struct {
	// DataDir is the directory BadgerDB stores its files under. Required
	// unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode, useful for tests that
	// still want to exercise the real codec and key scheme without
	// touching disk.
	InMemory bool

	// SyncWrites forces fsync on every write. Slower, more durable;
	// matches the teacher's BadgerOptions.SyncWrites knob.
	SyncWrites bool

	// Logger routes BadgerDB's internal logging. Nil disables it.
	Logger badger.Logger
}

// BadgerStorage is a disk-backed raft.Storage implementation.
type BadgerStorage struct {
	db     *badger.DB
	mu     sync.Mutex
	closed bool
}

// NewBadgerStorage opens (creating if necessary) a BadgerDB-backed store at
// opts.DataDir, or an in-memory instance if opts.InMemory is set.
func NewBadgerStorage(opts BadgerOptions) (*BadgerStorage, error) {
	bopts := badger.DefaultOptions(opts.DataDir)
	bopts.InMemory = opts.InMemory
	bopts.SyncWrites = opts.SyncWrites
	if opts.Logger != nil {
		bopts.Logger = opts.Logger
	} else {
		bopts.Logger = nil
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("storage: opening badger at %q: %w", opts.DataDir, err)
	}
	return &BadgerStorage{db: db}, nil
}

// Close releases the underlying BadgerDB handle. Safe to call more than
// once.
func (s *BadgerStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BadgerStorage) guard() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *BadgerStorage) SaveState(state raft.PersistentState) error {
	if err := s.guard(); err != nil {
		return err
	}
	enc, err := encodeChecksumed(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(), enc)
	})
}

func (s *BadgerStorage) LoadState() (raft.PersistentState, error) {
	var state raft.PersistentState
	if err := s.guard(); err != nil {
		return state, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey())
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decodeChecksumed(val, &state)
		})
	})
	return state, err
}

func (s *BadgerStorage) AppendEntries(entries []raft.LogEntry) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			enc, err := encodeChecksumed(e)
			if err != nil {
				return err
			}
			if err := txn.Set(logEntryKey(e.Index), enc); err != nil {
				return err
			}
		}
		return nil
	})
}

// TruncateFrom discards every log entry with Index >= index, used when a
// follower's log diverges from the leader's and the conflicting suffix must
// be dropped before the leader's entries are appended in its place.
func (s *BadgerStorage) TruncateFrom(index uint64) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var toDelete [][]byte
		for it.Seek(logEntryKey(index)); it.ValidForPrefix(logEntryPrefix()); it.Next() {
			key := it.Item().KeyCopy(nil)
			toDelete = append(toDelete, key)
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// DiscardThrough discards every log entry with Index <= index, used after a
// snapshot has been taken to compact the log's head.
func (s *BadgerStorage) DiscardThrough(index uint64) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var toDelete [][]byte
		for it.Seek(logEntryPrefix()); it.ValidForPrefix(logEntryPrefix()); it.Next() {
			key := it.Item().KeyCopy(nil)
			if indexFromLogKey(key) > index {
				break
			}
			toDelete = append(toDelete, key)
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStorage) Entries(afterIndex uint64) ([]raft.LogEntry, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	var out []raft.LogEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(logEntryKey(afterIndex + 1)); it.ValidForPrefix(logEntryPrefix()); it.Next() {
			var entry raft.LogEntry
			if err := it.Item().Value(func(val []byte) error {
				return decodeChecksumed(val, &entry)
			}); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStorage) SaveSnapshot(snap raft.SnapshotRecord) error {
	if err := s.guard(); err != nil {
		return err
	}
	enc, err := encodeChecksumed(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(), enc)
	})
}

func (s *BadgerStorage) LoadSnapshot() (raft.SnapshotRecord, bool, error) {
	var snap raft.SnapshotRecord
	if err := s.guard(); err != nil {
		return snap, false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey())
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return decodeChecksumed(val, &snap)
		})
	})
	return snap, found, err
}

var _ raft.Storage = (*BadgerStorage)(nil)
