// Package raft implements a single-threaded-cooperative Raft consensus
// replica: leader election, log replication, commit advancement, snapshot
// compaction, and single-server-at-a-time membership change.
//
// A Node owns exactly one goroutine (started by Start) that multiplexes
// timers, inbound RPCs, and client submissions through one select loop. All
// mutation of a Node's term, log, and role happens on that goroutine; the
// exported Handle*/Submit methods only hand work to it across a channel and
// wait for the answer. There is no fine-grained locking because there is
// only one writer.
package raft

import "time"

// Role is a replica's current position in the Raft state machine.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// CommandKind distinguishes Raft's own membership commands, which the Node
// applies to its cluster config directly, from application commands, which
// are opaque bytes handed to the StateMachine.
type CommandKind uint8

const (
	CommandApplication CommandKind = iota
	CommandAddServer
	CommandRemoveServer
	CommandChangeConfig
)

// Command is one committed log entry's payload. For CommandApplication,
// Payload is opaque to Raft and is handed verbatim to the StateMachine's
// Apply. For the membership kinds, ServerID/Servers are interpreted by the
// Node itself.
type Command struct {
	Kind     CommandKind
	ServerID string
	Servers  []string
	Payload  []byte
}

// LogEntry is immutable once appended.
type LogEntry struct {
	Term    uint64
	Index   uint64
	Command Command
}

// SnapshotRecord is the durable unit written when the log is compacted.
type SnapshotRecord struct {
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Config            []string
	Data              []byte
}

// PersistentState is the subset of replica state that must survive a
// restart before a response depending on it may be sent.
type PersistentState struct {
	CurrentTerm uint64
	VotedFor    string // "" means none
}

// StateMachine is the core-out contract: the thing a Node's apply loop
// drives. Apply must be total — it must not propagate application-level
// failures back into Raft, since every replica must apply the identical
// command sequence regardless of whether the application considers a given
// command meaningful.
type StateMachine interface {
	Apply(payload []byte) error
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Storage is the core-in persistence contract. Implementations must make
// Save* calls durable before returning.
type Storage interface {
	SaveState(state PersistentState) error
	LoadState() (PersistentState, error)

	AppendEntries(entries []LogEntry) error
	// TruncateFrom durably discards every entry with Index >= index.
	TruncateFrom(index uint64) error
	// Entries returns all durably stored entries with Index > afterIndex.
	Entries(afterIndex uint64) ([]LogEntry, error)

	SaveSnapshot(snap SnapshotRecord) error
	LoadSnapshot() (SnapshotRecord, bool, error)
	// DiscardThrough removes log entries with Index <= index from durable
	// storage, called right after a snapshot covering them is saved.
	DiscardThrough(index uint64) error
}

// RequestVoteArgs is the VoteRequest RPC.
type RequestVoteArgs struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteReply is the VoteRequest RPC's response.
type RequestVoteReply struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntriesArgs is the AppendEntries RPC, also used as a heartbeat when
// Entries is empty.
type AppendEntriesArgs struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

// AppendEntriesReply is the AppendEntries RPC's response.
type AppendEntriesReply struct {
	Term        uint64
	Success     bool
	MatchIndex  uint64
}

// InstallSnapshotArgs is the InstallSnapshot RPC, sent to a follower whose
// log has fallen behind the leader's retained tail.
type InstallSnapshotArgs struct {
	Term              uint64
	LeaderID          string
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Config            []string
	Data              []byte
}

// InstallSnapshotReply is the InstallSnapshot RPC's response.
type InstallSnapshotReply struct {
	Term    uint64
	Success bool
}

// Transport is the core-in contract a Node uses to reach its peers. Peers
// are addressed by server id; resolving that id to a network location is
// the transport implementation's concern, not Raft's.
type Transport interface {
	SendRequestVote(peer string, args *RequestVoteArgs) (*RequestVoteReply, error)
	SendAppendEntries(peer string, args *AppendEntriesArgs) (*AppendEntriesReply, error)
	SendInstallSnapshot(peer string, args *InstallSnapshotArgs) (*InstallSnapshotReply, error)
}

// Config holds a Node's timing parameters and initial cluster membership.
type Config struct {
	ID    string
	Peers []string // other server ids, NOT including ID

	HeartbeatTimeout    time.Duration
	ElectionTimeoutMin  time.Duration
	ElectionTimeoutMax  time.Duration
	BatchSize           int
	SnapshotThreshold   int
}

// DefaultConfig returns timing parameters in the range typically used for
// Raft over a local or low-latency network.
func DefaultConfig(id string, peers []string) Config {
	return Config{
		ID:                 id,
		Peers:              peers,
		HeartbeatTimeout:   50 * time.Millisecond,
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		BatchSize:          64,
		SnapshotThreshold:  10000,
	}
}
