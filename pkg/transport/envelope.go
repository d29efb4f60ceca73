package transport

import "github.com/vraft/vraft/pkg/raft"

// envelope is the wire format for every RPC exchanged over WebSocket: a type
// tag, the sender/recipient ids, and exactly one populated args/reply field
// for that type. ID correlates a reply with its request over the
// connection's shared read loop.
type envelope struct {
	ID   uint64 `json:"id"`
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`

	RequestVoteArgs     *raft.RequestVoteArgs     `json:"request_vote_args,omitempty"`
	AppendEntriesArgs   *raft.AppendEntriesArgs   `json:"append_entries_args,omitempty"`
	InstallSnapshotArgs *raft.InstallSnapshotArgs `json:"install_snapshot_args,omitempty"`

	RequestVoteReply     *raft.RequestVoteReply     `json:"request_vote_reply,omitempty"`
	AppendEntriesReply   *raft.AppendEntriesReply   `json:"append_entries_reply,omitempty"`
	InstallSnapshotReply *raft.InstallSnapshotReply `json:"install_snapshot_reply,omitempty"`

	Error string `json:"error,omitempty"`
}

const (
	typeRequestVote     = "request_vote"
	typeAppendEntries   = "append_entries"
	typeInstallSnapshot = "install_snapshot"
)
