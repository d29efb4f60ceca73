package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vraft/vraft/pkg/raft"
)

type stubNode struct {
	voteReply     *raft.RequestVoteReply
	appendReply   *raft.AppendEntriesReply
	snapshotReply *raft.InstallSnapshotReply
	lastVoteArgs  *raft.RequestVoteArgs
}

func (n *stubNode) HandleRequestVote(args *raft.RequestVoteArgs) (*raft.RequestVoteReply, error) {
	n.lastVoteArgs = args
	return n.voteReply, nil
}

func (n *stubNode) HandleAppendEntries(args *raft.AppendEntriesArgs) (*raft.AppendEntriesReply, error) {
	return n.appendReply, nil
}

func (n *stubNode) HandleInstallSnapshot(args *raft.InstallSnapshotArgs) (*raft.InstallSnapshotReply, error) {
	return n.snapshotReply, nil
}

func TestInProcessRoutesToRegisteredPeer(t *testing.T) {
	tr := NewInProcess()
	stub := &stubNode{voteReply: &raft.RequestVoteReply{Term: 3, VoteGranted: true}}
	tr.Register("b", stub)

	reply, err := tr.SendRequestVote("b", &raft.RequestVoteArgs{Term: 3, CandidateID: "a"})
	require.NoError(t, err)
	assert.True(t, reply.VoteGranted)
	assert.Equal(t, "a", stub.lastVoteArgs.CandidateID)
}

func TestInProcessUnknownPeerFails(t *testing.T) {
	tr := NewInProcess()
	_, err := tr.SendRequestVote("ghost", &raft.RequestVoteArgs{})
	assert.Error(t, err)
}

func TestInProcessUnregisterStopsRouting(t *testing.T) {
	tr := NewInProcess()
	stub := &stubNode{appendReply: &raft.AppendEntriesReply{Success: true}}
	tr.Register("b", stub)
	tr.Unregister("b")

	_, err := tr.SendAppendEntries("b", &raft.AppendEntriesArgs{})
	assert.Error(t, err)
}
