package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vraft/vraft/pkg/raft"
)

func TestWebSocketRoundTripsRequestVote(t *testing.T) {
	stub := &stubNode{voteReply: &raft.RequestVoteReply{Term: 5, VoteGranted: true}}
	s := NewWebSocketServer("", stub, nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/raft"
	client := NewWebSocket("client", map[string]string{"server": wsURL})
	client.timeout = 2 * time.Second

	reply, err := client.SendRequestVote("server", &raft.RequestVoteArgs{Term: 5, CandidateID: "client"})
	require.NoError(t, err)
	assert.True(t, reply.VoteGranted)
	assert.Equal(t, uint64(5), reply.Term)
}

func TestWebSocketRoundTripsAppendEntries(t *testing.T) {
	stub := &stubNode{appendReply: &raft.AppendEntriesReply{Success: true}}
	s := NewWebSocketServer("", stub, nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/raft"
	client := NewWebSocket("client", map[string]string{"server": wsURL})
	client.timeout = 2 * time.Second

	reply, err := client.SendAppendEntries("server", &raft.AppendEntriesArgs{Term: 1, LeaderID: "client"})
	require.NoError(t, err)
	assert.True(t, reply.Success)
}
