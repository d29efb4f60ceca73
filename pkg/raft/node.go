package raft

import (
	"log"
	"math/rand"
	"time"
)

type voteCall struct {
	args  *RequestVoteArgs
	reply chan *RequestVoteReply
}

type appendCall struct {
	args  *AppendEntriesArgs
	reply chan *AppendEntriesReply
}

type snapshotCall struct {
	args  *InstallSnapshotArgs
	reply chan *InstallSnapshotReply
}

type submitCall struct {
	cmd   Command
	reply chan submitResult
}

type submitResult struct {
	index uint64
	term  uint64
	err   error
}

type voteResult struct {
	peer  string
	term  uint64
	reply *RequestVoteReply
	err   error
}

type appendResult struct {
	peer       string
	term       uint64
	sentIndex  uint64 // prevLogIndex + len(entries) sent in this round
	reply      *AppendEntriesReply
	err        error
}

type snapshotResult struct {
	peer  string
	term  uint64
	upto  uint64
	reply *InstallSnapshotReply
	err   error
}

type membershipCall struct {
	add   bool
	server string
	reply chan error
}

// Node is one Raft replica. Construct with New, then call Start before
// submitting anything; call Stop to shut it down.
type Node struct {
	cfg       Config
	storage   Storage
	transport Transport
	sm        StateMachine

	role        Role
	currentTerm uint64
	votedFor    string
	leaderID    string

	config []string // cluster member ids, including self
	configChangeInFlight bool

	log           []LogEntry // entries after the last snapshot, Index ascending
	snapshotIndex uint64
	snapshotTerm  uint64
	snapshotData  []byte
	snapshotConfig []string

	commitIndex uint64
	lastApplied uint64

	nextIndex  map[string]uint64
	matchIndex map[string]uint64

	pendingSubmits map[uint64]chan submitResult

	voteCh       chan voteCall
	appendCh     chan appendCall
	snapshotCh   chan snapshotCall
	submitCh     chan submitCall
	membershipCh chan membershipCall
	stateCh      chan stateQuery
	voteResultCh chan voteResult
	appendResultCh chan appendResult
	snapshotResultCh chan snapshotResult

	stopCh chan struct{}
	doneCh chan struct{}

	votesReceived map[string]bool

	logger *log.Logger
}

// New constructs a Node. cfg.Peers should not include cfg.ID.
func New(cfg Config, storage Storage, transport Transport, sm StateMachine, logger *log.Logger) (*Node, error) {
	if logger == nil {
		logger = log.Default()
	}
	n := &Node{
		cfg:              cfg,
		storage:          storage,
		transport:        transport,
		sm:               sm,
		role:             Follower,
		config:           append([]string{cfg.ID}, cfg.Peers...),
		nextIndex:        make(map[string]uint64),
		matchIndex:       make(map[string]uint64),
		pendingSubmits:   make(map[uint64]chan submitResult),
		voteCh:           make(chan voteCall),
		appendCh:         make(chan appendCall),
		snapshotCh:       make(chan snapshotCall),
		submitCh:         make(chan submitCall),
		membershipCh:     make(chan membershipCall),
		stateCh:          make(chan stateQuery),
		voteResultCh:     make(chan voteResult, 16),
		appendResultCh:   make(chan appendResult, 16),
		snapshotResultCh: make(chan snapshotResult, 16),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
		logger:           logger,
	}

	state, err := storage.LoadState()
	if err == nil {
		n.currentTerm = state.CurrentTerm
		n.votedFor = state.VotedFor
	}
	if snap, ok, err := storage.LoadSnapshot(); err == nil && ok {
		n.snapshotIndex = snap.LastIncludedIndex
		n.snapshotTerm = snap.LastIncludedTerm
		n.snapshotData = snap.Data
		n.snapshotConfig = append([]string(nil), snap.Config...)
		n.config = append([]string(nil), snap.Config...)
		n.lastApplied = snap.LastIncludedIndex
		n.commitIndex = snap.LastIncludedIndex
		if err := sm.Restore(snap.Data); err != nil {
			n.logger.Printf("raft: restoring state machine snapshot: %v", err)
		}
	}
	if entries, err := storage.Entries(n.snapshotIndex); err == nil {
		n.log = entries
	}

	return n, nil
}

// Start launches the node's single driving goroutine.
func (n *Node) Start() {
	go n.run()
}

// Stop halts the node's goroutine and waits for it to exit.
func (n *Node) Stop() {
	close(n.stopCh)
	<-n.doneCh
}

func (n *Node) run() {
	defer close(n.doneCh)

	electionTimer := time.NewTimer(n.randomElectionTimeout())
	var heartbeatTimer *time.Timer
	defer electionTimer.Stop()

	for {
		var heartbeatC <-chan time.Time
		if heartbeatTimer != nil {
			heartbeatC = heartbeatTimer.C
		}

		select {
		case <-n.stopCh:
			return

		case <-electionTimer.C:
			n.onElectionTimeout()
			electionTimer.Reset(n.randomElectionTimeout())

		case <-heartbeatC:
			if n.role == Leader {
				n.broadcastAppendEntries()
				heartbeatTimer.Reset(n.cfg.HeartbeatTimeout)
			}

		case call := <-n.voteCh:
			call.reply <- n.handleRequestVote(call.args)
			electionTimer.Reset(n.randomElectionTimeout())

		case call := <-n.appendCh:
			reply, granted := n.handleAppendEntries(call.args)
			call.reply <- reply
			if granted {
				electionTimer.Reset(n.randomElectionTimeout())
			}

		case call := <-n.snapshotCh:
			call.reply <- n.handleInstallSnapshot(call.args)
			electionTimer.Reset(n.randomElectionTimeout())

		case call := <-n.submitCh:
			n.handleSubmit(call)

		case call := <-n.membershipCh:
			call.reply <- n.handleMembershipChange(call.add, call.server)

		case q := <-n.stateCh:
			q.reply <- NodeState{
				ID:          n.cfg.ID,
				Role:        n.role,
				CurrentTerm: n.currentTerm,
				LeaderID:    n.leaderID,
				CommitIndex: n.commitIndex,
				LastApplied: n.lastApplied,
				Config:      append([]string(nil), n.config...),
			}

		case vr := <-n.voteResultCh:
			n.handleVoteResult(vr)
			if n.role == Leader && heartbeatTimer == nil {
				heartbeatTimer = time.NewTimer(0)
			}

		case ar := <-n.appendResultCh:
			n.handleAppendResult(ar)

		case sr := <-n.snapshotResultCh:
			n.handleSnapshotResult(sr)
		}

		if n.role != Leader {
			heartbeatTimer = nil
		}
	}
}

func (n *Node) randomElectionTimeout() time.Duration {
	lo := n.cfg.ElectionTimeoutMin
	hi := n.cfg.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// --- persistence helpers ---

func (n *Node) persistState() {
	if err := n.storage.SaveState(PersistentState{CurrentTerm: n.currentTerm, VotedFor: n.votedFor}); err != nil {
		n.logger.Printf("raft: persisting state: %v", err)
	}
}

// --- log helpers ---

func (n *Node) entryAt(index uint64) (LogEntry, bool) {
	if index <= n.snapshotIndex {
		return LogEntry{}, false
	}
	pos := index - n.snapshotIndex - 1
	if pos >= uint64(len(n.log)) {
		return LogEntry{}, false
	}
	return n.log[pos], true
}

func (n *Node) termAt(index uint64) (uint64, bool) {
	if index == n.snapshotIndex {
		return n.snapshotTerm, true
	}
	e, ok := n.entryAt(index)
	if !ok {
		return 0, false
	}
	return e.Term, true
}

func (n *Node) lastLogIndex() uint64 {
	if len(n.log) == 0 {
		return n.snapshotIndex
	}
	return n.log[len(n.log)-1].Index
}

func (n *Node) lastLogTerm() uint64 {
	if len(n.log) == 0 {
		return n.snapshotTerm
	}
	return n.log[len(n.log)-1].Term
}

func (n *Node) isLogUpToDate(lastLogIndex, lastLogTerm uint64) bool {
	myTerm := n.lastLogTerm()
	if lastLogTerm != myTerm {
		return lastLogTerm > myTerm
	}
	return lastLogIndex >= n.lastLogIndex()
}

func (n *Node) appendLocalEntries(entries []LogEntry) {
	if err := n.storage.AppendEntries(entries); err != nil {
		n.logger.Printf("raft: appending entries: %v", err)
	}
	n.log = append(n.log, entries...)
}

func (n *Node) truncateFrom(index uint64) {
	if index <= n.snapshotIndex {
		return
	}
	pos := index - n.snapshotIndex - 1
	if pos >= uint64(len(n.log)) {
		return
	}
	if err := n.storage.TruncateFrom(index); err != nil {
		n.logger.Printf("raft: truncating log: %v", err)
	}
	n.log = n.log[:pos]
}

func majority(size int) int { return size/2 + 1 }

func (n *Node) hasPeer(id string) bool {
	for _, p := range n.config {
		if p == id {
			return true
		}
	}
	return false
}

func (n *Node) peers() []string {
	out := make([]string, 0, len(n.config))
	for _, p := range n.config {
		if p != n.cfg.ID {
			out = append(out, p)
		}
	}
	return out
}
