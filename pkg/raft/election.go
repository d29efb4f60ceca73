package raft

func (n *Node) becomeFollower(term uint64) {
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = ""
		n.persistState()
	}
	n.role = Follower
	n.votesReceived = nil
}

func (n *Node) becomeCandidate() {
	n.role = Candidate
	n.currentTerm++
	n.votedFor = n.cfg.ID
	n.leaderID = ""
	n.persistState()

	n.votesReceived = map[string]bool{n.cfg.ID: true}

	term := n.currentTerm
	args := &RequestVoteArgs{
		Term:         term,
		CandidateID:  n.cfg.ID,
		LastLogIndex: n.lastLogIndex(),
		LastLogTerm:  n.lastLogTerm(),
	}
	for _, peer := range n.peers() {
		peer := peer
		go func() {
			reply, err := n.transport.SendRequestVote(peer, args)
			select {
			case n.voteResultCh <- voteResult{peer: peer, term: term, reply: reply, err: err}:
			case <-n.stopCh:
			}
		}()
	}

	// Single-node (or already-majority) cluster: don't wait on RPCs that
	// will never be sent.
	n.maybeBecomeLeader()
}

func (n *Node) becomeLeader() {
	n.role = Leader
	n.leaderID = n.cfg.ID
	n.votesReceived = nil

	last := n.lastLogIndex()
	n.nextIndex = make(map[string]uint64)
	n.matchIndex = make(map[string]uint64)
	for _, p := range n.config {
		n.nextIndex[p] = last + 1
		n.matchIndex[p] = 0
	}
	n.matchIndex[n.cfg.ID] = last

	n.broadcastAppendEntries()
}

func (n *Node) maybeBecomeLeader() {
	if n.role != Candidate {
		return
	}
	if len(n.votesReceived) >= majority(len(n.config)) {
		n.becomeLeader()
	}
}

func (n *Node) onElectionTimeout() {
	switch n.role {
	case Leader:
		return
	default:
		n.becomeCandidate()
	}
}

func (n *Node) handleRequestVote(args *RequestVoteArgs) *RequestVoteReply {
	if args.Term > n.currentTerm {
		n.becomeFollower(args.Term)
	}
	reply := &RequestVoteReply{Term: n.currentTerm}

	if args.Term < n.currentTerm {
		reply.VoteGranted = false
		return reply
	}

	canVote := n.votedFor == "" || n.votedFor == args.CandidateID
	if canVote && n.isLogUpToDate(args.LastLogIndex, args.LastLogTerm) {
		n.votedFor = args.CandidateID
		n.persistState()
		reply.VoteGranted = true
	}
	return reply
}

func (n *Node) handleVoteResult(vr voteResult) {
	if vr.err != nil || vr.reply == nil {
		return
	}
	if vr.reply.Term > n.currentTerm {
		n.becomeFollower(vr.reply.Term)
		return
	}
	if n.role != Candidate || vr.term != n.currentTerm {
		return
	}
	if vr.reply.VoteGranted {
		n.votesReceived[vr.peer] = true
		n.maybeBecomeLeader()
	}
}
