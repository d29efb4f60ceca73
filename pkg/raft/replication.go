package raft

func (n *Node) broadcastAppendEntries() {
	term := n.currentTerm
	for _, peer := range n.peers() {
		n.sendAppendEntriesTo(peer, term)
	}
	if len(n.peers()) == 0 {
		// Single-node cluster: nothing to replicate to, but commit
		// advancement still runs off matchIndex (self only).
		n.tryAdvanceCommitIndex()
	}
}

func (n *Node) sendAppendEntriesTo(peer string, term uint64) {
	next := n.nextIndex[peer]
	if next <= n.snapshotIndex {
		n.sendSnapshotTo(peer, term)
		return
	}

	prevIndex := next - 1
	prevTerm, ok := n.termAt(prevIndex)
	if !ok {
		n.sendSnapshotTo(peer, term)
		return
	}

	var entries []LogEntry
	for _, e := range n.log {
		if e.Index >= next {
			entries = append(entries, e)
			if n.cfg.BatchSize > 0 && len(entries) >= n.cfg.BatchSize {
				break
			}
		}
	}

	args := &AppendEntriesArgs{
		Term:         term,
		LeaderID:     n.cfg.ID,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: n.commitIndex,
	}
	sentIndex := prevIndex + uint64(len(entries))

	go func() {
		reply, err := n.transport.SendAppendEntries(peer, args)
		select {
		case n.appendResultCh <- appendResult{peer: peer, term: term, sentIndex: sentIndex, reply: reply, err: err}:
		case <-n.stopCh:
		}
	}()
}

// handleAppendEntries implements the follower side of the RPC. The second
// return value reports whether this call came from a term-valid leader (so
// the caller should reset the election timer), independent of whether the
// log-matching check inside ultimately succeeded.
func (n *Node) handleAppendEntries(args *AppendEntriesArgs) (*AppendEntriesReply, bool) {
	if args.Term > n.currentTerm {
		n.becomeFollower(args.Term)
	}
	if args.Term < n.currentTerm {
		return &AppendEntriesReply{Term: n.currentTerm, Success: false}, false
	}

	n.role = Follower
	n.leaderID = args.LeaderID

	if args.PrevLogIndex > 0 {
		if args.PrevLogIndex > n.lastLogIndex() {
			return &AppendEntriesReply{Term: n.currentTerm, Success: false}, true
		}
		localTerm, ok := n.termAt(args.PrevLogIndex)
		if !ok || localTerm != args.PrevLogTerm {
			return &AppendEntriesReply{Term: n.currentTerm, Success: false}, true
		}
	}

	for _, e := range args.Entries {
		existingTerm, ok := n.termAt(e.Index)
		if ok && existingTerm != e.Term {
			n.truncateFrom(e.Index)
			ok = false
		}
		if !ok {
			n.appendLocalEntries([]LogEntry{e})
		}
	}

	lastNew := args.PrevLogIndex + uint64(len(args.Entries))
	if args.LeaderCommit > n.commitIndex {
		if args.LeaderCommit < lastNew {
			n.commitIndex = args.LeaderCommit
		} else {
			n.commitIndex = lastNew
		}
		n.applyPending()
	}

	return &AppendEntriesReply{Term: n.currentTerm, Success: true, MatchIndex: lastNew}, true
}

func (n *Node) handleAppendResult(ar appendResult) {
	if ar.err != nil || ar.reply == nil {
		return
	}
	if ar.reply.Term > n.currentTerm {
		n.becomeFollower(ar.reply.Term)
		return
	}
	if n.role != Leader || ar.term != n.currentTerm {
		return
	}

	if ar.reply.Success {
		if ar.sentIndex > n.matchIndex[ar.peer] {
			n.matchIndex[ar.peer] = ar.sentIndex
		}
		n.nextIndex[ar.peer] = ar.sentIndex + 1
		n.tryAdvanceCommitIndex()
		return
	}

	if n.nextIndex[ar.peer] > 1 {
		n.nextIndex[ar.peer]--
	}
	n.sendAppendEntriesTo(ar.peer, n.currentTerm)
}

// tryAdvanceCommitIndex applies the Raft commit rule: N is the median of
// matchIndex across the full cluster (self included; the lower median for
// an even-sized cluster, so a strict majority holds N); commitIndex advances
// to N only if log[N].term == currentTerm, which is what prevents a leader
// from committing a predecessor's entry by replica count alone.
func (n *Node) tryAdvanceCommitIndex() {
	n.matchIndex[n.cfg.ID] = n.lastLogIndex()

	values := make([]uint64, 0, len(n.config))
	for _, p := range n.config {
		values = append(values, n.matchIndex[p])
	}
	sortDesc(values)

	N := values[majority(len(values))-1]
	if N <= n.commitIndex {
		return
	}
	term, ok := n.termAt(N)
	if !ok || term != n.currentTerm {
		return
	}
	n.commitIndex = N
	n.applyPending()
}

func sortDesc(v []uint64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] < v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}
