package raft

// maybeSnapshot compacts the log once it grows past the configured
// threshold: it asks the state machine for an opaque blob, records it
// atomically alongside the compaction point and cluster config, then
// discards the covered log entries.
func (n *Node) maybeSnapshot() {
	if n.cfg.SnapshotThreshold <= 0 || len(n.log) <= n.cfg.SnapshotThreshold {
		return
	}
	if n.lastApplied <= n.snapshotIndex {
		return
	}

	data, err := n.sm.Snapshot()
	if err != nil {
		n.logger.Printf("raft: state machine snapshot failed: %v", err)
		return
	}
	term, ok := n.termAt(n.lastApplied)
	if !ok {
		return
	}

	rec := SnapshotRecord{
		LastIncludedIndex: n.lastApplied,
		LastIncludedTerm:  term,
		Config:            append([]string(nil), n.config...),
		Data:              data,
	}
	if err := n.storage.SaveSnapshot(rec); err != nil {
		n.logger.Printf("raft: saving snapshot: %v", err)
		return
	}
	if err := n.storage.DiscardThrough(n.lastApplied); err != nil {
		n.logger.Printf("raft: discarding compacted log: %v", err)
	}

	pos := n.lastApplied - n.snapshotIndex - 1
	if pos+1 <= uint64(len(n.log)) {
		n.log = append([]LogEntry(nil), n.log[pos+1:]...)
	} else {
		n.log = nil
	}
	n.snapshotIndex = rec.LastIncludedIndex
	n.snapshotTerm = rec.LastIncludedTerm
	n.snapshotData = rec.Data
	n.snapshotConfig = rec.Config
}

func (n *Node) sendSnapshotTo(peer string, term uint64) {
	args := &InstallSnapshotArgs{
		Term:              term,
		LeaderID:          n.cfg.ID,
		LastIncludedIndex: n.snapshotIndex,
		LastIncludedTerm:  n.snapshotTerm,
		Config:            append([]string(nil), n.snapshotConfig...),
		Data:              n.snapshotData,
	}
	upto := n.snapshotIndex
	go func() {
		reply, err := n.transport.SendInstallSnapshot(peer, args)
		select {
		case n.snapshotResultCh <- snapshotResult{peer: peer, term: term, upto: upto, reply: reply, err: err}:
		case <-n.stopCh:
		}
	}()
}

func (n *Node) handleInstallSnapshot(args *InstallSnapshotArgs) *InstallSnapshotReply {
	if args.Term > n.currentTerm {
		n.becomeFollower(args.Term)
	}
	if args.Term < n.currentTerm {
		return &InstallSnapshotReply{Term: n.currentTerm, Success: false}
	}
	n.role = Follower
	n.leaderID = args.LeaderID

	if args.LastIncludedIndex <= n.snapshotIndex {
		return &InstallSnapshotReply{Term: n.currentTerm, Success: false}
	}

	if err := n.storage.SaveSnapshot(SnapshotRecord{
		LastIncludedIndex: args.LastIncludedIndex,
		LastIncludedTerm:  args.LastIncludedTerm,
		Config:            args.Config,
		Data:              args.Data,
	}); err != nil {
		n.logger.Printf("raft: saving received snapshot: %v", err)
		return &InstallSnapshotReply{Term: n.currentTerm, Success: false}
	}

	// Keep any locally held entries beyond the snapshot's coverage that
	// agree in term; everything else is superseded.
	var retained []LogEntry
	if t, ok := n.termAt(args.LastIncludedIndex); ok && t == args.LastIncludedTerm {
		for _, e := range n.log {
			if e.Index > args.LastIncludedIndex {
				retained = append(retained, e)
			}
		}
	}
	if err := n.storage.DiscardThrough(args.LastIncludedIndex); err != nil {
		n.logger.Printf("raft: discarding log through snapshot: %v", err)
	}

	n.log = retained
	n.snapshotIndex = args.LastIncludedIndex
	n.snapshotTerm = args.LastIncludedTerm
	n.snapshotData = args.Data
	n.snapshotConfig = args.Config
	n.config = append([]string(nil), args.Config...)

	if args.LastIncludedIndex > n.lastApplied {
		n.lastApplied = args.LastIncludedIndex
	}
	if args.LastIncludedIndex > n.commitIndex {
		n.commitIndex = args.LastIncludedIndex
	}
	if err := n.sm.Restore(args.Data); err != nil {
		n.logger.Printf("raft: restoring from installed snapshot: %v", err)
	}

	return &InstallSnapshotReply{Term: n.currentTerm, Success: true}
}

func (n *Node) handleSnapshotResult(sr snapshotResult) {
	if sr.err != nil || sr.reply == nil {
		return
	}
	if sr.reply.Term > n.currentTerm {
		n.becomeFollower(sr.reply.Term)
		return
	}
	if n.role != Leader || sr.term != n.currentTerm {
		return
	}
	if sr.reply.Success {
		n.matchIndex[sr.peer] = sr.upto
		n.nextIndex[sr.peer] = sr.upto + 1
		n.tryAdvanceCommitIndex()
	}
}
