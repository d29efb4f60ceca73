package raft

import "fmt"

// NotLeaderError is returned by Submit when called against a non-leader
// replica. LeaderID is the caller's best current guess (may be empty if
// unknown) so the client can redirect instead of retrying blindly.
type NotLeaderError struct {
	LeaderID string
}

func (e *NotLeaderError) Error() string {
	if e.LeaderID == "" {
		return "raft: not leader, leader unknown"
	}
	return fmt.Sprintf("raft: not leader, leader is %s", e.LeaderID)
}

// ErrStopped is returned by Submit and the RPC handlers once the node has
// been stopped.
var ErrStopped = errStopped{}

type errStopped struct{}

func (errStopped) Error() string { return "raft: node stopped" }

// ErrMembershipChangeInProgress is returned by AddServer/RemoveServer when
// another membership change has not yet committed, enforcing the
// single-change-at-a-time safety rule.
var ErrMembershipChangeInProgress = errMembershipChangeInProgress{}

type errMembershipChangeInProgress struct{}

func (errMembershipChangeInProgress) Error() string {
	return "raft: membership change already in progress"
}
