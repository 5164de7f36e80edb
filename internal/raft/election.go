package raft

import (
	"github.com/kartikbazzad/bunraft/internal/logger"
	"github.com/kartikbazzad/bunraft/internal/wire"
)

// RequestVote handles an incoming vote request from a Candidate.
//
// Logic:
//  1. Reject if the candidate's term is older than ours.
//  2. Step down if the candidate's term is newer (adopt term, become Follower).
//  3. Grant the vote iff we haven't voted for anyone else this term AND the
//     candidate's log is at least as up-to-date as ours, comparing
//     (lastLogTerm, lastLogIndex) lexicographically.
//
// A granted vote is durable before the reply returns.
func (n *Node) RequestVote(args wire.RequestVoteRequest) wire.RequestVoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()
	metricRPCReceived.WithLabelValues("request_vote").Inc()

	reply := wire.RequestVoteReply{Term: n.currentTerm}
	if n.stopped || args.Term < n.currentTerm {
		return reply
	}
	if args.Term > n.currentTerm {
		n.adoptTermLocked(args.Term)
	}

	lastTerm, lastIdx := n.log.lastTerm(), n.log.lastIndex()
	upToDate := args.LastLogTerm > lastTerm ||
		(args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIdx)

	if (n.votedFor == 0 || n.votedFor == args.CandidateID) && upToDate {
		n.votedFor = args.CandidateID
		n.persistStateLocked()
		n.resetElectionTimerLocked() // granting a vote defers our own candidacy
		reply.VoteGranted = true
		logger.Debug("vote granted",
			"id", n.cfg.ID, "candidate", args.CandidateID, "term", n.currentTerm)
	}

	reply.Term = n.currentTerm
	return reply
}

// startElectionLocked transitions to Candidate and solicits votes: bump the
// term, vote for ourselves, persist both, restart the timer with a fresh
// randomized value, then fan out RequestVote RPCs.
func (n *Node) startElectionLocked() {
	n.state = Candidate
	n.currentTerm++
	n.votedFor = n.cfg.ID
	n.leaderID = 0
	n.persistStateLocked()
	if n.stopped {
		return
	}
	metricTerm.Set(float64(n.currentTerm))
	metricState.Set(1)
	metricElections.Inc()
	n.resetElectionTimerLocked()
	logger.Info("starting election", "id", n.cfg.ID, "term", n.currentTerm)

	if n.quorum() == 1 {
		// Single-node cluster: the self-vote is a majority.
		n.becomeLeaderLocked()
		return
	}

	args := wire.RequestVoteRequest{
		Term:         n.currentTerm,
		CandidateID:  n.cfg.ID,
		LastLogIndex: n.log.lastIndex(),
		LastLogTerm:  n.log.lastTerm(),
	}
	votes := 1 // self-vote
	for _, p := range n.cfg.Peers {
		go n.solicitVote(p, args, &votes)
	}
}

// solicitVote sends one RequestVote and tallies the response. Responses for a
// superseded term or role are dropped.
func (n *Node) solicitVote(p Peer, args wire.RequestVoteRequest, votes *int) {
	reply, err := n.rpc.SendRequestVote(p.Addr, args)
	if err != nil {
		metricRPCSent.WithLabelValues("request_vote", "error").Inc()
		logger.Debug("vote request failed", "id", n.cfg.ID, "peer", p.ID, "error", err)
		return
	}
	metricRPCSent.WithLabelValues("request_vote", "ok").Inc()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped || n.state != Candidate || n.currentTerm != args.Term {
		return // election obsolete
	}
	if reply.Term > n.currentTerm {
		n.adoptTermLocked(reply.Term)
		return
	}
	if reply.VoteGranted {
		*votes++
		if *votes >= n.quorum() {
			n.becomeLeaderLocked()
		}
	}
}

// becomeLeaderLocked initializes leader bookkeeping and starts the
// replication drivers, which assert authority with an immediate heartbeat.
func (n *Node) becomeLeaderLocked() {
	if n.state == Leader {
		return
	}
	n.state = Leader
	n.leaderID = n.cfg.ID
	n.stopElectionTimerLocked() // a leader does not run the election timer
	metricState.Set(2)
	logger.Info("became leader", "id", n.cfg.ID, "term", n.currentTerm)

	n.repl = newReplicationState(n.currentTerm, n.cfg.Peers, n.log.lastIndex())
	for _, p := range n.cfg.Peers {
		n.wg.Add(1)
		go n.replicate(p, n.repl)
	}
	n.advanceCommitIndexLocked()
}
