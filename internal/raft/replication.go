package raft

import (
	"sort"
	"time"

	"github.com/kartikbazzad/bunraft/internal/logger"
	"github.com/kartikbazzad/bunraft/internal/wire"
)

// replicationState is the leader-only bookkeeping, recreated on every leader
// transition so stale drivers from a previous term can never touch it.
type replicationState struct {
	term       uint64
	nextIndex  map[uint64]uint64
	matchIndex map[uint64]uint64
	wake       map[uint64]chan struct{}
	stopCh     chan struct{}
}

func newReplicationState(term uint64, peers []Peer, lastLogIndex uint64) *replicationState {
	rs := &replicationState{
		term:       term,
		nextIndex:  make(map[uint64]uint64, len(peers)),
		matchIndex: make(map[uint64]uint64, len(peers)),
		wake:       make(map[uint64]chan struct{}, len(peers)),
		stopCh:     make(chan struct{}),
	}
	for _, p := range peers {
		rs.nextIndex[p.ID] = lastLogIndex + 1
		rs.matchIndex[p.ID] = 0
		rs.wake[p.ID] = make(chan struct{}, 1)
	}
	return rs
}

// AppendEntries handles log replication requests from the Leader.
//
// Logic:
//  1. Reject if the leader's term is older than ours; the timer is untouched.
//  2. Adopt a newer term; a Candidate yields to a valid leader of its own
//     term. Either way the election timer restarts.
//  3. Consistency check: the local log must hold prevLogIndex with
//     prevLogTerm (the sentinel matches (0,0)).
//  4. Walk the entries against the local log; the first term conflict
//     triggers a single truncation, then the remainder is appended. Entries
//     already present with matching terms are left alone, so re-delivery and
//     heartbeats are idempotent.
//  5. Advance commitIndex to min(leaderCommit, last matched entry).
//
// Log mutations are durable before success is returned.
func (n *Node) AppendEntries(args wire.AppendEntriesRequest) wire.AppendEntriesReply {
	n.mu.Lock()
	defer n.mu.Unlock()
	metricRPCReceived.WithLabelValues("append_entries").Inc()

	reply := wire.AppendEntriesReply{Term: n.currentTerm}
	if n.stopped || args.Term < n.currentTerm {
		return reply
	}

	if args.Term > n.currentTerm {
		n.adoptTermLocked(args.Term)
	} else if n.state != Follower {
		// Same term: a Candidate (or a leader that somehow sees its own
		// term, which a correct cluster never produces) yields.
		n.becomeFollowerLocked()
	} else {
		n.resetElectionTimerLocked()
	}
	n.leaderID = args.LeaderID
	reply.Term = n.currentTerm

	// Consistency check against (prevLogIndex, prevLogTerm).
	if t, ok := n.log.term(args.PrevLogIndex); !ok || t != args.PrevLogTerm {
		logger.Debug("append rejected: log mismatch",
			"id", n.cfg.ID, "prev_idx", args.PrevLogIndex, "prev_term", args.PrevLogTerm)
		return reply
	}

	// Conflict resolution: skip matching entries, truncate once at the first
	// divergence, append the rest.
	for i, e := range args.Entries {
		idx := args.PrevLogIndex + 1 + uint64(i)
		if t, ok := n.log.term(idx); ok {
			if t == e.Term {
				continue
			}
			if err := n.storage.TruncateSuffix(idx); err != nil {
				n.fatalLocked(err)
				return reply
			}
			n.log.truncateFrom(idx)
		}
		rest := args.Entries[i:]
		if err := n.storage.Append(rest); err != nil {
			n.fatalLocked(err)
			return reply
		}
		n.log.append(rest...)
		break
	}

	if args.LeaderCommit > n.commitIndex {
		lastMatched := args.PrevLogIndex + uint64(len(args.Entries))
		next := min(args.LeaderCommit, lastMatched)
		if next > n.commitIndex {
			n.commitIndex = next
			metricCommitIndex.Set(float64(next))
			n.applyCond.Broadcast()
		}
	}

	reply.Success = true
	return reply
}

// replicate drives one peer while this node is leader: an AppendEntries at
// least every heartbeat interval, sooner when woken by new local entries.
func (n *Node) replicate(p Peer, rs *replicationState) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		n.sendAppend(p, rs)
		select {
		case <-rs.stopCh:
			return
		case <-n.stopCh:
			return
		case <-rs.wake[p.ID]:
		case <-ticker.C:
		}
	}
}

// sendAppend performs one AppendEntries exchange with a peer. Responses that
// arrive after a step-down or term change are dropped.
func (n *Node) sendAppend(p Peer, rs *replicationState) {
	n.mu.Lock()
	if n.stopped || n.state != Leader || n.repl != rs {
		n.mu.Unlock()
		return
	}
	next := rs.nextIndex[p.ID]
	prevIdx := next - 1
	prevTerm, _ := n.log.term(prevIdx)
	entries := n.log.slice(next, next+uint64(n.cfg.MaxEntriesPerAppend))
	args := wire.AppendEntriesRequest{
		Term:         rs.term,
		LeaderID:     n.cfg.ID,
		PrevLogIndex: prevIdx,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: n.commitIndex,
	}
	n.mu.Unlock()

	reply, err := n.rpc.SendAppendEntries(p.Addr, args)
	if err != nil {
		metricRPCSent.WithLabelValues("append_entries", "error").Inc()
		logger.Debug("append failed", "id", n.cfg.ID, "peer", p.ID, "error", err)
		return // transient; retry on next tick
	}
	metricRPCSent.WithLabelValues("append_entries", "ok").Inc()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped || n.state != Leader || n.repl != rs || n.currentTerm != rs.term {
		return // stale response
	}
	if reply.Term > n.currentTerm {
		n.adoptTermLocked(reply.Term)
		return
	}
	if reply.Success {
		match := prevIdx + uint64(len(entries))
		if match > rs.matchIndex[p.ID] {
			rs.matchIndex[p.ID] = match
			rs.nextIndex[p.ID] = match + 1
			n.advanceCommitIndexLocked()
		}
		if rs.nextIndex[p.ID] <= n.log.lastIndex() {
			wakeOne(rs.wake[p.ID]) // more entries pending; don't wait a tick
		}
	} else {
		// Consistency check failed: walk back one entry and retry on the
		// next tick.
		if rs.nextIndex[p.ID] > 1 {
			rs.nextIndex[p.ID]--
		}
	}
}

// advanceCommitIndexLocked recomputes the leader's commit index: sort the
// cluster's match indices (the leader counts with its last log index) and
// take the quorum position, then require the entry to be from the current
// term before committing.
func (n *Node) advanceCommitIndexLocked() {
	if n.state != Leader || n.repl == nil {
		return
	}
	clusterSize := len(n.cfg.Peers) + 1
	matches := make([]uint64, 0, clusterSize)
	matches = append(matches, n.log.lastIndex())
	for _, p := range n.cfg.Peers {
		matches = append(matches, n.repl.matchIndex[p.ID])
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	candidate := matches[clusterSize-n.quorum()]
	if candidate <= n.commitIndex {
		return
	}
	if t, ok := n.log.term(candidate); !ok || t != n.currentTerm {
		return
	}
	n.commitIndex = candidate
	metricCommitIndex.Set(float64(candidate))
	n.applyCond.Broadcast()
}

// wakeReplicatorsLocked nudges every replication driver after a local append.
func (n *Node) wakeReplicatorsLocked() {
	if n.repl == nil {
		return
	}
	for _, ch := range n.repl.wake {
		wakeOne(ch)
	}
}

func wakeOne(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
