// Package raft implements the Raft consensus core for Bunraft.
//
// It manages:
// - Leader Election: selecting a cluster leader.
// - Log Replication: ensuring all nodes match the leader's log.
// - Safety: guaranteeing committed entries are never lost.
//
// A Node is driven by four concurrent activities: inbound RPC dispatch, the
// election timer, per-peer replication drivers (leader only), and the apply
// loop. All shared state is guarded by one mutex; handlers persist hard state
// before any reply that depends on it.
package raft

import (
	"errors"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/kartikbazzad/bunraft/internal/logger"
	"github.com/kartikbazzad/bunraft/internal/wire"
)

// State represents the current role of the Raft node.
type State int

const (
	Follower  State = iota // Passive, responds to requests
	Candidate              // Active, seeking votes for leadership
	Leader                 // Active, manages replication
)

func (s State) String() string {
	switch s {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	}
	return "Unknown"
}

// Peer identifies another node in the static cluster roster.
type Peer struct {
	ID   uint64
	Addr string
}

// Config holds configuration parameters for a Raft Node.
type Config struct {
	ID                     uint64        // Unique ID of this node; must be non-zero
	Peers                  []Peer        // Every other node in the cluster
	ElectionTimerBase      time.Duration // Lower bound of the election timeout
	ElectionTimerFluctuate time.Duration // Randomized slack added to the base
	HeartbeatInterval      time.Duration // Interval between leader heartbeats
	MaxEntriesPerAppend    int           // Replication batch cap
}

// DefaultConfig returns a config with a 150ms election base, 150ms
// fluctuation, 50ms heartbeat, and a batch cap of 5.
func DefaultConfig(id uint64, peers []Peer) *Config {
	return &Config{
		ID:                     id,
		Peers:                  peers,
		ElectionTimerBase:      150 * time.Millisecond,
		ElectionTimerFluctuate: 150 * time.Millisecond,
		HeartbeatInterval:      50 * time.Millisecond,
		MaxEntriesPerAppend:    5,
	}
}

// Transport defines the interface for communicating with peers. Calls may
// block but must be time-bounded; errors are treated as "no response, retry
// on next tick".
type Transport interface {
	SendRequestVote(addr string, args wire.RequestVoteRequest) (wire.RequestVoteReply, error)
	SendAppendEntries(addr string, args wire.AppendEntriesRequest) (wire.AppendEntriesReply, error)
}

// StateMachine defines the interface for the underlying application.
// Committed log entries are applied to the StateMachine exactly once, in log
// order, never concurrently.
type StateMachine interface {
	Apply(cmd []byte) interface{}
}

// ErrStopped is the error value for a stopped node. Propose does not return
// it: on a stopped node Propose reports isLeader false.
var ErrStopped = errors.New("raft: node stopped")

// Node represents a single participant in the Raft cluster.
type Node struct {
	mu        sync.Mutex
	applyCond *sync.Cond

	// Persistent state (mirrored in storage; storage writes happen before
	// any dependent reply)
	currentTerm uint64
	votedFor    uint64 // 0 = no vote cast this term
	log         *raftLog

	// Volatile state
	commitIndex uint64
	lastApplied uint64
	state       State
	leaderID    uint64

	// Leader-only state; recreated on every leader transition, nil otherwise
	repl *replicationState

	cfg     *Config
	storage Storage
	rpc     Transport
	fsm     StateMachine

	electionTimer *time.Timer
	timerEpoch    uint64 // invalidates stale AfterFunc fires

	rng *rand.Rand

	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// onFatal handles unrecoverable persistence failures. Defaults to
	// exiting the process: a node that cannot persist must halt.
	onFatal func(error)
}

// NewNode creates a Raft node, recovering hard state from storage. Call
// Start to begin participating in the cluster.
func NewNode(cfg *Config, st Storage, rpc Transport, fsm StateMachine) *Node {
	term, votedFor := st.State()
	n := &Node{
		currentTerm: term,
		votedFor:    votedFor,
		log:         newLog(st.Entries()),
		state:       Follower,
		cfg:         cfg,
		storage:     st,
		rpc:         rpc,
		fsm:         fsm,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(cfg.ID)<<17)),
		stopCh:      make(chan struct{}),
	}
	n.applyCond = sync.NewCond(&n.mu)
	return n
}

// Start begins the election timer and the apply loop.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetElectionTimerLocked()
	n.wg.Add(1)
	go n.applyLoop()
	logger.Info("raft node started",
		"id", n.cfg.ID, "term", n.currentTerm, "last_log_idx", n.log.lastIndex())
}

// Stop halts all activity. In-flight outbound RPCs are abandoned; their
// responses are dropped.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.stopElectionTimerLocked()
	if n.repl != nil {
		close(n.repl.stopCh)
		n.repl = nil
	}
	close(n.stopCh)
	n.applyCond.Broadcast()
	n.mu.Unlock()
	n.wg.Wait()
}

// Propose submits a command for replication. Returns the index and term the
// command will occupy if it commits, and whether this node was leader. A
// non-leader rejects; the caller should retry against the leader.
func (n *Node) Propose(cmd []byte) (index uint64, term uint64, isLeader bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped || n.state != Leader {
		return 0, 0, false
	}
	index = n.log.lastIndex() + 1
	term = n.currentTerm
	entry := wire.LogEntry{Term: term, Index: index, Command: cmd}
	if err := n.storage.Append([]wire.LogEntry{entry}); err != nil {
		n.fatalLocked(err)
		return 0, 0, false
	}
	n.log.append(entry)
	n.advanceCommitIndexLocked() // a single-node cluster commits immediately
	n.wakeReplicatorsLocked()
	return index, term, true
}

// Status returns a point-in-time view of the node's consensus state.
func (n *Node) Status() wire.StatusReply {
	n.mu.Lock()
	defer n.mu.Unlock()
	return wire.StatusReply{
		ID:           n.cfg.ID,
		Term:         n.currentTerm,
		State:        n.state.String(),
		LeaderID:     n.leaderID,
		CommitIndex:  n.commitIndex,
		LastApplied:  n.lastApplied,
		LastLogIndex: n.log.lastIndex(),
	}
}

// LeaderID returns the id of the leader this node currently recognizes, or 0.
func (n *Node) LeaderID() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID
}

// adoptTermLocked moves to a newly observed higher term: clears the vote,
// steps down to Follower, and persists before anything depends on it.
func (n *Node) adoptTermLocked(term uint64) {
	n.currentTerm = term
	n.votedFor = 0
	n.leaderID = 0
	metricTerm.Set(float64(term))
	n.becomeFollowerLocked()
	n.persistStateLocked()
}

// becomeFollowerLocked enters Follower state, stopping replication drivers if
// this node was leader and restarting the election timer.
func (n *Node) becomeFollowerLocked() {
	if n.repl != nil {
		close(n.repl.stopCh)
		n.repl = nil
	}
	if n.state != Follower {
		logger.Info("stepping down to follower", "id", n.cfg.ID, "term", n.currentTerm)
	}
	n.state = Follower
	metricState.Set(0)
	n.resetElectionTimerLocked()
}

// persistStateLocked durably records (currentTerm, votedFor). Persistence
// failure is fatal: a falsely remembered vote breaks safety.
func (n *Node) persistStateLocked() {
	if err := n.storage.SaveState(n.currentTerm, n.votedFor); err != nil {
		n.fatalLocked(err)
	}
}

func (n *Node) fatalLocked(err error) {
	logger.Error("unrecoverable persistence failure, halting", "id", n.cfg.ID, "error", err)
	n.stopped = true
	n.applyCond.Broadcast()
	if n.onFatal != nil {
		n.onFatal(err)
		return
	}
	os.Exit(1)
}

// quorum returns the majority count for the static roster.
func (n *Node) quorum() int {
	return (len(n.cfg.Peers)+1)/2 + 1
}

func (n *Node) resetElectionTimerLocked() {
	n.timerEpoch++
	epoch := n.timerEpoch
	if n.electionTimer != nil {
		n.electionTimer.Stop()
	}
	d := n.cfg.ElectionTimerBase
	if n.cfg.ElectionTimerFluctuate > 0 {
		d += time.Duration(n.rng.Int63n(int64(n.cfg.ElectionTimerFluctuate)))
	}
	n.electionTimer = time.AfterFunc(d, func() {
		n.onElectionTimeout(epoch)
	})
}

// stopElectionTimerLocked cancels the timer; a fire already in flight is
// invalidated by the epoch bump.
func (n *Node) stopElectionTimerLocked() {
	n.timerEpoch++
	if n.electionTimer != nil {
		n.electionTimer.Stop()
		n.electionTimer = nil
	}
}

func (n *Node) onElectionTimeout(epoch uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped || epoch != n.timerEpoch || n.state == Leader {
		return
	}
	n.startElectionLocked()
}
