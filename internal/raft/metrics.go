package raft

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricTerm tracks the node's current term.
	metricTerm = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bunraft_current_term",
		Help: "Current Raft term of this node",
	})
	// metricState tracks the node's role (0=follower, 1=candidate, 2=leader).
	metricState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bunraft_state",
		Help: "Current Raft state (0=follower, 1=candidate, 2=leader)",
	})
	// metricCommitIndex tracks the highest committed log index.
	metricCommitIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bunraft_commit_index",
		Help: "Highest log index known to be committed",
	})
	// metricAppliedIndex tracks the highest applied log index.
	metricAppliedIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bunraft_applied_index",
		Help: "Highest log index applied to the state machine",
	})
	// metricElections counts elections started by this node.
	metricElections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bunraft_elections_started_total",
		Help: "Total number of elections this node has started",
	})
	// metricRPCSent counts outbound RPCs by type and outcome.
	metricRPCSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunraft_rpc_sent_total",
			Help: "Total outbound Raft RPCs",
		},
		[]string{"rpc", "outcome"},
	)
	// metricRPCReceived counts inbound RPCs by type.
	metricRPCReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunraft_rpc_received_total",
			Help: "Total inbound Raft RPCs",
		},
		[]string{"rpc"},
	)
)
