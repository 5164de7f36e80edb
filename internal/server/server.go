// Package server composes a Bunraft node: durable store, consensus core,
// RPC listener, and the metrics endpoint.
package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartikbazzad/bunraft/internal/config"
	"github.com/kartikbazzad/bunraft/internal/logger"
	"github.com/kartikbazzad/bunraft/internal/raft"
	"github.com/kartikbazzad/bunraft/internal/rpc"
	"github.com/kartikbazzad/bunraft/internal/store"
)

// Server is the Bunraft daemon: opens the state store, recovers, and runs the
// consensus core behind a TCP RPC listener plus an optional Prometheus
// endpoint. Start() begins participating in the cluster; Close() stops
// everything and syncs the store.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	node   *raft.Node
	rpcSrv *rpc.Server
	httpLn net.Listener
	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// LoggingFSM is the default state machine sink: it logs each applied command.
// Real deployments embed the consensus core with their own StateMachine.
type LoggingFSM struct{}

func (LoggingFSM) Apply(cmd []byte) interface{} {
	logger.Debug("applied command", "cmd", string(cmd))
	return nil
}

// NewServer opens the store under cfg.DataDir and builds the node. The
// caller supplies the application state machine; nil installs LoggingFSM.
func NewServer(cfg *config.Config, fsm raft.StateMachine) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if fsm == nil {
		fsm = LoggingFSM{}
	}

	peers := make([]raft.Peer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, raft.Peer{ID: p.ID, Addr: p.Addr})
	}
	rcfg := &raft.Config{
		ID:                     cfg.ID,
		Peers:                  peers,
		ElectionTimerBase:      cfg.ElectionTimerBase,
		ElectionTimerFluctuate: cfg.ElectionTimerFluctuate,
		HeartbeatInterval:      cfg.HeartbeatInterval,
		MaxEntriesPerAppend:    cfg.MaxEntriesPerAppend,
	}
	client := rpc.NewClient(cfg.HeartbeatInterval * 2)
	node := raft.NewNode(rcfg, st, client, fsm)

	s := &Server{
		cfg:    cfg,
		store:  st,
		node:   node,
		rpcSrv: rpc.NewServer(cfg.ListenAddr, node),
		stopCh: make(chan struct{}),
	}
	return s, nil
}

// Start binds the RPC and metrics listeners and starts the node.
func (s *Server) Start() error {
	if err := s.rpcSrv.Start(); err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	if s.cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			s.rpcSrv.Stop()
			return fmt.Errorf("metrics listen: %w", err)
		}
		s.httpLn = ln
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go http.Serve(ln, mux)
		logger.Info("metrics listening", "addr", ln.Addr().String())
	}
	s.node.Start()
	if s.cfg.DemoProposeInterval > 0 {
		s.wg.Add(1)
		go s.demoProposeLoop()
	}
	return nil
}

// demoProposeLoop proposes a counter command at a fixed cadence while this
// node is leader.
func (s *Server) demoProposeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.DemoProposeInterval)
	defer ticker.Stop()
	seq := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			seq++
			cmd := []byte(fmt.Sprintf("demo-%d-%d", s.cfg.ID, seq))
			if idx, term, ok := s.node.Propose(cmd); ok {
				logger.Debug("demo proposed", "idx", idx, "term", term)
			}
		}
	}
}

// Node exposes the consensus core (status, propose) to embedders.
func (s *Server) Node() *raft.Node {
	return s.node
}

// Addr returns the RPC listener address after Start.
func (s *Server) Addr() string {
	return s.rpcSrv.Addr()
}

// Close stops the node, the listeners, and the store.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.node.Stop()
	s.rpcSrv.Stop()
	if s.httpLn != nil {
		s.httpLn.Close()
	}
	s.wg.Wait()
	return s.store.Close()
}
