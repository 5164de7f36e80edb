package rpc

import (
	"io"
	"net"
	"sync"

	"github.com/kartikbazzad/bunraft/internal/logger"
	"github.com/kartikbazzad/bunraft/internal/wire"
)

// Handler is the consensus surface the server dispatches to. Handlers must
// not block on outbound RPCs.
type Handler interface {
	RequestVote(args wire.RequestVoteRequest) wire.RequestVoteReply
	AppendEntries(args wire.AppendEntriesRequest) wire.AppendEntriesReply
	Status() wire.StatusReply
	Propose(cmd []byte) (index uint64, term uint64, isLeader bool)
	LeaderID() uint64
}

// Server accepts Raft RPC connections and dispatches requests to the handler.
// Connections are persistent: a peer may issue many requests per connection.
type Server struct {
	addr    string
	handler Handler

	listener net.Listener
	mu       sync.Mutex
	running  bool
	conns    map[net.Conn]bool
	wg       sync.WaitGroup
}

// NewServer creates a server for the given listen address.
func NewServer(addr string, h Handler) *Server {
	return &Server{
		addr:    addr,
		handler: h,
		conns:   make(map[net.Conn]bool),
	}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.running = true
	logger.Info("rpc server listening", "addr", ln.Addr().String())
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address after Start. Empty if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stop closes the listener and all connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			logger.Error("accept error", "error", err)
			continue
		}
		s.mu.Lock()
		s.conns[conn] = true
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		header, err := wire.ReadHeader(conn)
		if err != nil {
			if err != io.EOF {
				logger.Debug("connection read", "error", err)
			}
			return
		}
		if err := s.dispatch(conn, header); err != nil {
			logger.Debug("connection write", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, header wire.Header) error {
	switch header.OpCode {
	case wire.OpRequestVote:
		var args wire.RequestVoteRequest
		if err := wire.ReadBody(conn, header.Length, &args); err != nil {
			return wire.WriteMessage(conn, wire.OpError, wire.ErrorReply{Error: err.Error()})
		}
		return wire.WriteMessage(conn, wire.OpReply, s.handler.RequestVote(args))

	case wire.OpAppendEntries:
		var args wire.AppendEntriesRequest
		if err := wire.ReadBody(conn, header.Length, &args); err != nil {
			return wire.WriteMessage(conn, wire.OpError, wire.ErrorReply{Error: err.Error()})
		}
		return wire.WriteMessage(conn, wire.OpReply, s.handler.AppendEntries(args))

	case wire.OpStatus:
		var args wire.StatusRequest
		if err := wire.ReadBody(conn, header.Length, &args); err != nil {
			return wire.WriteMessage(conn, wire.OpError, wire.ErrorReply{Error: err.Error()})
		}
		return wire.WriteMessage(conn, wire.OpReply, s.handler.Status())

	case wire.OpPropose:
		var args wire.ProposeRequest
		if err := wire.ReadBody(conn, header.Length, &args); err != nil {
			return wire.WriteMessage(conn, wire.OpError, wire.ErrorReply{Error: err.Error()})
		}
		index, term, isLeader := s.handler.Propose(args.Command)
		reply := wire.ProposeReply{Index: index, Term: term, IsLeader: isLeader}
		if !isLeader {
			reply.LeaderID = s.handler.LeaderID()
		}
		return wire.WriteMessage(conn, wire.OpReply, reply)

	default:
		// Drain the unknown body so the connection stays framed.
		if err := wire.ReadBody(conn, header.Length, &struct{}{}); err != nil {
			return err
		}
		return wire.WriteMessage(conn, wire.OpError, wire.ErrorReply{Error: "unknown opcode"})
	}
}
