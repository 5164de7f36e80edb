// Package rpc provides the TCP transport for Bunraft: a client for outbound
// Raft RPCs and a server dispatching inbound ones.
package rpc

import (
	"fmt"
	"net"
	"time"

	"github.com/kartikbazzad/bunraft/internal/wire"
)

// Client sends Raft RPCs over TCP using the wire protocol. Every exchange is
// bounded by Timeout so a step-down is never stuck behind a dead peer.
type Client struct {
	Timeout time.Duration
}

// NewClient creates a client with the given per-RPC timeout. A timeout near
// the heartbeat interval keeps failure detection prompt.
func NewClient(timeout time.Duration) *Client {
	return &Client{Timeout: timeout}
}

func (c *Client) SendRequestVote(addr string, args wire.RequestVoteRequest) (wire.RequestVoteReply, error) {
	var reply wire.RequestVoteReply
	err := c.call(addr, wire.OpRequestVote, args, &reply)
	return reply, err
}

func (c *Client) SendAppendEntries(addr string, args wire.AppendEntriesRequest) (wire.AppendEntriesReply, error) {
	var reply wire.AppendEntriesReply
	err := c.call(addr, wire.OpAppendEntries, args, &reply)
	return reply, err
}

// SendStatus queries a node's consensus status (operator surface).
func (c *Client) SendStatus(addr string) (wire.StatusReply, error) {
	var reply wire.StatusReply
	err := c.call(addr, wire.OpStatus, wire.StatusRequest{}, &reply)
	return reply, err
}

// SendPropose submits a command to a node (operator surface).
func (c *Client) SendPropose(addr string, cmd []byte) (wire.ProposeReply, error) {
	var reply wire.ProposeReply
	err := c.call(addr, wire.OpPropose, wire.ProposeRequest{Command: cmd}, &reply)
	return reply, err
}

func (c *Client) call(addr string, op wire.OpCode, args, reply interface{}) error {
	conn, err := net.DialTimeout("tcp", addr, c.Timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
		return err
	}

	if err := wire.WriteMessage(conn, op, args); err != nil {
		return err
	}

	header, err := wire.ReadHeader(conn)
	if err != nil {
		return err
	}
	if header.OpCode == wire.OpError {
		var errReply wire.ErrorReply
		if err := wire.ReadBody(conn, header.Length, &errReply); err != nil {
			return err
		}
		return fmt.Errorf("rpc error: %s", errReply.Error)
	}
	return wire.ReadBody(conn, header.Length, reply)
}
