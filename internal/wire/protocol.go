// Package wire defines the binary network protocol for Bunraft.
//
// Protocol Format:
//
//	[Header (5 bytes)] + [Body (JSON)]
//
// Header:
//   - OpCode (1 byte): Operation type (RequestVote, AppendEntries, etc.)
//   - Length (4 bytes): Uint32 Big-Endian size of Body
//
// Body:
//   - JSON encoded payload corresponding to the OpCode.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// OpCode defines the operation type for the wire protocol.
type OpCode uint8

const (
	// Raft Consensus
	OpRequestVote   OpCode = 1
	OpAppendEntries OpCode = 2

	// Operator surface
	OpStatus  OpCode = 5
	OpPropose OpCode = 6

	// Server Responses
	OpReply OpCode = 10
	OpError OpCode = 11
)

// Header is the fixed-size message header (5 bytes)
type Header struct {
	OpCode OpCode
	Length uint32 // Length of the JSON body
}

const HeaderSize = 5

// MaxBodySize bounds a single message body; larger headers are rejected
// before any allocation.
const MaxBodySize = 8 * 1024 * 1024

// ErrBodyTooLarge is returned when a header announces a body above MaxBodySize.
var ErrBodyTooLarge = errors.New("wire: body exceeds max size")

// WriteMessage writes a message (OpCode + Body) to the writer
func WriteMessage(w io.Writer, op OpCode, body interface{}) error {
	var bodyBytes []byte
	var err error
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
	}

	buf := make([]byte, HeaderSize+len(bodyBytes))
	buf[0] = byte(op)
	binary.BigEndian.PutUint32(buf[1:HeaderSize], uint32(len(bodyBytes)))
	copy(buf[HeaderSize:], bodyBytes)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// ReadHeader reads and decodes the message header
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}
	h := Header{
		OpCode: OpCode(buf[0]),
		Length: binary.BigEndian.Uint32(buf[1:]),
	}
	if h.Length > MaxBodySize {
		return Header{}, ErrBodyTooLarge
	}
	return h, nil
}

// ReadBody reads the body into the provided interface
func ReadBody(r io.Reader, length uint32, v interface{}) error {
	if length == 0 {
		return nil
	}
	lr := io.LimitReader(r, int64(length))
	decoder := json.NewDecoder(lr)
	return decoder.Decode(v)
}
