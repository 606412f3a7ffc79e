// Package transport owns a DAP byte-stream connection. It knows nothing of
// request/response correlation or event routing — that lives in
// internal/engine. A Conn exposes exactly the primitives spec §4.2 calls
// for: receive, send, and split into reader/writer halves.
package transport

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"

	"github.com/dapclient/core/internal/dapwire"
)

// Conn is a framed, bidirectional DAP message stream.
type Conn interface {
	// Receive reads exactly one framed message. It returns io.EOF when the
	// peer closes the stream cleanly.
	Receive() (dap.Message, error)
	// Send writes exactly one framed message. Concurrent callers are
	// serialized on an internal writer lock.
	Send(msg dap.Message) error
	// Close releases the underlying stream. Idempotent.
	Close() error
}

// streamConn adapts a net.Conn (or any ReadWriteCloser) into a Conn.
type streamConn struct {
	rwc     io.ReadWriteCloser
	dec     *dapwire.Decoder
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// New wraps rwc (typically a net.Conn, but any ReadWriteCloser works — this
// is what lets tests substitute an in-memory net.Pipe() half) as a Conn.
// maxMessageSize <= 0 selects dapwire.DefaultMaxMessageSize.
func New(rwc io.ReadWriteCloser, maxMessageSize int) Conn {
	return &streamConn{
		rwc: rwc,
		dec: dapwire.NewDecoder(rwc, maxMessageSize),
	}
}

// Dial connects to address over network (e.g. "tcp" or "unix") and wraps
// the connection as a Conn.
func Dial(network, address string, maxMessageSize int) (Conn, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s %s: %w", network, address, err)
	}
	return New(conn, maxMessageSize), nil
}

func (c *streamConn) Receive() (dap.Message, error) {
	msg, err := c.dec.ReadMessage()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *streamConn) Send(msg dap.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := dapwire.WriteMessage(c.rwc, msg); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

func (c *streamConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rwc.Close()
}

// ReaderHalf and WriterHalf let the engine own the reader in the dispatcher
// task and the writer (with its lock) in request-issuing callers, per
// spec §4.2's split() primitive.
type ReaderHalf interface {
	Receive() (dap.Message, error)
}

type WriterHalf interface {
	Send(msg dap.Message) error
}

// Split returns the reader and writer views of the same underlying Conn.
// Both views share the same connection; the writer lock still serializes
// concurrent Send calls.
func Split(c Conn) (ReaderHalf, WriterHalf) {
	return c, c
}
