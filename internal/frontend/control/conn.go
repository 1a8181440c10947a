package control

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/cory-johannsen/wamlobby/internal/protocol"
)

// Conn wraps a TCP connection with control-message framing and optional
// per-operation deadlines.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader

	closeOnce sync.Once
	closeErr  error

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps a raw TCP connection. A zero timeout disables the deadline
// for that direction.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, protocol.MaxFrameSize),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadMessage reads one framed control message.
//
// Postcondition: Returns the next message, or an error (including io.EOF).
func (c *Conn) ReadMessage() (protocol.Message, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return protocol.Read(c.reader)
}

// WriteMessage writes one framed control message.
//
// Postcondition: The full frame is written, or a non-nil error is returned.
func (c *Conn) WriteMessage(m protocol.Message) error {
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return protocol.Write(c.raw, m)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}
