package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/cory-johannsen/wamlobby/internal/protocol"
)

// ErrUnexpectedReply is returned by Request when the server answers a
// request that takes no reply.
var ErrUnexpectedReply = errors.New("control: unexpected reply")

// Request dials addr, sends one message and waits for the server to finish
// with it: for a login the reply is returned, for every other request
// Request returns once the server has closed the connection.
//
// Postcondition: The connection is closed when Request returns.
func Request(ctx context.Context, addr string, m protocol.Message) (protocol.Message, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("dialing %s: %w", addr, err)
	}
	conn := NewConn(raw, 0, 0)
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}

	if err := conn.WriteMessage(m); err != nil {
		return protocol.Message{}, err
	}

	reply, err := conn.ReadMessage()
	if !m.ExpectsReply() {
		switch {
		case errors.Is(err, io.EOF):
			return protocol.Message{}, nil
		case err != nil:
			return protocol.Message{}, fmt.Errorf("waiting for close: %w", err)
		default:
			return protocol.Message{}, fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Type)
		}
	}
	if err != nil {
		return protocol.Message{}, fmt.Errorf("reading reply: %w", err)
	}
	return reply, nil
}
