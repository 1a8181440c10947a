package engine

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls one room through the engine's gRPC service. A non-zero
// generation pins the client to a single binding of the name: once the name
// is rebound, calls fail with ErrStaleRoom instead of reaching the new room.
type Client struct {
	conn       grpc.ClientConnInterface
	name       string
	generation uint64
}

// NewClient creates a Client for the room bound under name. generation 0
// targets whatever room is bound when each call arrives.
//
// Precondition: conn must be non-nil; name must be non-empty.
func NewClient(conn grpc.ClientConnInterface, name string, generation uint64) *Client {
	return &Client{conn: conn, name: name, generation: generation}
}

// AddUser registers identity with the room.
func (c *Client) AddUser(ctx context.Context, identity string) error {
	if err := c.conn.Invoke(c.outgoing(ctx), addUserFullMethod, wrapperspb.String(identity), new(emptypb.Empty)); err != nil {
		return c.wrap("adding user", err)
	}
	return nil
}

// Reset clears the room.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.conn.Invoke(c.outgoing(ctx), resetFullMethod, new(emptypb.Empty), new(emptypb.Empty)); err != nil {
		return c.wrap("resetting room", err)
	}
	return nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.generation == 0 {
		return metadata.AppendToOutgoingContext(ctx, RoomNameHeader, c.name)
	}
	return metadata.AppendToOutgoingContext(ctx,
		RoomNameHeader, c.name,
		RoomGenerationHeader, strconv.FormatUint(c.generation, 10),
	)
}

func (c *Client) wrap(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s %q: %w", op, c.name, ErrNotBound)
	case codes.FailedPrecondition:
		return fmt.Errorf("%s %q generation %d: %w", op, c.name, c.generation, ErrStaleRoom)
	}
	return fmt.Errorf("%s %q: %w", op, c.name, err)
}
