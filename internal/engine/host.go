package engine

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/wamlobby/internal/lobby"
)

// Host creates a fresh board for each cycle, binds it under the well-known
// room name and hands the lobby a gRPC client pinned to that binding. It
// satisfies lobby.Engine.
type Host struct {
	registry  *Registry
	conn      grpc.ClientConnInterface
	name      string
	boardSize int
	logger    *zap.Logger
}

// NewHost creates a Host.
//
// Precondition: registry, conn and logger must be non-nil; name non-empty; boardSize >= 1.
func NewHost(registry *Registry, conn grpc.ClientConnInterface, name string, boardSize int, logger *zap.Logger) *Host {
	return &Host{
		registry:  registry,
		conn:      conn,
		name:      name,
		boardSize: boardSize,
		logger:    logger,
	}
}

// OpenRoom binds a new board under the room name, replacing the previous one.
//
// Postcondition: The returned Room reaches only the new board; after a later
// OpenRoom or its own Close its calls fail.
func (h *Host) OpenRoom(context.Context) (lobby.Room, error) {
	gen := h.registry.Bind(h.name, NewBoard(h.boardSize))
	h.logger.Info("room bound",
		zap.String("room", h.name),
		zap.Uint64("generation", gen),
		zap.Int("board_size", h.boardSize),
	)
	return &boundRoom{
		Client: NewClient(h.conn, h.name, gen),
		host:   h,
		gen:    gen,
	}, nil
}

// boundRoom is the lobby's handle to one binding.
type boundRoom struct {
	*Client
	host *Host
	gen  uint64
}

// Close unbinds the room unless a newer room already replaced it.
func (r *boundRoom) Close(context.Context) error {
	if r.host.registry.Unbind(r.host.name, r.gen) {
		r.host.logger.Info("room unbound",
			zap.String("room", r.host.name),
			zap.Uint64("generation", r.gen),
		)
	}
	return nil
}
