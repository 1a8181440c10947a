package lobby

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/wamlobby/internal/frontend/control"
	"github.com/cory-johannsen/wamlobby/internal/protocol"
)

// Handler serves one control connection: it reads a single request, applies
// it to the Coordinator and replies to logins.
type Handler struct {
	coord  *Coordinator
	logger *zap.Logger
}

// NewHandler creates a Handler bound to coord.
//
// Precondition: coord and logger must be non-nil.
func NewHandler(coord *Coordinator, logger *zap.Logger) *Handler {
	return &Handler{coord: coord, logger: logger}
}

// HandleSession implements control.SessionHandler. Login failures are
// answered with LOGIN_FAIL; only I/O errors are returned.
func (h *Handler) HandleSession(ctx context.Context, conn *control.Conn) error {
	req, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	switch req.Type {
	case protocol.TypeLoginRequest:
		return h.login(ctx, conn, req.Payload)
	case protocol.TypeLogoffRequest:
		h.coord.Logoff(req.Payload)
	case protocol.TypeFinishGame:
		if !h.coord.ResetSession(ctx) {
			h.logger.Debug("finish with no active session", zap.String("remote_addr", conn.RemoteAddr()))
		}
	default:
		h.logger.Debug("ignoring request",
			zap.String("type", string(req.Type)),
			zap.String("remote_addr", conn.RemoteAddr()),
		)
	}
	return nil
}

func (h *Handler) login(ctx context.Context, conn *control.Conn, identity string) error {
	reply := protocol.LoginFailed()

	ep, err := h.coord.Login(ctx, identity)
	switch {
	case err == nil:
		reply = protocol.LoginOK(ep.String())
	case errors.Is(err, ErrIdentityClaimed), errors.Is(err, ErrInvalidIdentity):
		h.logger.Info("login rejected",
			zap.String("identity", identity),
			zap.String("remote_addr", conn.RemoteAddr()),
			zap.Error(err),
		)
	default:
		h.logger.Error("login failed",
			zap.String("identity", identity),
			zap.Error(err),
		)
	}

	if err := conn.WriteMessage(reply); err != nil {
		return fmt.Errorf("writing %s: %w", reply.Type, err)
	}
	return nil
}
