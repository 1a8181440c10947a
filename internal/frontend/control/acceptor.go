// Package control implements the TCP control channel of the lobby: the
// listener that accepts client connections, the framed connection wrapper
// and a one-shot client.
package control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cory-johannsen/wamlobby/internal/config"
)

// SessionHandler processes one accepted control connection. The acceptor
// closes the connection after HandleSession returns.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// Acceptor listens for control connections on a TCP port and dispatches
// each connection to a SessionHandler in its own goroutine.
type Acceptor struct {
	cfg     config.LobbyConfig
	handler SessionHandler
	logger  *zap.Logger

	// slots bounds concurrent sessions; nil means unbounded.
	slots *semaphore.Weighted

	listener net.Listener
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a control acceptor with the given configuration.
//
// Precondition: handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.LobbyConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.MaxConns > 0 {
		a.slots = semaphore.NewWeighted(cfg.MaxConns)
	}
	return a
}

// ListenAndServe binds the control port and accepts connections until Stop
// is called. A bind failure is returned immediately; accept failures are
// logged and the loop continues.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(listener)
}

// Serve accepts connections on an already bound listener until Stop is called.
//
// Postcondition: listener is closed when this method returns.
func (a *Acceptor) Serve(listener net.Listener) error {
	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	a.listener = listener
	a.running = true
	a.mu.Unlock()
	defer listener.Close()

	a.logger.Info("control acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int64("max_conns", a.cfg.MaxConns),
	)

	for {
		if a.slots != nil {
			if err := a.slots.Acquire(a.ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			a.release()
			select {
			case <-a.ctx.Done():
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		a.wg.Add(1)
		go a.handleConn(conn)
	}
}

func (a *Acceptor) release() {
	if a.slots != nil {
		a.slots.Release(1)
	}
}

// handleConn runs the handler for one connection and always closes it.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	defer a.release()
	start := time.Now()
	addr := raw.RemoteAddr().String()

	conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
	defer conn.Close()

	a.logger.Debug("client connected", zap.String("remote_addr", addr))

	// Unblock a stalled read when the acceptor stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-a.ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := a.handler.HandleSession(a.ctx, conn); err != nil {
		a.logger.Warn("control session failed",
			zap.String("remote_addr", addr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	a.logger.Debug("control session done",
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop closes the listener, closes every in-flight connection and waits for
// their handlers to return.
//
// Postcondition: All handler goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	a.cancel()
	wasRunning := a.running
	a.running = false
	if a.listener != nil {
		_ = a.listener.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	if wasRunning {
		a.logger.Info("control acceptor stopped")
	}
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
