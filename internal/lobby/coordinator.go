// Package lobby coordinates play cycles: it lazily starts the single game
// session on the first login, hands out its endpoint to players with unique
// identities, and tears it down when the game finishes.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrIdentityClaimed is returned by Login when another player holds the identity.
	ErrIdentityClaimed = errors.New("identity already claimed")
	// ErrInvalidIdentity is returned by Login for an empty identity.
	ErrInvalidIdentity = errors.New("identity must not be empty")
)

// Room is the handle to a live game session held by the engine.
type Room interface {
	// AddUser registers a joined player with the running game.
	AddUser(ctx context.Context, identity string) error
	// Reset clears the running game's internal state.
	Reset(ctx context.Context) error
	// Close releases the room. Calls made through the handle afterwards fail
	// and never reach a room opened later.
	Close(ctx context.Context) error
}

// Engine creates a game room for a new cycle and makes it reachable by the
// players' game clients.
type Engine interface {
	OpenRoom(ctx context.Context) (Room, error)
}

// Driver starts the real-time game driver for a cycle. The returned stop
// function ends it and must be safe to call more than once.
type Driver interface {
	Start(port int, group netip.Addr) (stop func(), err error)
}

// Recorder receives cycle events for the audit log. Events are delivered in
// order on a background goroutine; failures are logged and never affect the
// cycle.
type Recorder interface {
	CycleStarted(ctx context.Context, cycle uuid.UUID, ep Endpoint) error
	PlayerJoined(ctx context.Context, cycle uuid.UUID, identity string) error
	CycleFinished(ctx context.Context, cycle uuid.UUID, players int) error
}

// Settings configures what a new cycle publishes.
type Settings struct {
	// GamePort is published as the endpoint port and handed to the driver.
	GamePort int
	// Group is the multicast group; the zero Addr picks a fresh one per cycle.
	Group netip.Addr
	// Host is the advertised host; empty resolves it with ResolveHost.
	Host string
	// ResolveHost finds the local host address; nil uses LocalIPv4.
	ResolveHost func() (string, error)
	// CallTimeout bounds each call made to a Room or the Recorder.
	CallTimeout time.Duration
	// AuditBuffer is how many Recorder events may wait for delivery before
	// new ones are dropped.
	AuditBuffer int
}

// Snapshot is a point-in-time copy of the coordinator state.
type Snapshot struct {
	Active     bool
	Cycle      uuid.UUID
	Endpoint   Endpoint
	Identities []string
}

// Coordinator owns the session state and the identity registry. A single
// mutex guards both, so initialization, claims and reset are atomic with
// respect to each other.
type Coordinator struct {
	settings Settings
	engine   Engine
	driver   Driver
	recorder Recorder
	audit    *auditQueue
	logger   *zap.Logger

	mu         sync.Mutex
	registry   *Registry
	room       Room
	stopDriver func()
	cycle      uuid.UUID
}

// NewCoordinator creates a Coordinator in the Uninitialized state.
//
// Precondition: engine, driver and logger must be non-nil; recorder may be nil.
// Postcondition: No session is active and the registry is empty.
func NewCoordinator(settings Settings, engine Engine, driver Driver, recorder Recorder, logger *zap.Logger) *Coordinator {
	if settings.ResolveHost == nil {
		settings.ResolveHost = LocalIPv4
	}
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = 5 * time.Second
	}
	if settings.AuditBuffer <= 0 {
		settings.AuditBuffer = 256
	}
	c := &Coordinator{
		settings: settings,
		engine:   engine,
		driver:   driver,
		logger:   logger,
		registry: NewRegistry(),
	}
	if recorder != nil {
		c.recorder = recorder
		c.audit = newAuditQueue(settings.AuditBuffer, settings.CallTimeout, logger)
	}
	return c
}

// Close waits for pending audit events to be delivered. Events recorded
// afterwards are dropped.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.audit == nil {
		return nil
	}
	return c.audit.close(ctx)
}

// EnsureSession returns the endpoint of the active session, starting one if
// none is active. Concurrent callers observe exactly one initialization.
//
// Postcondition: On success the session is Active and the returned endpoint
// is non-zero. On failure the session stays Uninitialized.
func (c *Coordinator) EnsureSession(ctx context.Context) (Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked(ctx)
}

func (c *Coordinator) ensureLocked(ctx context.Context) (Endpoint, error) {
	if ep := c.registry.Endpoint(); !ep.IsZero() {
		return ep, nil
	}

	start := time.Now()
	host := c.settings.Host
	if host == "" {
		h, err := c.settings.ResolveHost()
		if err != nil {
			c.logger.Warn("resolving host address, advertising loopback", zap.Error(err))
			h = loopbackHost
		}
		host = h
	}
	group := c.settings.Group
	if !group.IsValid() {
		group = RandomGroup()
	}

	room, err := c.engine.OpenRoom(ctx)
	if err != nil {
		return Endpoint{}, fmt.Errorf("opening room: %w", err)
	}
	stop, err := c.driver.Start(c.settings.GamePort, group)
	if err != nil {
		c.closeRoom(ctx, room, uuid.Nil)
		return Endpoint{}, fmt.Errorf("starting game driver: %w", err)
	}

	ep := Endpoint{Host: host, Port: c.settings.GamePort, Group: group}
	c.registry.Publish(ep)
	c.room = room
	c.stopDriver = stop
	cycle := uuid.New()
	c.cycle = cycle

	c.logger.Info("session started",
		zap.Stringer("cycle", cycle),
		zap.Stringer("endpoint", ep),
		zap.Duration("elapsed", time.Since(start)),
	)
	c.record("cycle started", func(ctx context.Context) error {
		return c.recorder.CycleStarted(ctx, cycle, ep)
	})
	return ep, nil
}

// Login ensures a session exists and claims identity in one critical
// section, then tells the room the player joined. The room handle is the one
// captured at claim time, so a join that is still in flight when the cycle
// ends fails instead of reaching the next cycle's room.
//
// Postcondition: Returns the session endpoint captured at claim time, or
// ErrIdentityClaimed / ErrInvalidIdentity / an initialization error with no
// state change.
func (c *Coordinator) Login(ctx context.Context, identity string) (Endpoint, error) {
	if identity == "" {
		return Endpoint{}, ErrInvalidIdentity
	}

	c.mu.Lock()
	ep, err := c.ensureLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return Endpoint{}, err
	}
	if !c.registry.Claim(identity) {
		c.mu.Unlock()
		return Endpoint{}, ErrIdentityClaimed
	}
	room, cycle := c.room, c.cycle
	c.record("player joined", func(ctx context.Context) error {
		return c.recorder.PlayerJoined(ctx, cycle, identity)
	})
	c.mu.Unlock()

	c.logger.Info("player joined",
		zap.String("identity", identity),
		zap.Stringer("cycle", cycle),
	)

	callCtx, cancel := context.WithTimeout(ctx, c.settings.CallTimeout)
	defer cancel()
	if err := room.AddUser(callCtx, identity); err != nil {
		c.logger.Error("notifying room of join",
			zap.String("identity", identity),
			zap.Stringer("cycle", cycle),
			zap.Error(err),
		)
	}
	return ep, nil
}

// Logoff releases identity so it can be claimed again. The room is not told
// the player left.
//
// Postcondition: identity is not claimed. Returns whether it was.
func (c *Coordinator) Logoff(identity string) bool {
	c.mu.Lock()
	released := c.registry.Release(identity)
	c.mu.Unlock()

	c.logger.Info("identity released",
		zap.String("identity", identity),
		zap.Bool("was_claimed", released),
	)
	return released
}

// ResetSession ends the active session: the endpoint and every claim are
// cleared, the driver is stopped and the room is reset and closed. Without an
// active session it does nothing.
//
// Postcondition: The session is Uninitialized and the registry is empty.
// Returns whether a session was torn down.
func (c *Coordinator) ResetSession(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.Endpoint().IsZero() {
		return false
	}

	cycle, room, stop := c.cycle, c.room, c.stopDriver
	players := c.registry.Len()
	c.registry.Clear()
	c.room = nil
	c.stopDriver = nil
	c.cycle = uuid.Nil

	stop()

	callCtx, cancel := context.WithTimeout(ctx, c.settings.CallTimeout)
	defer cancel()
	if err := room.Reset(callCtx); err != nil {
		c.logger.Error("resetting room",
			zap.Stringer("cycle", cycle),
			zap.Error(err),
		)
	}
	c.closeRoom(ctx, room, cycle)

	c.logger.Info("session finished",
		zap.Stringer("cycle", cycle),
		zap.Int("players", players),
	)
	c.record("cycle finished", func(ctx context.Context) error {
		return c.recorder.CycleFinished(ctx, cycle, players)
	})
	return true
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep := c.registry.Endpoint()
	return Snapshot{
		Active:     !ep.IsZero(),
		Cycle:      c.cycle,
		Endpoint:   ep,
		Identities: c.registry.Identities(),
	}
}

func (c *Coordinator) closeRoom(ctx context.Context, room Room, cycle uuid.UUID) {
	callCtx, cancel := context.WithTimeout(ctx, c.settings.CallTimeout)
	defer cancel()
	if err := room.Close(callCtx); err != nil {
		c.logger.Error("closing room",
			zap.Stringer("cycle", cycle),
			zap.Error(err),
		)
	}
}

// record queues an audit event. Callers hold c.mu so events are queued in
// the order the state changed.
func (c *Coordinator) record(what string, fn func(ctx context.Context) error) {
	if c.audit == nil {
		return
	}
	c.audit.enqueue(what, fn)
}
