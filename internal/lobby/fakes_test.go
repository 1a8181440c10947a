package lobby

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var errRoomClosed = errors.New("room closed")

// fakeRoom records joins and resets. Like an engine handle, it refuses calls
// once closed.
type fakeRoom struct {
	gate func(identity string)

	mu      sync.Mutex
	joined  []string
	resets  int
	closed  bool
	joinErr error
}

func (r *fakeRoom) AddUser(_ context.Context, identity string) error {
	if r.gate != nil {
		r.gate(identity)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRoomClosed
	}
	if r.joinErr != nil {
		return r.joinErr
	}
	r.joined = append(r.joined, identity)
	return nil
}

func (r *fakeRoom) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.joined = nil
	return nil
}

func (r *fakeRoom) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRoom) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *fakeRoom) Resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

func (r *fakeRoom) Joined() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.joined...)
}

// fakeEngine hands out a new fakeRoom per OpenRoom call. joinGate, when
// set before the first open, runs at the start of every AddUser.
type fakeEngine struct {
	opens    atomic.Int32
	failing  atomic.Bool
	joinGate func(identity string)
	mu       sync.Mutex
	rooms    []*fakeRoom
}

func (e *fakeEngine) OpenRoom(context.Context) (Room, error) {
	if e.failing.Load() {
		return nil, errors.New("engine unavailable")
	}
	e.opens.Add(1)
	room := &fakeRoom{gate: e.joinGate}
	e.mu.Lock()
	e.rooms = append(e.rooms, room)
	e.mu.Unlock()
	return room, nil
}

func (e *fakeEngine) Last() *fakeRoom {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.rooms) == 0 {
		return nil
	}
	return e.rooms[len(e.rooms)-1]
}

// fakeDriver counts starts and stops.
type fakeDriver struct {
	starts  atomic.Int32
	stops   atomic.Int32
	failing atomic.Bool
	lastMu  sync.Mutex
	port    int
	group   netip.Addr
}

func (d *fakeDriver) Start(port int, group netip.Addr) (func(), error) {
	if d.failing.Load() {
		return nil, errors.New("port in use")
	}
	d.starts.Add(1)
	d.lastMu.Lock()
	d.port, d.group = port, group
	d.lastMu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { d.stops.Add(1) }) }, nil
}

// fakeRecorder keeps an ordered event log. A non-nil block holds every
// event until it is closed.
type fakeRecorder struct {
	block chan struct{}

	mu     sync.Mutex
	events []string
	err    error
}

func (r *fakeRecorder) add(ev string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *fakeRecorder) CycleStarted(_ context.Context, _ uuid.UUID, ep Endpoint) error {
	return r.add("start " + ep.String())
}

func (r *fakeRecorder) PlayerJoined(_ context.Context, _ uuid.UUID, identity string) error {
	return r.add("join " + identity)
}

func (r *fakeRecorder) CycleFinished(_ context.Context, _ uuid.UUID, _ int) error {
	return r.add("finish")
}

func (r *fakeRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
