package engine

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotBound is returned when no room is bound under the requested name.
	ErrNotBound = errors.New("room not bound")
	// ErrStaleRoom is returned when the name is now bound to a newer room
	// than the one the caller holds.
	ErrStaleRoom = errors.New("room replaced by a newer binding")
)

type binding struct {
	board      *Board
	generation uint64
}

// Registry maps well-known names to rooms. Every Bind gets a fresh
// generation number; binding a name that is already bound replaces the
// previous room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]binding
	last  uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]binding)}
}

// Bind binds b under name, replacing any previous binding.
//
// Precondition: name must be non-empty and b non-nil.
// Postcondition: Returns the generation of the new binding, always > 0 and
// greater than every generation returned before.
func (r *Registry) Bind(name string, b *Board) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.rooms[name] = binding{board: b, generation: r.last}
	return r.last
}

// Unbind removes the binding for name if it is still the given generation.
// It reports whether a binding was removed.
func (r *Registry) Unbind(name string, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rooms[name]
	if !ok || cur.generation != generation {
		return false
	}
	delete(r.rooms, name)
	return true
}

// Lookup returns the room bound under name and its generation.
//
// Postcondition: Returns (board, generation, nil) or an error wrapping ErrNotBound.
func (r *Registry) Lookup(name string) (*Board, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.rooms[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrNotBound, name)
	}
	return cur.board, cur.generation, nil
}
