// Package engine hosts the whack-a-mole game rooms the lobby hands players
// to. Rooms are bound by name in a Registry and reached over gRPC, so the
// lobby holds a client handle rather than the room itself.
package engine

import (
	"sort"
	"sync"
)

// Board is one game room: a square mole board and the players who joined it.
// All methods are safe for concurrent use.
type Board struct {
	size int

	mu      sync.Mutex
	players map[string]int // identity → score
	rounds  int
}

// NewBoard creates an empty board with size×size holes.
//
// Precondition: size must be >= 1.
func NewBoard(size int) *Board {
	return &Board{
		size:    size,
		players: make(map[string]int),
	}
}

// Size returns the board edge length.
func (b *Board) Size() int {
	return b.size
}

// AddUser registers a joined player with a zero score. Adding an identity
// that already joined keeps its score.
func (b *Board) AddUser(identity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.players[identity]; !ok {
		b.players[identity] = 0
	}
}

// Reset clears the players and scores and starts a new round count.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.players = make(map[string]int)
	b.rounds++
}

// Players returns the joined identities in lexical order.
func (b *Board) Players() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.players))
	for id := range b.players {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Resets returns how many times the board has been reset.
func (b *Board) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rounds
}
