package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/wamlobby/internal/lobby"
)

// ErrCycleNotFound is returned when a cycle lookup yields no results.
var ErrCycleNotFound = errors.New("cycle not found")

// Cycle is one recorded play cycle.
type Cycle struct {
	ID         uuid.UUID
	Endpoint   lobby.Endpoint
	StartedAt  time.Time
	FinishedAt *time.Time
	Players    *int
}

// Finished reports whether the cycle has been reset.
func (c Cycle) Finished() bool {
	return c.FinishedAt != nil
}

// CycleRepository records play cycles and the players who joined them. It
// satisfies lobby.Recorder.
type CycleRepository struct {
	db *pgxpool.Pool
}

// NewCycleRepository creates a CycleRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCycleRepository(db *pgxpool.Pool) *CycleRepository {
	return &CycleRepository{db: db}
}

// CycleStarted inserts a new cycle row for the published endpoint.
func (r *CycleRepository) CycleStarted(ctx context.Context, cycle uuid.UUID, ep lobby.Endpoint) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO cycles (id, host, port, grp) VALUES ($1::uuid, $2, $3, $4)`,
		cycle.String(), ep.Host, ep.Port, ep.Group.String(),
	)
	if err != nil {
		return fmt.Errorf("inserting cycle %s: %w", cycle, err)
	}
	return nil
}

// PlayerJoined records a claimed identity in the cycle.
func (r *CycleRepository) PlayerJoined(ctx context.Context, cycle uuid.UUID, identity string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO cycle_players (cycle_id, identity) VALUES ($1::uuid, $2)`,
		cycle.String(), identity,
	)
	if err != nil {
		return fmt.Errorf("inserting player %q for cycle %s: %w", identity, cycle, err)
	}
	return nil
}

// CycleFinished marks the cycle finished with the number of players holding
// an identity at reset time.
//
// Postcondition: Returns ErrCycleNotFound if no such cycle was started.
func (r *CycleRepository) CycleFinished(ctx context.Context, cycle uuid.UUID, players int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cycles SET finished_at = NOW(), players = $2 WHERE id = $1::uuid`,
		cycle.String(), players,
	)
	if err != nil {
		return fmt.Errorf("finishing cycle %s: %w", cycle, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finishing cycle %s: %w", cycle, ErrCycleNotFound)
	}
	return nil
}

// Get returns the cycle with the given id.
func (r *CycleRepository) Get(ctx context.Context, cycle uuid.UUID) (Cycle, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id::text, host, port, grp, started_at, finished_at, players
		 FROM cycles WHERE id = $1::uuid`,
		cycle.String(),
	)
	c, err := scanCycle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cycle{}, ErrCycleNotFound
	}
	return c, err
}

// Recent returns up to limit cycles, newest first.
//
// Precondition: limit must be > 0.
func (r *CycleRepository) Recent(ctx context.Context, limit int) ([]Cycle, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, host, port, grp, started_at, finished_at, players
		 FROM cycles ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Players returns the identities that joined the cycle, in join order.
// An identity released and claimed again appears twice.
func (r *CycleRepository) Players(ctx context.Context, cycle uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT identity FROM cycle_players WHERE cycle_id = $1::uuid ORDER BY id`,
		cycle.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing players of cycle %s: %w", cycle, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning players of cycle %s: %w", cycle, err)
	}
	return ids, nil
}

func scanCycle(row pgx.Row) (Cycle, error) {
	var (
		c     Cycle
		id    string
		group string
	)
	if err := row.Scan(&id, &c.Endpoint.Host, &c.Endpoint.Port, &group, &c.StartedAt, &c.FinishedAt, &c.Players); err != nil {
		return Cycle{}, fmt.Errorf("scanning cycle: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Cycle{}, fmt.Errorf("parsing cycle id %q: %w", id, err)
	}
	c.ID = parsed
	if c.Endpoint.Group, err = netip.ParseAddr(group); err != nil {
		return Cycle{}, fmt.Errorf("parsing cycle group %q: %w", group, err)
	}
	return c, nil
}
