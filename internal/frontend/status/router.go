// Package status serves a read-only HTTP view of the lobby: the live session
// snapshot and, when the audit log is enabled, past cycles.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/wamlobby/internal/lobby"
	"github.com/cory-johannsen/wamlobby/internal/storage/postgres"
)

const (
	defaultCycleLimit = 20
	maxCycleLimit     = 200
	healthTimeout     = 2 * time.Second
)

// SnapshotSource provides the live coordinator state.
type SnapshotSource interface {
	Snapshot() lobby.Snapshot
}

// CycleReader reads the cycle audit log.
type CycleReader interface {
	Get(ctx context.Context, cycle uuid.UUID) (postgres.Cycle, error)
	Players(ctx context.Context, cycle uuid.UUID) ([]string, error)
	Recent(ctx context.Context, limit int) ([]postgres.Cycle, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context, timeout time.Duration) error
}

// SessionView is the JSON form of a lobby.Snapshot.
type SessionView struct {
	Active     bool     `json:"active"`
	Cycle      string   `json:"cycle,omitempty"`
	Endpoint   string   `json:"endpoint,omitempty"`
	Identities []string `json:"identities"`
}

// CycleView is the JSON form of an audit-log cycle.
type CycleView struct {
	ID         string     `json:"id"`
	Endpoint   string     `json:"endpoint"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Players    *int       `json:"players,omitempty"`
	Joined     []string   `json:"joined,omitempty"`
}

type errorView struct {
	Error string `json:"error"`
}

type handlers struct {
	sessions SnapshotSource
	cycles   CycleReader
	db       HealthChecker
	logger   *zap.Logger
}

// NewRouter builds the status routes. The /cycles routes are only
// registered when cycles is non-nil; /healthz checks db when it is non-nil.
//
// Precondition: sessions and logger must be non-nil.
func NewRouter(sessions SnapshotSource, cycles CycleReader, db HealthChecker, logger *zap.Logger) *mux.Router {
	h := &handlers{sessions: sessions, cycles: cycles, db: db, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	if cycles != nil {
		r.HandleFunc("/cycles", h.recentCycles).Methods(http.MethodGet)
		r.HandleFunc("/cycles/{id}", h.cycle).Methods(http.MethodGet)
	}
	return r
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.db != nil {
		if err := h.db.Health(r.Context(), healthTimeout); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable\n"))
			return
		}
	}
	_, _ = w.Write([]byte("ok\n"))
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	snap := h.sessions.Snapshot()
	view := SessionView{
		Active:     snap.Active,
		Endpoint:   snap.Endpoint.String(),
		Identities: snap.Identities,
	}
	if snap.Active {
		view.Cycle = snap.Cycle.String()
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *handlers) recentCycles(w http.ResponseWriter, r *http.Request) {
	limit := defaultCycleLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCycleLimit {
			h.writeJSON(w, http.StatusBadRequest, errorView{Error: "limit must be 1-" + strconv.Itoa(maxCycleLimit)})
			return
		}
		limit = n
	}

	cycles, err := h.cycles.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing cycles", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorView{Error: "listing cycles failed"})
		return
	}
	out := make([]CycleView, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, cycleView(c))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handlers) cycle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorView{Error: "invalid cycle id"})
		return
	}

	c, err := h.cycles.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrCycleNotFound) {
		h.writeJSON(w, http.StatusNotFound, errorView{Error: "cycle not found"})
		return
	}
	if err != nil {
		h.logger.Error("reading cycle", zap.Stringer("cycle", id), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorView{Error: "reading cycle failed"})
		return
	}
	joined, err := h.cycles.Players(r.Context(), id)
	if err != nil {
		h.logger.Error("reading cycle players", zap.Stringer("cycle", id), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorView{Error: "reading cycle failed"})
		return
	}

	view := cycleView(c)
	view.Joined = joined
	h.writeJSON(w, http.StatusOK, view)
}

func cycleView(c postgres.Cycle) CycleView {
	return CycleView{
		ID:         c.ID.String(),
		Endpoint:   c.Endpoint.String(),
		StartedAt:  c.StartedAt,
		FinishedAt: c.FinishedAt,
		Players:    c.Players,
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("writing status response", zap.Error(err))
	}
}
