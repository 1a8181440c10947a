package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/wamlobby/internal/lobby"
	"github.com/cory-johannsen/wamlobby/internal/storage/postgres"
)

type fixedSnapshot lobby.Snapshot

func (f fixedSnapshot) Snapshot() lobby.Snapshot { return lobby.Snapshot(f) }

type fakeCycles struct {
	cycles  map[uuid.UUID]postgres.Cycle
	players map[uuid.UUID][]string
	failing bool
}

func (f *fakeCycles) Get(_ context.Context, id uuid.UUID) (postgres.Cycle, error) {
	if f.failing {
		return postgres.Cycle{}, errors.New("db down")
	}
	c, ok := f.cycles[id]
	if !ok {
		return postgres.Cycle{}, postgres.ErrCycleNotFound
	}
	return c, nil
}

func (f *fakeCycles) Players(_ context.Context, id uuid.UUID) ([]string, error) {
	return f.players[id], nil
}

func (f *fakeCycles) Recent(_ context.Context, limit int) ([]postgres.Cycle, error) {
	if f.failing {
		return nil, errors.New("db down")
	}
	var out []postgres.Cycle
	for _, c := range f.cycles {
		if len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

var testEndpoint = lobby.Endpoint{Host: "10.0.0.5", Port: 7777, Group: netip.MustParseAddr("228.229.230.231")}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	r := NewRouter(fixedSnapshot{}, nil, nil, zaptest.NewLogger(t))
	rec := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context, time.Duration) error { return f.err }

func TestHealthz_ReportsDatabase(t *testing.T) {
	r := NewRouter(fixedSnapshot{}, nil, fakeHealth{}, zaptest.NewLogger(t))
	assert.Equal(t, http.StatusOK, get(t, r, "/healthz").Code)

	r = NewRouter(fixedSnapshot{}, nil, fakeHealth{err: errors.New("refused")}, zaptest.NewLogger(t))
	rec := get(t, r, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database unavailable")
}

func TestStatus_Inactive(t *testing.T) {
	r := NewRouter(fixedSnapshot{Identities: []string{}}, nil, nil, zaptest.NewLogger(t))
	rec := get(t, r, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.Active)
	assert.Empty(t, view.Cycle)
	assert.Empty(t, view.Endpoint)
}

func TestStatus_Active(t *testing.T) {
	cycle := uuid.New()
	r := NewRouter(fixedSnapshot{
		Active:     true,
		Cycle:      cycle,
		Endpoint:   testEndpoint,
		Identities: []string{"alice", "bob"},
	}, nil, nil, zaptest.NewLogger(t))

	var view SessionView
	require.NoError(t, json.Unmarshal(get(t, r, "/status").Body.Bytes(), &view))
	assert.True(t, view.Active)
	assert.Equal(t, cycle.String(), view.Cycle)
	assert.Equal(t, "10.0.0.5,7777,228.229.230.231", view.Endpoint)
	assert.Equal(t, []string{"alice", "bob"}, view.Identities)
}

func TestCycles_NotRoutedWithoutAuditLog(t *testing.T) {
	r := NewRouter(fixedSnapshot{}, nil, nil, zaptest.NewLogger(t))
	assert.Equal(t, http.StatusNotFound, get(t, r, "/cycles").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/cycles/"+uuid.NewString()).Code)
}

func TestCycles_Get(t *testing.T) {
	id := uuid.New()
	players := 2
	finished := time.Date(2026, 10, 1, 12, 5, 0, 0, time.UTC)
	src := &fakeCycles{
		cycles: map[uuid.UUID]postgres.Cycle{id: {
			ID:         id,
			Endpoint:   testEndpoint,
			StartedAt:  time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
			FinishedAt: &finished,
			Players:    &players,
		}},
		players: map[uuid.UUID][]string{id: {"alice", "bob"}},
	}
	r := NewRouter(fixedSnapshot{}, src, nil, zaptest.NewLogger(t))

	rec := get(t, r, "/cycles/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var view CycleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, id.String(), view.ID)
	assert.Equal(t, "10.0.0.5,7777,228.229.230.231", view.Endpoint)
	require.NotNil(t, view.Players)
	assert.Equal(t, 2, *view.Players)
	assert.Equal(t, []string{"alice", "bob"}, view.Joined)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/cycles/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/cycles/not-a-uuid").Code)
}

func TestCycles_Recent(t *testing.T) {
	src := &fakeCycles{cycles: map[uuid.UUID]postgres.Cycle{}}
	for i := 0; i < 3; i++ {
		id := uuid.New()
		src.cycles[id] = postgres.Cycle{ID: id, Endpoint: testEndpoint}
	}
	r := NewRouter(fixedSnapshot{}, src, nil, zaptest.NewLogger(t))

	var views []CycleView
	require.NoError(t, json.Unmarshal(get(t, r, "/cycles?limit=2").Body.Bytes(), &views))
	assert.Len(t, views, 2)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/cycles?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/cycles?limit=abc").Code)
}

func TestCycles_StoreFailure(t *testing.T) {
	r := NewRouter(fixedSnapshot{}, &fakeCycles{failing: true}, nil, zaptest.NewLogger(t))
	assert.Equal(t, http.StatusInternalServerError, get(t, r, "/cycles").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, r, "/cycles/"+uuid.NewString()).Code)
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	r := NewRouter(fixedSnapshot{}, nil, nil, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
