package main

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/wamlobby/internal/lobby"
	"github.com/cory-johannsen/wamlobby/internal/protocol"
	"github.com/cory-johannsen/wamlobby/internal/storage/postgres"
)

func TestFormatLogin(t *testing.T) {
	line, err := formatLogin(protocol.LoginOK("10.0.0.5,7777,239.255.1.2"))
	require.NoError(t, err)
	assert.Equal(t, "LOGIN_RESPONSE host=10.0.0.5 port=7777 group=239.255.1.2", line)

	line, err = formatLogin(protocol.LoginFailed())
	require.NoError(t, err)
	assert.Equal(t, "LOGIN_FAIL", line)

	_, err = formatLogin(protocol.LoginOK("garbage"))
	assert.Error(t, err)
}

func TestFormatCycle(t *testing.T) {
	started := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := postgres.Cycle{
		ID:        uuid.MustParse("3f1c6a2e-8d4b-4c1e-9a7f-2b5d0e6c1a90"),
		Endpoint:  lobby.Endpoint{Host: "10.0.0.5", Port: 7777, Group: netip.MustParseAddr("239.255.1.2")},
		StartedAt: started,
	}
	assert.Equal(t,
		"3f1c6a2e-8d4b-4c1e-9a7f-2b5d0e6c1a90  2026-10-19T12:00:00Z  10.0.0.5,7777,239.255.1.2  active  players=-",
		formatCycle(c))

	finished := started.Add(time.Minute)
	players := 3
	c.FinishedAt, c.Players = &finished, &players
	assert.Equal(t,
		"3f1c6a2e-8d4b-4c1e-9a7f-2b5d0e6c1a90  2026-10-19T12:00:00Z  10.0.0.5,7777,239.255.1.2  finished 2026-10-19T12:01:00Z  players=3",
		formatCycle(c))
}
