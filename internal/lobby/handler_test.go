package lobby

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/wamlobby/internal/config"
	"github.com/cory-johannsen/wamlobby/internal/frontend/control"
	"github.com/cory-johannsen/wamlobby/internal/protocol"
)

type lobbyFixture struct {
	coord *Coordinator
	eng   *fakeEngine
	drv   *fakeDriver
	addr  string
}

func startLobby(t *testing.T) *lobbyFixture {
	t.Helper()
	coord, eng, drv := newTestCoordinator(t, nil)
	logger := zaptest.NewLogger(t)
	acc := control.NewAcceptor(
		config.LobbyConfig{Host: "127.0.0.1", ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second},
		NewHandler(coord, logger),
		logger,
	)
	go func() { _ = acc.ListenAndServe() }()
	require.Eventually(t, func() bool { return acc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(acc.Stop)
	return &lobbyFixture{coord: coord, eng: eng, drv: drv, addr: acc.Addr()}
}

func (f *lobbyFixture) send(t *testing.T, m protocol.Message) protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	reply, err := control.Request(ctx, f.addr, m)
	assert.NoError(t, err)
	return reply
}

func TestHandler_Scenario(t *testing.T) {
	f := startLobby(t)

	a := f.send(t, protocol.Login("alice"))
	assert.Equal(t, protocol.LoginOK("10.0.0.5,7777,228.229.230.231"), a)

	assert.Equal(t, protocol.LoginFailed(), f.send(t, protocol.Login("alice")))

	b := f.send(t, protocol.Login("bob"))
	assert.Equal(t, a, b)

	assert.Equal(t, protocol.Message{}, f.send(t, protocol.Finish()))
	snap := f.coord.Snapshot()
	assert.False(t, snap.Active)
	assert.Empty(t, snap.Identities)

	assert.Equal(t, protocol.TypeLoginResponse, f.send(t, protocol.Login("alice")).Type)
	assert.Equal(t, int32(2), f.eng.opens.Load())
}

func TestHandler_LogoffThenLoginFromAnotherConnection(t *testing.T) {
	f := startLobby(t)

	require.Equal(t, protocol.TypeLoginResponse, f.send(t, protocol.Login("alice")).Type)
	f.send(t, protocol.Logoff("alice"))
	assert.Equal(t, protocol.TypeLoginResponse, f.send(t, protocol.Login("alice")).Type)
	assert.True(t, f.coord.Snapshot().Active)
}

func TestHandler_FinishAndLogoffDoNotStartSession(t *testing.T) {
	f := startLobby(t)

	f.send(t, protocol.Finish())
	f.send(t, protocol.Logoff("nobody"))
	f.send(t, protocol.Message{Type: "PING"})

	assert.False(t, f.coord.Snapshot().Active)
	assert.Equal(t, int32(0), f.eng.opens.Load())
}

func TestHandler_DoubleFinish(t *testing.T) {
	f := startLobby(t)

	f.send(t, protocol.Login("alice"))
	f.send(t, protocol.Finish())
	f.send(t, protocol.Finish())

	assert.False(t, f.coord.Snapshot().Active)
	assert.Equal(t, 1, f.eng.Last().Resets())
}

func TestHandler_InitFailureRepliesLoginFail(t *testing.T) {
	f := startLobby(t)
	f.eng.failing.Store(true)

	assert.Equal(t, protocol.LoginFailed(), f.send(t, protocol.Login("alice")))

	f.eng.failing.Store(false)
	assert.Equal(t, protocol.TypeLoginResponse, f.send(t, protocol.Login("alice")).Type)
}

func TestHandler_ConcurrentLoginsSameIdentity(t *testing.T) {
	f := startLobby(t)

	const n = 20
	replies := make(chan protocol.Message, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies <- f.send(t, protocol.Login("alice"))
		}()
	}
	wg.Wait()
	close(replies)

	ok, fail := 0, 0
	for r := range replies {
		switch r.Type {
		case protocol.TypeLoginResponse:
			ok++
		case protocol.TypeLoginFail:
			fail++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, fail)
}

func TestHandler_ConcurrentDistinctLoginsShareEndpoint(t *testing.T) {
	f := startLobby(t)

	const n = 20
	replies := make(chan protocol.Message, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies <- f.send(t, protocol.Login(fmt.Sprintf("p%d", i)))
		}(i)
	}
	wg.Wait()
	close(replies)

	for r := range replies {
		assert.Equal(t, protocol.LoginOK("10.0.0.5,7777,228.229.230.231"), r)
	}
	assert.Equal(t, int32(1), f.eng.opens.Load())
	assert.Equal(t, int32(1), f.drv.starts.Load())
}

func TestHandler_GarbageClosesConnectionOnly(t *testing.T) {
	f := startLobby(t)

	raw, err := net.Dial("tcp", f.addr)
	require.NoError(t, err)
	// A varint announcing a frame far beyond the size limit.
	_, err = raw.Write([]byte{0xff, 0xff, 0xff, 0x7f})
	require.NoError(t, err)
	_ = raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = raw.Read(buf)
	assert.Error(t, err, "server closes the connection")
	raw.Close()

	// Other connections keep working.
	assert.Equal(t, protocol.TypeLoginResponse, f.send(t, protocol.Login("alice")).Type)
}
