package driver

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/wamlobby/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testAnnouncer(t *testing.T) *Announcer {
	t.Helper()
	return NewAnnouncer("WAM", config.DriverConfig{
		Interval: 10 * time.Millisecond,
		TTL:      0,
		Loopback: false,
	}, zaptest.NewLogger(t))
}

func TestHeartbeat(t *testing.T) {
	assert.Equal(t, "ROOM WAM 7777", string(Heartbeat("WAM", 7777)))
}

func TestAnnouncer_RejectsNonMulticastGroup(t *testing.T) {
	a := testAnnouncer(t)
	for _, g := range []netip.Addr{{}, netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("ff02::1")} {
		stop, err := a.Start(7777, g)
		assert.Error(t, err, "group %v", g)
		assert.Nil(t, stop)
	}
}

func TestAnnouncer_StartStop(t *testing.T) {
	a := testAnnouncer(t)
	stop, err := a.Start(7777, netip.MustParseAddr("239.255.42.1"))
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	stop()
	stop()
}

func TestAnnouncer_ConcurrentStop(t *testing.T) {
	a := testAnnouncer(t)
	stop, err := a.Start(7777, netip.MustParseAddr("239.255.42.2"))
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop()
		}()
	}
	wg.Wait()
}

func TestAnnouncer_IndependentCycles(t *testing.T) {
	a := testAnnouncer(t)
	stop1, err := a.Start(7777, netip.MustParseAddr("239.255.42.3"))
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	stop2, err := a.Start(7778, netip.MustParseAddr("239.255.42.4"))
	require.NoError(t, err)
	stop1()
	stop2()
}
