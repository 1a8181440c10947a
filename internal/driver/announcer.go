// Package driver runs the real-time side of a play cycle. The Announcer
// advertises the running room on the cycle's multicast group so game clients
// on the local network can find it.
package driver

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/cory-johannsen/wamlobby/internal/config"
)

// Announcer sends a heartbeat datagram "ROOM <name> <port>" to the cycle's
// multicast group at a fixed interval. It satisfies lobby.Driver.
type Announcer struct {
	room   string
	cfg    config.DriverConfig
	logger *zap.Logger
}

// NewAnnouncer creates an Announcer for the room bound under room.
//
// Precondition: cfg.Interval must be > 0; logger must be non-nil.
func NewAnnouncer(room string, cfg config.DriverConfig, logger *zap.Logger) *Announcer {
	return &Announcer{room: room, cfg: cfg, logger: logger}
}

// Heartbeat returns the datagram announced for a room on port.
func Heartbeat(room string, port int) []byte {
	return []byte("ROOM " + room + " " + strconv.Itoa(port))
}

// Start begins announcing on group:port. The first heartbeat is sent before
// Start returns.
//
// Postcondition: On success the returned stop function ends the announcer,
// waits for its goroutine and may be called more than once.
func (a *Announcer) Start(port int, group netip.Addr) (func(), error) {
	if !group.Is4() || !group.IsMulticast() {
		return nil, fmt.Errorf("group %s is not an IPv4 multicast address", group)
	}

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("opening announce socket: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(a.cfg.TTL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting multicast ttl: %w", err)
	}
	if err := pc.SetMulticastLoopback(a.cfg.Loopback); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting multicast loopback: %w", err)
	}

	dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(group, uint16(port)))
	msg := Heartbeat(a.room, port)
	if _, err := pc.WriteTo(msg, nil, dst); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending first heartbeat: %w", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(a.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, err := pc.WriteTo(msg, nil, dst); err != nil {
					a.logger.Warn("sending heartbeat", zap.Stringer("group", dst), zap.Error(err))
				}
			}
		}
	}()

	a.logger.Info("announcer started",
		zap.String("room", a.room),
		zap.Stringer("group", dst),
		zap.Duration("interval", a.cfg.Interval),
	)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			conn.Close()
			a.logger.Info("announcer stopped", zap.Stringer("group", dst))
		})
	}
	return stop, nil
}
