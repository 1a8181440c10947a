package lobby

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// Endpoint is the published address of the live session: the host running
// the game, the game control port and the multicast group carrying game
// updates. The zero Endpoint means no session is active.
type Endpoint struct {
	Host  string
	Port  int
	Group netip.Addr
}

// IsZero reports whether e is the empty endpoint.
func (e Endpoint) IsZero() bool {
	return e == Endpoint{}
}

// String renders the descriptor sent in LOGIN_RESPONSE:
// "host,controlPort,broadcastAddress".
func (e Endpoint) String() string {
	if e.IsZero() {
		return ""
	}
	return e.Host + "," + strconv.Itoa(e.Port) + "," + e.Group.String()
}

// ParseEndpoint parses a descriptor produced by Endpoint.String.
func ParseEndpoint(s string) (Endpoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Endpoint{}, fmt.Errorf("endpoint %q: want host,port,group", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("endpoint %q: invalid port %q", s, parts[1])
	}
	group, err := netip.ParseAddr(parts[2])
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: invalid group: %w", s, err)
	}
	if parts[0] == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: empty host", s)
	}
	return Endpoint{Host: parts[0], Port: port, Group: group}, nil
}

var errNoIPv4 = errors.New("no non-loopback IPv4 address")

// loopbackHost is advertised when no non-loopback address can be found, so a
// single-host setup still works.
const loopbackHost = "127.0.0.1"

// LocalIPv4 returns the first non-loopback IPv4 address of this host.
func LocalIPv4() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("listing interface addresses: %w", err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip := ipnet.IP.To4(); ip != nil && !ip.IsLoopback() {
			return ip.String(), nil
		}
	}
	return "", errNoIPv4
}

// RandomGroup picks a multicast group in the administratively scoped
// 239.255.0.0/16 block, skipping .0 and .255 in the last octet.
func RandomGroup() netip.Addr {
	return netip.AddrFrom4([4]byte{239, 255, byte(rand.IntN(256)), byte(1 + rand.IntN(254))})
}
