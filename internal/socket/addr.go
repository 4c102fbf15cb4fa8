package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// resolve parses a "host:port" string into a unix.Sockaddr, supporting
// both IPv4 and IPv6 literals. An empty host means INADDR_ANY / in6addr_any.
func resolve(addr string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, fmt.Errorf("socket: invalid address %q: %w", addr, err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, 0, fmt.Errorf("socket: invalid port in %q: %w", addr, err)
	}

	if host == "" {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET, nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, 0, fmt.Errorf("socket: cannot resolve host %q", host)
		}
		ip = ips[0]
	}

	if v4 := ip.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return sa, unix.AF_INET, nil
	}

	v6 := ip.To16()
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], v6)
	return sa, unix.AF_INET6, nil
}

// sockaddrToNetAddr converts a resolved unix.Sockaddr back into a
// net.Addr for Record.LocalAddr/PeerAddr, for diagnostics and
// get_local_addr.
func sockaddrToNetAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
