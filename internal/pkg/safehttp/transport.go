// Package safehttp provides an HTTP transport that refuses to connect to
// non-public addresses.
package safehttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrPrivateAddress is returned when a connection resolves to a non-public
// address.
var ErrPrivateAddress = errors.New("access to private address is denied")

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// NewTransport returns a clone of http.DefaultTransport whose connections to
// non-public addresses are rejected to reduce SSRF risk. The check runs on
// the connected remote address, so DNS answers cannot bypass it. Proxies are
// disabled: the guard would otherwise only see the proxy's address.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = guardedDial(&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second})
	return t
}

func guardedDial(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		ip := net.ParseIP(host)
		if ip == nil {
			conn.Close()
			return nil, fmt.Errorf("failed to parse remote IP for %q", addr)
		}

		if !IsPublic(ip) {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
		}

		return conn, nil
	}
}

// IsPublic reports whether ip may be dialed. Only global unicast addresses
// outside the private and shared ranges qualify.
func IsPublic(ip net.IP) bool {
	if !ip.IsGlobalUnicast() || ip.IsPrivate() {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil && sharedAddressSpace.Contains(ip4) {
		return false
	}
	return true
}
