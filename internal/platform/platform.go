// Package platform implements the operating-system collaborator the Router
// Advertisement daemon uses to read one network interface's attributes and
// assign unicast addresses on it, per the fixed Interface boundary.
package platform

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrNoLinkLocalAddr is returned by [LinkLocalAddr] when the interface has no
// IPv6 link-local address to bind the ICMPv6 socket to.
const ErrNoLinkLocalAddr errors.Error = "no link-local address on interface"

// ErrNoMAC is returned by [Open] when the requested interface has no
// hardware address, so neither the Source Link-Layer Address option nor
// EUI-64 host addresses can be derived.
const ErrNoMAC errors.Error = "interface has no hardware address"

// Interface is the fixed platform collaborator: it exposes one network
// interface's fixed attributes and lets the caller manage its IPv6 unicast
// addresses.
type Interface interface {
	// Name returns the interface's name, e.g. "eth0".
	Name() string

	// ScopeID returns the interface index used to scope link-local and
	// multicast IPv6 addresses.
	ScopeID() int

	// MAC returns the interface's hardware address.
	MAC() net.HardwareAddr

	// Addrs returns the interface's currently assigned IPv6 addresses.
	Addrs(ctx context.Context) ([]netip.Addr, error)

	// AddAddr assigns addr/prefixLen to the interface with the given
	// preferred/valid lifetimes, using replace semantics: re-assigning an
	// already-present address refreshes its lifetimes rather than failing.
	AddAddr(ctx context.Context, addr netip.Addr, prefixLen int, preferred, valid time.Duration) error

	// DelAddr removes addr/prefixLen from the interface. Removing an address
	// that is not present is not an error.
	DelAddr(ctx context.Context, addr netip.Addr, prefixLen int) error
}

// LinkLocalAddr returns iface's link-local unicast IPv6 address, or
// [ErrNoLinkLocalAddr] if it has none.
func LinkLocalAddr(ctx context.Context, iface Interface) (addr netip.Addr, err error) {
	addrs, err := iface.Addrs(ctx)
	if err != nil {
		return netip.Addr{}, err
	}

	for _, a := range addrs {
		if a.Is6() && a.IsLinkLocalUnicast() {
			return a, nil
		}
	}

	return netip.Addr{}, ErrNoLinkLocalAddr
}
