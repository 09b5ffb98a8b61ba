//go:build !linux

package platform

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"runtime"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrUnsupported is returned by every address-mutating [Interface] method on
// platforms without a netlink-equivalent backend.
const ErrUnsupported errors.Error = "address management is not supported on this platform"

// genericInterface is the non-Linux [Interface]: it can describe an
// interface and list its addresses via the standard library, but cannot
// assign or remove addresses.
type genericInterface struct {
	name    string
	ifIndex int
	mac     net.HardwareAddr
}

// Open returns the named interface's [Interface].
func Open(name string) (Interface, error) {
	netIface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", name, err)
	}

	if len(netIface.HardwareAddr) == 0 {
		return nil, ErrNoMAC
	}

	return &genericInterface{
		name:    netIface.Name,
		ifIndex: netIface.Index,
		mac:     netIface.HardwareAddr,
	}, nil
}

// Name implements the [Interface] interface for *genericInterface.
func (i *genericInterface) Name() string { return i.name }

// ScopeID implements the [Interface] interface for *genericInterface.
func (i *genericInterface) ScopeID() int { return i.ifIndex }

// MAC implements the [Interface] interface for *genericInterface.
func (i *genericInterface) MAC() net.HardwareAddr { return i.mac }

// Addrs implements the [Interface] interface for *genericInterface.
func (i *genericInterface) Addrs(_ context.Context) (addrs []netip.Addr, err error) {
	netIface, err := net.InterfaceByIndex(i.ifIndex)
	if err != nil {
		return nil, fmt.Errorf("looking up interface: %w", err)
	}

	rawAddrs, err := netIface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}

	for _, a := range rawAddrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}

		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}

		addr = addr.Unmap()
		if !addr.Is6() {
			continue
		}

		addrs = append(addrs, addr)
	}

	return addrs, nil
}

// AddAddr implements the [Interface] interface for *genericInterface. It
// always fails: see [ErrUnsupported].
func (i *genericInterface) AddAddr(
	context.Context, netip.Addr, int, time.Duration, time.Duration,
) error {
	return fmt.Errorf("%s: %w", runtime.GOOS, ErrUnsupported)
}

// DelAddr implements the [Interface] interface for *genericInterface. It
// always fails: see [ErrUnsupported].
func (i *genericInterface) DelAddr(context.Context, netip.Addr, int) error {
	return fmt.Errorf("%s: %w", runtime.GOOS, ErrUnsupported)
}
