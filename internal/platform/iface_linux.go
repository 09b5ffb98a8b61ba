//go:build linux

package platform

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// linuxInterface is the Linux [Interface], backed by a raw rtnetlink socket
// for address management, built by constructing netlink.Message values
// directly.
type linuxInterface struct {
	name    string
	ifIndex int
	mac     net.HardwareAddr

	dial func() (*netlink.Conn, error)
}

// Open returns the named interface's [Interface].
func Open(name string) (Interface, error) {
	netIface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", name, err)
	}

	if err = netutil.ValidateMAC(netIface.HardwareAddr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMAC, err)
	}

	return &linuxInterface{
		name:    netIface.Name,
		ifIndex: netIface.Index,
		mac:     netIface.HardwareAddr,
		dial:    dialRoute,
	}, nil
}

// dialRoute opens a new rtnetlink route-family socket.
func dialRoute() (*netlink.Conn, error) {
	return netlink.Dial(unix.NETLINK_ROUTE, nil)
}

// Name implements the [Interface] interface for *linuxInterface.
func (i *linuxInterface) Name() string { return i.name }

// ScopeID implements the [Interface] interface for *linuxInterface.
func (i *linuxInterface) ScopeID() int { return i.ifIndex }

// MAC implements the [Interface] interface for *linuxInterface.
func (i *linuxInterface) MAC() net.HardwareAddr { return i.mac }

// Addrs implements the [Interface] interface for *linuxInterface.
//
// The equivalent of the source's buggy addrs() path, which returned an error
// after successfully accumulating addresses; this always returns the
// accumulated list on success.
func (i *linuxInterface) Addrs(_ context.Context) (addrs []netip.Addr, err error) {
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

// ifAddrMsgLen is the size, in bytes, of the rtnetlink ifaddrmsg header.
const ifAddrMsgLen = 8

// ifaCacheInfoLen is the size, in bytes, of the IFA_CACHEINFO attribute
// payload: ifa_prefered, ifa_valid, cstamp, tstamp, each a u32.
const ifaCacheInfoLen = 16

// AddAddr implements the [Interface] interface for *linuxInterface. It sends
// an RTM_NEWADDR request with NLM_F_REPLACE, so re-assigning an existing
// address refreshes its lifetimes instead of failing with EEXIST.
func (i *linuxInterface) AddAddr(
	_ context.Context,
	addr netip.Addr,
	prefixLen int,
	preferred, valid time.Duration,
) error {
	msg := i.addrMessage(addr, prefixLen, preferred, valid)

	flags := netlink.Request | netlink.Acknowledge | netlink.Replace | netlink.Create

	return i.execute(unix.RTM_NEWADDR, flags, msg)
}

// DelAddr implements the [Interface] interface for *linuxInterface.
func (i *linuxInterface) DelAddr(_ context.Context, addr netip.Addr, prefixLen int) error {
	msg := i.addrMessage(addr, prefixLen, 0, 0)

	flags := netlink.Request | netlink.Acknowledge

	err := i.execute(unix.RTM_DELADDR, flags, msg)
	if err != nil && errors.Is(err, unix.EADDRNOTAVAIL) {
		return nil
	}

	return err
}

// addrMessage builds the ifaddrmsg + attributes payload for an
// RTM_NEWADDR/RTM_DELADDR request.
func (i *linuxInterface) addrMessage(addr netip.Addr, prefixLen int, preferred, valid time.Duration) []byte {
	buf := make([]byte, ifAddrMsgLen)
	buf[0] = unix.AF_INET6
	buf[1] = byte(prefixLen)
	buf[2] = 0 // ifa_flags
	buf[3] = 0 // ifa_scope, RT_SCOPE_UNIVERSE
	binary.NativeEndian.PutUint32(buf[4:8], uint32(i.ifIndex))

	a16 := addr.As16()
	buf = appendAttr(buf, unix.IFA_LOCAL, a16[:])
	buf = appendAttr(buf, unix.IFA_ADDRESS, a16[:])

	cacheInfo := make([]byte, ifaCacheInfoLen)
	binary.NativeEndian.PutUint32(cacheInfo[0:4], clampSeconds(preferred))
	binary.NativeEndian.PutUint32(cacheInfo[4:8], clampSeconds(valid))
	buf = appendAttr(buf, unix.IFA_CACHEINFO, cacheInfo)

	return buf
}

// clampSeconds converts d to a whole-second rtnetlink lifetime value.
func clampSeconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}

	return uint32(d / time.Second)
}

// attrHeaderLen is the size, in bytes, of an rtattr header.
const attrHeaderLen = 4

// appendAttr appends one netlink attribute (type attrType, payload data) to
// buf, padded to a 4-byte boundary.
func appendAttr(buf []byte, attrType uint16, data []byte) []byte {
	length := attrHeaderLen + len(data)

	header := make([]byte, attrHeaderLen)
	binary.NativeEndian.PutUint16(header[0:2], uint16(length))
	binary.NativeEndian.PutUint16(header[2:4], attrType)

	buf = append(buf, header...)
	buf = append(buf, data...)

	if pad := -length & 3; pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}

	return buf
}

// execute sends one rtnetlink request of msgType with the given flags and
// ifaddrmsg payload, waiting for the kernel's acknowledgement.
func (i *linuxInterface) execute(msgType uint16, flags netlink.HeaderFlags, data []byte) error {
	conn, err := i.dial()
	if err != nil {
		return fmt.Errorf("dialing rtnetlink: %w", err)
	}
	defer conn.Close()

	req := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(msgType),
			Flags: flags,
		},
		Data: data,
	}

	_, err = conn.Execute(req)
	if err != nil {
		return fmt.Errorf("executing rtnetlink request: %w", err)
	}

	return nil
}
