package radv

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/rsadv/internal/ndp"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv6"
)

// allRoutersMulticast is the all-routers multicast address RSes are received
// on, ff02::2. See RFC 4861, section 6.2.1.
var allRoutersMulticast = netip.MustParseAddr("ff02::2")

// allNodesMulticast is the all-nodes multicast address multicast RAs are
// sent to, ff02::1. See RFC 4861, section 6.2.4.
var allNodesMulticast = netip.MustParseAddr("ff02::1")

// hopLimit is the IPv6 hop limit required by RFC 4861, section 4.2, on both
// unicast and multicast Router Advertisements.
const hopLimit = 255

// readBufSize is the size of the scratch buffer used to read one inbound
// ICMPv6 datagram, per spec.md §4.5.
const readBufSize = 1500

// Conn is the collaborator that sends and receives NDP packets on a link.
// The production implementation in [ListenInterface] wraps a raw ICMPv6
// socket; tests use an in-memory fake.
type Conn interface {
	// SendMulticast sends pkt to the all-nodes multicast group on the bound
	// interface.
	SendMulticast(ctx context.Context, pkt ndp.Packet) error

	// SendUnicast sends pkt to dst.
	SendUnicast(ctx context.Context, pkt ndp.Packet, dst netip.Addr) error

	// ReceiveSolicitation blocks until one Router Solicitation is received,
	// returning its source address and decoded body. Datagrams that are not
	// a Router Solicitation are consumed and skipped transparently.
	ReceiveSolicitation(ctx context.Context) (src netip.Addr, rs *ndp.RouterSolicitation, err error)

	// Close releases the underlying socket, including leaving the
	// all-routers multicast group.
	Close() error
}

// icmpConn is the production [Conn], a raw ICMPv6 socket bound to the
// link-local address of one interface. Grounded on the equivalent
// icmp.ListenPacket/IPv6PacketConn setup used for periodic RA emission in
// the teacher's DHCPv6 module.
type icmpConn struct {
	conn    *icmp.PacketConn
	ip6conn *ipv6.PacketConn
	ifIndex int
	ifName  string
}

// ListenInterface opens a raw ICMPv6 socket bound to linkLocal (scoped to
// ifName/ifIndex), sets the required hop limits, and joins the all-routers
// multicast group.
func ListenInterface(linkLocal netip.Addr, ifName string, ifIndex int) (c *icmpConn, err error) {
	addr := fmt.Sprintf("%s%%%s", linkLocal.String(), ifName)

	conn, err := icmp.ListenPacket("ip6:ipv6-icmp", addr)
	if err != nil {
		return nil, fmt.Errorf("opening icmpv6 socket: %w", err)
	}

	ip6conn := conn.IPv6PacketConn()

	defer func() {
		if err != nil {
			err = errors.WithDeferred(err, conn.Close())
		}
	}()

	if err = ip6conn.SetHopLimit(hopLimit); err != nil {
		return nil, fmt.Errorf("setting unicast hop limit: %w", err)
	}

	if err = ip6conn.SetMulticastHopLimit(hopLimit); err != nil {
		return nil, fmt.Errorf("setting multicast hop limit: %w", err)
	}

	// RFC 4861, section 7.1.1, requires routers to silently discard Router
	// Solicitations whose IP hop limit is not 255 (a hop count below that
	// means the packet crossed a router and cannot be a genuine on-link
	// solicitation). Request the ancillary hop limit on every read so
	// ReceiveSolicitation can enforce it; this achieves the same guarantee
	// an IPV6_MINHOPCOUNT socket option would, without a raw fd.
	if err = ip6conn.SetControlMessage(ipv6.FlagHopLimit, true); err != nil {
		return nil, fmt.Errorf("requesting hop limit ancillary data: %w", err)
	}

	iface, err := net.InterfaceByIndex(ifIndex)
	if err != nil {
		return nil, fmt.Errorf("looking up interface: %w", err)
	}

	group := &net.IPAddr{IP: net.ParseIP(allRoutersMulticast.String())}
	if err = ip6conn.JoinGroup(iface, group); err != nil {
		return nil, fmt.Errorf("joining all-routers group: %w", err)
	}

	return &icmpConn{conn: conn, ip6conn: ip6conn, ifIndex: ifIndex, ifName: ifName}, nil
}

// SendMulticast implements the [Conn] interface for *icmpConn.
func (c *icmpConn) SendMulticast(ctx context.Context, pkt ndp.Packet) error {
	return c.send(ctx, pkt, allNodesMulticast)
}

// SendUnicast implements the [Conn] interface for *icmpConn.
func (c *icmpConn) SendUnicast(ctx context.Context, pkt ndp.Packet, dst netip.Addr) error {
	return c.send(ctx, pkt, dst)
}

func (c *icmpConn) send(_ context.Context, pkt ndp.Packet, dst netip.Addr) (err error) {
	data, err := ndp.Encode(pkt)
	if err != nil {
		return fmt.Errorf("encoding packet: %w", err)
	}

	cm := &ipv6.ControlMessage{HopLimit: hopLimit, IfIndex: c.ifIndex}
	addr := &net.UDPAddr{IP: net.ParseIP(dst.String()), Zone: c.ifName}

	_, err = c.ip6conn.WriteTo(data, cm, addr)
	if err != nil {
		return fmt.Errorf("writing to %s: %w", dst, err)
	}

	return nil
}

// ReceiveSolicitation implements the [Conn] interface for *icmpConn.
func (c *icmpConn) ReceiveSolicitation(
	_ context.Context,
) (src netip.Addr, rs *ndp.RouterSolicitation, err error) {
	buf := make([]byte, readBufSize)

	for {
		n, cm, peer, readErr := c.ip6conn.ReadFrom(buf)
		if readErr != nil {
			return netip.Addr{}, nil, fmt.Errorf("reading datagram: %w", readErr)
		}

		if cm != nil && cm.HopLimit != hopLimit {
			continue
		}

		pkt, decodeErr := ndp.Decode(buf[:n])
		if decodeErr != nil {
			continue
		}

		solicitation, ok := pkt.Body.(*ndp.RouterSolicitation)
		if !ok || pkt.Code != 0 {
			continue
		}

		srcAddr, parseErr := parsePeerAddr(peer)
		if parseErr != nil {
			continue
		}

		return srcAddr, solicitation, nil
	}
}

// parsePeerAddr extracts the IPv6 address from a [net.Addr] returned by
// [ipv6.PacketConn.ReadFrom].
func parsePeerAddr(peer net.Addr) (addr netip.Addr, err error) {
	var ip net.IP
	switch a := peer.(type) {
	case *net.IPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	default:
		return netip.Addr{}, fmt.Errorf("unexpected peer address type %T", peer)
	}

	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid peer address %s", ip)
	}

	return addr.Unmap(), nil
}

// Close implements the [Conn] interface for *icmpConn.
func (c *icmpConn) Close() (err error) {
	iface, lookupErr := net.InterfaceByIndex(c.ifIndex)
	if lookupErr == nil {
		group := &net.IPAddr{IP: net.ParseIP(allRoutersMulticast.String())}
		err = c.ip6conn.LeaveGroup(iface, group)
	}

	return errors.WithDeferred(err, c.conn.Close())
}
