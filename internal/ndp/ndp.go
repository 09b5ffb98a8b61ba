package ndp

import (
	"encoding/binary"
	"time"
)

// ICMPType is the ICMPv6 message type of a [Packet].
type ICMPType uint8

// Recognized ICMPv6 message types.
const (
	TypeRouterSolicitation  ICMPType = 133
	TypeRouterAdvertisement ICMPType = 134
)

// String returns a human-readable name for typ.
func (typ ICMPType) String() string {
	switch typ {
	case TypeRouterSolicitation:
		return "RouterSolicitation"
	case TypeRouterAdvertisement:
		return "RouterAdvertisement"
	default:
		return "Unknown"
	}
}

// Packet is a decoded ICMPv6 Neighbor Discovery packet: a Router
// Solicitation or a Router Advertisement.
//
// Checksum is carried transparently; the kernel raw socket computes and
// validates it, so encoding and decoding never touch it except to copy the
// bytes.
type Packet struct {
	// Body is either a *RouterSolicitation or a *RouterAdvertisement.
	Body Body

	// Type is the ICMPv6 message type.  It must agree with the concrete type
	// of Body; [Encode] derives it from Body and ignores a caller-supplied
	// value that disagrees, so this field only matters for [Decode] output.
	Type ICMPType

	// Code is the ICMPv6 code.  It is always 0 for the messages in this
	// package, but it is preserved across decode/encode since the codec
	// treats it as transparent.
	Code uint8

	// Checksum is the ICMPv6 checksum as it appeared on the wire.  It is
	// opaque to this package.
	Checksum uint16
}

// Body is implemented by *RouterSolicitation and *RouterAdvertisement.
type Body interface {
	// icmpType returns the ICMPv6 message type that identifies the body.
	icmpType() ICMPType

	// encodeBody appends the wire encoding of the body (without the fixed
	// 4-byte ICMPv6 header) to buf and returns the result.
	encodeBody(buf []byte) []byte
}

// RouterSolicitation is the body of an ICMPv6 Router Solicitation message.
// See RFC 4861, section 4.1.
type RouterSolicitation struct {
	// Options is the sequence of options carried by the solicitation.  Only
	// [SourceLinkLayerAddress] is meaningful; other recognized option types
	// may still appear and are preserved verbatim.
	Options []Option
}

// icmpType implements the [Body] interface for *RouterSolicitation.
func (*RouterSolicitation) icmpType() ICMPType { return TypeRouterSolicitation }

// SourceLinkLayerAddr returns the source link-layer address carried by rs,
// or nil if none is present.
func (rs *RouterSolicitation) SourceLinkLayerAddr() *SourceLinkLayerAddress {
	for _, opt := range rs.Options {
		if lla, ok := opt.(*SourceLinkLayerAddress); ok {
			return lla
		}
	}

	return nil
}

// encodeBody implements the [Body] interface for *RouterSolicitation.
func (rs *RouterSolicitation) encodeBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, 0) // reserved
	for _, opt := range rs.Options {
		buf = encodeOption(buf, opt)
	}

	return buf
}

// RouterAdvertisement is the body of an ICMPv6 Router Advertisement message.
// See RFC 4861, section 4.2.
type RouterAdvertisement struct {
	// ReachableTime is the time, in milliseconds, that a neighbor is
	// considered reachable.  A nil value encodes as 0, meaning unspecified;
	// it decodes back to nil.
	ReachableTime *time.Duration

	// RetransTimer is the time, in milliseconds, between retransmitted
	// Neighbor Solicitations.  A nil value encodes as 0, meaning
	// unspecified; it decodes back to nil.
	RetransTimer *time.Duration

	// Options is the sequence of options carried by the advertisement.
	Options []Option

	// RouterLifetime is the lifetime associated with this router as a
	// default router, in seconds.  It saturates at 65535 s on encode.  Zero
	// means "not a default router" and is used during shutdown.
	RouterLifetime time.Duration

	// CurHopLimit is the suggested hop limit for outgoing unicast traffic
	// from hosts using this router.
	CurHopLimit uint8

	// Managed is the M flag: hosts should use DHCPv6 for address
	// configuration.
	Managed bool

	// Other is the O flag: hosts should use DHCPv6 for other (non-address)
	// configuration.
	Other bool
}

// icmpType implements the [Body] interface for *RouterAdvertisement.
func (*RouterAdvertisement) icmpType() ICMPType { return TypeRouterAdvertisement }

// encodeBody implements the [Body] interface for *RouterAdvertisement.
func (ra *RouterAdvertisement) encodeBody(buf []byte) []byte {
	buf = append(buf, ra.CurHopLimit, raFlags(ra.Managed, ra.Other))
	buf = binary.BigEndian.AppendUint16(buf, saturateUint16Seconds(ra.RouterLifetime))
	buf = binary.BigEndian.AppendUint32(buf, durationMillis(ra.ReachableTime))
	buf = binary.BigEndian.AppendUint32(buf, durationMillis(ra.RetransTimer))

	for _, opt := range ra.Options {
		buf = encodeOption(buf, opt)
	}

	return buf
}

// raFlags packs the M and O flags into a single byte as laid out in RFC
// 4861, section 4.2.
func raFlags(managed, other bool) (flags byte) {
	if managed {
		flags |= 1 << 7
	}
	if other {
		flags |= 1 << 6
	}

	return flags
}

// saturateUint16Seconds converts d to whole seconds, saturating at
// [math.MaxUint16] and flooring negative durations to zero.
func saturateUint16Seconds(d time.Duration) uint16 {
	if d <= 0 {
		return 0
	}

	secs := d / time.Second
	if secs > time.Duration(^uint16(0)) {
		return ^uint16(0)
	}

	return uint16(secs)
}

// durationMillis converts d, in milliseconds, to a u32, returning 0 for a
// nil d (meaning unspecified).  It saturates at [math.MaxUint32].
func durationMillis(d *time.Duration) uint32 {
	if d == nil || *d <= 0 {
		return 0
	}

	ms := *d / time.Millisecond
	if ms > time.Duration(^uint32(0)) {
		return ^uint32(0)
	}

	return uint32(ms)
}
