package ndp

import (
	"encoding/binary"
	"net"
	"net/netip"
	"time"
)

// OptionCode identifies the type of an NDP option.  See RFC 4861, section
// 4.6, and RFC 8106, section 5.1.
type OptionCode uint8

// Recognized option codes.
const (
	OptionSourceLinkLayerAddress OptionCode = 1
	OptionTargetLinkLayerAddress OptionCode = 2
	OptionPrefixInformation      OptionCode = 3
	OptionMTU                    OptionCode = 5
	OptionRecursiveDNSServer     OptionCode = 25
)

// optHeaderLen is the size, in bytes, of an option's type and length fields.
const optHeaderLen = 2

// optUnit is the unit, in bytes, that an option's length byte is measured
// in.
const optUnit = 8

// Option is implemented by every recognized NDP option.
type Option interface {
	// Code returns the option's wire type code.
	Code() OptionCode

	// encodeBody appends the option's body (the bytes following the
	// type/length header) to buf and returns the result.  The body's length
	// plus optHeaderLen must already be a multiple of optUnit.
	encodeBody(buf []byte) []byte
}

// encodeOption appends the type/length header for opt followed by its body
// to buf, and returns the result.
func encodeOption(buf []byte, opt Option) []byte {
	start := len(buf)
	buf = append(buf, byte(opt.Code()), 0)
	buf = opt.encodeBody(buf)

	n := len(buf) - start
	buf[start+1] = byte(n / optUnit)

	return buf
}

// linkLayerAddrLen is the fixed size, per spec, of a MAC address carried in
// a link-layer address option.
const linkLayerAddrLen = 6

// SourceLinkLayerAddress is the Source Link-Layer Address option (code 1).
type SourceLinkLayerAddress struct {
	Addr net.HardwareAddr
}

// Code implements the [Option] interface for *SourceLinkLayerAddress.
func (*SourceLinkLayerAddress) Code() OptionCode { return OptionSourceLinkLayerAddress }

// encodeBody implements the [Option] interface for *SourceLinkLayerAddress.
func (o *SourceLinkLayerAddress) encodeBody(buf []byte) []byte {
	return appendMAC(buf, o.Addr)
}

// TargetLinkLayerAddress is the Target Link-Layer Address option (code 2).
type TargetLinkLayerAddress struct {
	Addr net.HardwareAddr
}

// Code implements the [Option] interface for *TargetLinkLayerAddress.
func (*TargetLinkLayerAddress) Code() OptionCode { return OptionTargetLinkLayerAddress }

// encodeBody implements the [Option] interface for *TargetLinkLayerAddress.
func (o *TargetLinkLayerAddress) encodeBody(buf []byte) []byte {
	return appendMAC(buf, o.Addr)
}

// appendMAC appends the first 6 bytes of mac to buf, zero-padding if mac is
// shorter, as the wire format has no room for anything but an Ethernet
// address.
func appendMAC(buf []byte, mac net.HardwareAddr) []byte {
	var a [linkLayerAddrLen]byte
	copy(a[:], mac)

	return append(buf, a[:]...)
}

// PrefixInformation is the Prefix Information option (code 3).  See RFC
// 4861, section 4.6.2.
type PrefixInformation struct {
	// Prefix is the advertised prefix.  Only the first PrefixLength bits are
	// significant.
	Prefix netip.Addr

	// ValidLifetime is the length of time the prefix remains valid, in
	// seconds resolution.  It saturates at [math.MaxUint32] seconds.
	ValidLifetime time.Duration

	// PreferredLifetime is the length of time addresses generated from the
	// prefix remain preferred, in seconds resolution.  It saturates at
	// [math.MaxUint32] seconds.
	PreferredLifetime time.Duration

	// PrefixLength is the number of leading bits of Prefix that make up the
	// prefix.
	PrefixLength uint8

	// OnLink is the L flag: the prefix may be used for on-link
	// determination.
	OnLink bool

	// Autonomous is the A flag: the prefix may be used for stateless
	// address autoconfiguration.
	Autonomous bool
}

// Code implements the [Option] interface for *PrefixInformation.
func (*PrefixInformation) Code() OptionCode { return OptionPrefixInformation }

// encodeBody implements the [Option] interface for *PrefixInformation.
func (o *PrefixInformation) encodeBody(buf []byte) []byte {
	buf = append(buf, o.PrefixLength, prefixFlags(o.OnLink, o.Autonomous))
	buf = appendUint32Seconds(buf, o.ValidLifetime)
	buf = appendUint32Seconds(buf, o.PreferredLifetime)
	buf = binary.BigEndian.AppendUint32(buf, 0) // reserved

	addr16 := o.Prefix.As16()

	return append(buf, addr16[:]...)
}

// prefixFlags packs the L and A flags into a single byte as laid out in RFC
// 4861, section 4.6.2.
func prefixFlags(onLink, autonomous bool) (flags byte) {
	if onLink {
		flags |= 1 << 7
	}
	if autonomous {
		flags |= 1 << 6
	}

	return flags
}

// MTU is the MTU option (code 5).
type MTU struct {
	MTU uint32
}

// Code implements the [Option] interface for *MTU.
func (*MTU) Code() OptionCode { return OptionMTU }

// encodeBody implements the [Option] interface for *MTU.
func (o *MTU) encodeBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, 0) // reserved
	return binary.BigEndian.AppendUint32(buf, o.MTU)
}

// RecursiveDNSServer is the Recursive DNS Server option (code 25).  See RFC
// 8106, section 5.1.
type RecursiveDNSServer struct {
	// Lifetime is the maximum time the servers may be used for name
	// resolution, in seconds resolution.  It saturates at
	// [math.MaxUint32] seconds.
	Lifetime time.Duration

	// Servers is the list of recursive DNS server addresses, in the order
	// they should be encoded.
	Servers []netip.Addr
}

// Code implements the [Option] interface for *RecursiveDNSServer.
func (*RecursiveDNSServer) Code() OptionCode { return OptionRecursiveDNSServer }

// encodeBody implements the [Option] interface for *RecursiveDNSServer.
func (o *RecursiveDNSServer) encodeBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, 0) // reserved
	buf = appendUint32Seconds(buf, o.Lifetime)

	for _, srv := range o.Servers {
		a16 := srv.As16()
		buf = append(buf, a16[:]...)
	}

	return buf
}

// appendUint32Seconds appends d, rounded down to whole seconds and
// saturated to fit a u32, to buf in network byte order.
func appendUint32Seconds(buf []byte, d time.Duration) []byte {
	return binary.BigEndian.AppendUint32(buf, saturateUint32Seconds(d))
}

// saturateUint32Seconds converts d to whole seconds, saturating at
// [math.MaxUint32] and flooring negative durations to zero.
func saturateUint32Seconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}

	secs := d / time.Second
	if secs > time.Duration(^uint32(0)) {
		return ^uint32(0)
	}

	return uint32(secs)
}
