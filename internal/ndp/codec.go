package ndp

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"
)

// icmpHeaderLen is the size, in bytes, of the fixed ICMPv6 header: type,
// code, and checksum.
const icmpHeaderLen = 4

// Encode returns the wire encoding of pkt.  The Type field of pkt is
// ignored; it is derived from the concrete type of pkt.Body.  It never
// returns a non-nil error; the error return exists so that callers can
// treat encoding and [Decode] symmetrically.
func Encode(pkt Packet) ([]byte, error) {
	return AppendEncode(nil, pkt), nil
}

// AppendEncode appends the wire encoding of pkt to buf and returns the
// result.  See [Encode].
func AppendEncode(buf []byte, pkt Packet) []byte {
	buf = append(buf, byte(pkt.Body.icmpType()), pkt.Code)
	buf = binary.BigEndian.AppendUint16(buf, pkt.Checksum)

	return pkt.Body.encodeBody(buf)
}

// Decode parses a Packet from the ICMPv6 message in b, including its fixed
// header.  Unrecognized options are skipped and omitted from the result, as
// required by RFC 4861, section 4.6: unknown options MUST be ignored and
// the rest of the packet processed as usual. A malformed option (one whose
// length is zero, which would otherwise loop forever) aborts decoding of
// the remaining options but does not fail the packet: the options already
// parsed are returned.
func Decode(b []byte) (pkt Packet, err error) {
	if len(b) < icmpHeaderLen {
		return Packet{}, ErrEOF
	}

	typ := ICMPType(b[0])
	pkt.Type = typ
	pkt.Code = b[1]
	pkt.Checksum = binary.BigEndian.Uint16(b[2:4])

	body := b[icmpHeaderLen:]
	switch typ {
	case TypeRouterSolicitation:
		pkt.Body, err = decodeRouterSolicitation(body)
	case TypeRouterAdvertisement:
		pkt.Body, err = decodeRouterAdvertisement(body)
	default:
		return Packet{}, fmt.Errorf("type %d: %w", typ, ErrUnknownICMPType)
	}
	if err != nil {
		return Packet{}, fmt.Errorf("decoding %s body: %w", typ, err)
	}

	return pkt, nil
}

// rsFixedLen is the size, in bytes, of a Router Solicitation body before its
// options: a single reserved 32-bit field.
const rsFixedLen = 4

func decodeRouterSolicitation(b []byte) (rs *RouterSolicitation, err error) {
	if len(b) < rsFixedLen {
		return nil, ErrEOF
	}

	opts, err := decodeOptions(b[rsFixedLen:])
	if err != nil {
		return nil, err
	}

	return &RouterSolicitation{Options: opts}, nil
}

// raFixedLen is the size, in bytes, of a Router Advertisement body before
// its options: hop limit, flags, router lifetime, reachable time, and
// retransmission timer.
const raFixedLen = 12

func decodeRouterAdvertisement(b []byte) (ra *RouterAdvertisement, err error) {
	if len(b) < raFixedLen {
		return nil, ErrEOF
	}

	flags := b[1]
	reachable := millisDuration(binary.BigEndian.Uint32(b[4:8]))
	retrans := millisDuration(binary.BigEndian.Uint32(b[8:12]))

	opts, err := decodeOptions(b[raFixedLen:])
	if err != nil {
		return nil, err
	}

	return &RouterAdvertisement{
		ReachableTime:  reachable,
		RetransTimer:   retrans,
		Options:        opts,
		RouterLifetime: secondsDuration16(binary.BigEndian.Uint16(b[2:4])),
		CurHopLimit:    b[0],
		Managed:        flags&(1<<7) != 0,
		Other:          flags&(1<<6) != 0,
	}, nil
}

// millisDuration converts a wire millisecond count to a *time.Duration,
// returning nil for 0 (unspecified), mirroring the nil convention documented
// on [RouterAdvertisement.ReachableTime].
func millisDuration(ms uint32) *time.Duration {
	if ms == 0 {
		return nil
	}

	d := time.Duration(ms) * time.Millisecond

	return &d
}

// secondsDuration16 converts a wire 16-bit second count to a [time.Duration].
func secondsDuration16(secs uint16) time.Duration {
	return time.Duration(secs) * time.Second
}

// secondsDuration32 converts a wire 32-bit second count to a [time.Duration].
func secondsDuration32(secs uint32) time.Duration {
	return time.Duration(secs) * time.Second
}

// decodeOptions parses the sequence of options in b.  See [Decode] for the
// unknown-option and malformed-option handling rules.
func decodeOptions(b []byte) (opts []Option, err error) {
	for len(b) > 0 {
		if len(b) < optHeaderLen {
			return opts, nil
		}

		code := OptionCode(b[0])
		units := b[1]
		if units == 0 {
			// A zero-length option is malformed; RFC 4861 says nodes MUST
			// silently discard the packet, but since the rest of the options
			// already parsed are well-formed and potentially useful, return
			// them rather than the whole packet.
			return opts, nil
		}

		n := int(units) * optUnit
		if n > len(b) {
			return opts, nil
		}

		body := b[optHeaderLen:n]
		opt, ok := decodeOption(code, body)
		if ok {
			opts = append(opts, opt)
		}

		b = b[n:]
	}

	return opts, nil
}

func decodeOption(code OptionCode, body []byte) (opt Option, ok bool) {
	switch code {
	case OptionSourceLinkLayerAddress:
		mac, ok := decodeMAC(body)
		if !ok {
			return nil, false
		}

		return &SourceLinkLayerAddress{Addr: mac}, true
	case OptionTargetLinkLayerAddress:
		mac, ok := decodeMAC(body)
		if !ok {
			return nil, false
		}

		return &TargetLinkLayerAddress{Addr: mac}, true
	case OptionPrefixInformation:
		return decodePrefixInformation(body)
	case OptionMTU:
		return decodeMTU(body)
	case OptionRecursiveDNSServer:
		return decodeRecursiveDNSServer(body)
	default:
		// Unrecognized option: skip per RFC 4861, section 4.6.
		return nil, false
	}
}

func decodeMAC(body []byte) (mac []byte, ok bool) {
	if len(body) < linkLayerAddrLen {
		return nil, false
	}

	mac = make([]byte, linkLayerAddrLen)
	copy(mac, body[:linkLayerAddrLen])

	return mac, true
}

// piFixedLen is the size, in bytes, of a Prefix Information option body:
// prefix length, flags, valid lifetime, preferred lifetime, reserved, and
// the 16-octet prefix.
const piFixedLen = 1 + 1 + 4 + 4 + 4 + 16

func decodePrefixInformation(body []byte) (opt Option, ok bool) {
	if len(body) < piFixedLen {
		return nil, false
	}

	flags := body[1]
	addr, _ := netip.AddrFromSlice(body[14:30])

	return &PrefixInformation{
		Prefix:            addr,
		ValidLifetime:     secondsDuration32(binary.BigEndian.Uint32(body[2:6])),
		PreferredLifetime: secondsDuration32(binary.BigEndian.Uint32(body[6:10])),
		PrefixLength:      body[0],
		OnLink:            flags&(1<<7) != 0,
		Autonomous:        flags&(1<<6) != 0,
	}, true
}

// mtuFixedLen is the size, in bytes, of an MTU option body: reserved plus
// the 32-bit MTU value.
const mtuFixedLen = 2 + 4

func decodeMTU(body []byte) (opt Option, ok bool) {
	if len(body) < mtuFixedLen {
		return nil, false
	}

	return &MTU{MTU: binary.BigEndian.Uint32(body[2:6])}, true
}

// rdnssFixedLen is the size, in bytes, of a Recursive DNS Server option body
// before its address list: reserved plus the 32-bit lifetime.
const rdnssFixedLen = 2 + 4

func decodeRecursiveDNSServer(body []byte) (opt Option, ok bool) {
	if len(body) < rdnssFixedLen {
		return nil, false
	}

	lifetime := secondsDuration32(binary.BigEndian.Uint32(body[2:6]))

	rest := body[rdnssFixedLen:]
	n := len(rest) / 16
	servers := make([]netip.Addr, 0, n)
	for i := range n {
		addr, addrOK := netip.AddrFromSlice(rest[i*16 : i*16+16])
		if !addrOK {
			continue
		}

		servers = append(servers, addr)
	}

	return &RecursiveDNSServer{Lifetime: lifetime, Servers: servers}, true
}
