// Package ndp implements the wire encoding of the ICMPv6 Neighbor Discovery
// messages used by a router: Router Solicitation, Router Advertisement, and
// their options, including the Recursive DNS Server option from RFC 8106.
//
// See https://www.rfc-editor.org/rfc/rfc4861 and
// https://www.rfc-editor.org/rfc/rfc8106.
package ndp

import "github.com/AdguardTeam/golibs/errors"

// Decode error kinds.
const (
	// ErrEOF is returned when the buffer ends before a fixed-size field can
	// be read.
	ErrEOF errors.Error = "ndp: unexpected end of packet"

	// ErrUnknownICMPType is returned when decoding a packet whose type is
	// neither Router Solicitation nor Router Advertisement.
	ErrUnknownICMPType errors.Error = "ndp: unknown icmp type"
)
