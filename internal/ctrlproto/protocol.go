package ctrlproto

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
)

// Discriminator identifies the kind of a request or response body.
type Discriminator uint32

// Recognized discriminators.
const (
	DiscriminatorOk              Discriminator = 0
	DiscriminatorAddPrefix       Discriminator = 1
	DiscriminatorRemovePrefix    Discriminator = 2
	DiscriminatorAddDNSServer    Discriminator = 3
	DiscriminatorRemoveDNSServer Discriminator = 4
)

// addrLen is the size, in bytes, of a raw IPv6 address on the wire.
const addrLen = 16

// LifetimeKind tags the variant of a [Lifetime].
type LifetimeKind uint8

// Recognized lifetime tags.
const (
	LifetimeDuration LifetimeKind = 1
	LifetimeUntil    LifetimeKind = 2
)

// Lifetime is the wire representation of a prefix or DNS server lifetime: a
// tag byte followed by a u32 LE second count, relative (Duration) or
// absolute Unix time (Until).
type Lifetime struct {
	Kind    LifetimeKind
	Seconds uint32
}

// lifetimeWireLen is the size, in bytes, of an encoded [Lifetime].
const lifetimeWireLen = 1 + 4

func appendLifetime(buf []byte, l Lifetime) []byte {
	buf = append(buf, byte(l.Kind))
	return binary.LittleEndian.AppendUint32(buf, l.Seconds)
}

func decodeLifetime(b []byte) (l Lifetime, ok bool) {
	if len(b) < lifetimeWireLen {
		return Lifetime{}, false
	}

	kind := LifetimeKind(b[0])
	if kind != LifetimeDuration && kind != LifetimeUntil {
		return Lifetime{}, false
	}

	return Lifetime{Kind: kind, Seconds: binary.LittleEndian.Uint32(b[1:5])}, true
}

// Prefix is the wire body of an AddPrefix/RemovePrefix request.
type Prefix struct {
	Addr         netip.Addr
	Preferred    Lifetime
	Valid        Lifetime
	PrefixLength uint8
}

// prefixWireLen is the size, in bytes, of an encoded [Prefix].
const prefixWireLen = addrLen + 1 + lifetimeWireLen + lifetimeWireLen

func appendPrefix(buf []byte, p Prefix) []byte {
	a16 := p.Addr.As16()
	buf = append(buf, a16[:]...)
	buf = append(buf, p.PrefixLength)
	buf = appendLifetime(buf, p.Preferred)
	buf = appendLifetime(buf, p.Valid)

	return buf
}

func decodePrefix(b []byte) (p Prefix, ok bool) {
	if len(b) < prefixWireLen {
		return Prefix{}, false
	}

	addr, addrOK := netip.AddrFromSlice(b[:addrLen])
	if !addrOK {
		return Prefix{}, false
	}

	prefixLength := b[addrLen]

	preferred, ok := decodeLifetime(b[addrLen+1:])
	if !ok {
		return Prefix{}, false
	}

	valid, ok := decodeLifetime(b[addrLen+1+lifetimeWireLen:])
	if !ok {
		return Prefix{}, false
	}

	return Prefix{
		Addr:         addr,
		Preferred:    preferred,
		Valid:        valid,
		PrefixLength: prefixLength,
	}, true
}

// DNSServer is the wire body of an AddDnsServer/RemoveDnsServer request.
type DNSServer struct {
	Addr     netip.Addr
	Lifetime Lifetime
}

// dnsServerWireLen is the size, in bytes, of an encoded [DNSServer].
const dnsServerWireLen = addrLen + lifetimeWireLen

func appendDNSServer(buf []byte, d DNSServer) []byte {
	a16 := d.Addr.As16()
	buf = append(buf, a16[:]...)

	return appendLifetime(buf, d.Lifetime)
}

func decodeDNSServer(b []byte) (d DNSServer, ok bool) {
	if len(b) < dnsServerWireLen {
		return DNSServer{}, false
	}

	addr, addrOK := netip.AddrFromSlice(b[:addrLen])
	if !addrOK {
		return DNSServer{}, false
	}

	lifetime, ok := decodeLifetime(b[addrLen:])
	if !ok {
		return DNSServer{}, false
	}

	return DNSServer{Addr: addr, Lifetime: lifetime}, true
}

// Request is implemented by every recognized control request.
type Request interface {
	// discriminator returns the request's wire discriminator.
	discriminator() Discriminator

	// encodeBody appends the request's body (everything after the
	// discriminator) to buf and returns the result.
	encodeBody(buf []byte) []byte
}

// AddPrefix requests that Prefix be added to (or replace) the advertised
// prefix table.
type AddPrefix struct{ Prefix Prefix }

func (AddPrefix) discriminator() Discriminator   { return DiscriminatorAddPrefix }
func (r AddPrefix) encodeBody(buf []byte) []byte { return appendPrefix(buf, r.Prefix) }

// RemovePrefix requests that the prefix with the given address be removed
// from the advertised prefix table. Only Prefix.Addr is significant; the
// remaining fields are encoded for symmetry with [AddPrefix] but ignored on
// decode.
type RemovePrefix struct{ Prefix Prefix }

func (RemovePrefix) discriminator() Discriminator   { return DiscriminatorRemovePrefix }
func (r RemovePrefix) encodeBody(buf []byte) []byte { return appendPrefix(buf, r.Prefix) }

// AddDNSServer requests that Server be added to the recursive DNS server
// set.
type AddDNSServer struct{ Server DNSServer }

func (AddDNSServer) discriminator() Discriminator   { return DiscriminatorAddDNSServer }
func (r AddDNSServer) encodeBody(buf []byte) []byte { return appendDNSServer(buf, r.Server) }

// RemoveDNSServer requests that the DNS server with the given address be
// removed from the recursive DNS server set. Only Server.Addr is
// significant.
type RemoveDNSServer struct{ Server DNSServer }

func (RemoveDNSServer) discriminator() Discriminator   { return DiscriminatorRemoveDNSServer }
func (r RemoveDNSServer) encodeBody(buf []byte) []byte { return appendDNSServer(buf, r.Server) }

// Response is implemented by every recognized control response.
type Response interface {
	discriminator() Discriminator
	encodeBody(buf []byte) []byte
}

// Ok is the sole response: the request was applied.
type Ok struct{}

func (Ok) discriminator() Discriminator   { return DiscriminatorOk }
func (Ok) encodeBody(buf []byte) []byte { return buf }

// EncodeRequest returns the wire encoding of req, including its
// discriminator but not the frame length prefix.
func EncodeRequest(req Request) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(req.discriminator()))
	return req.encodeBody(buf)
}

// DecodeRequest parses a Request from a frame payload.
func DecodeRequest(b []byte) (req Request, err error) {
	if len(b) < 4 {
		return nil, ErrEOF
	}

	disc := Discriminator(binary.LittleEndian.Uint32(b[:4]))
	body := b[4:]

	switch disc {
	case DiscriminatorAddPrefix:
		p, ok := decodePrefix(body)
		if !ok {
			return nil, ErrEOF
		}

		return AddPrefix{Prefix: p}, nil
	case DiscriminatorRemovePrefix:
		if len(body) < prefixWireLen {
			return nil, ErrEOF
		}

		addr, _ := netip.AddrFromSlice(body[:addrLen])

		return RemovePrefix{Prefix: Prefix{Addr: addr}}, nil
	case DiscriminatorAddDNSServer:
		d, ok := decodeDNSServer(body)
		if !ok {
			return nil, ErrEOF
		}

		return AddDNSServer{Server: d}, nil
	case DiscriminatorRemoveDNSServer:
		if len(body) < dnsServerWireLen {
			return nil, ErrEOF
		}

		addr, _ := netip.AddrFromSlice(body[:addrLen])

		return RemoveDNSServer{Server: DNSServer{Addr: addr}}, nil
	default:
		return nil, fmt.Errorf("discriminator %d: %w", disc, ErrEOF)
	}
}

// EncodeResponse returns the wire encoding of resp, including its
// discriminator but not the frame length prefix.
func EncodeResponse(resp Response) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(resp.discriminator()))
	return resp.encodeBody(buf)
}

// DecodeResponse parses a Response from a frame payload.
func DecodeResponse(b []byte) (resp Response, err error) {
	if len(b) < 4 {
		return nil, ErrEOF
	}

	disc := Discriminator(binary.LittleEndian.Uint32(b[:4]))
	if disc != DiscriminatorOk {
		return nil, fmt.Errorf("discriminator %d: %w", disc, ErrEOF)
	}

	return Ok{}, nil
}

// ReadRequest reads and decodes one framed request from r.
func ReadRequest(r io.Reader) (req Request, err error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	req, err = DecodeRequest(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	return req, nil
}

// WriteRequest encodes req and writes it to w as one framed message.
func WriteRequest(w io.Writer, req Request) error {
	return writeFrame(w, EncodeRequest(req))
}

// ReadResponse reads and decodes one framed response from r.
func ReadResponse(r io.Reader) (resp Response, err error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	resp, err = DecodeResponse(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return resp, nil
}

// WriteResponse encodes resp and writes it to w as one framed message.
func WriteResponse(w io.Writer, resp Response) error {
	return writeFrame(w, EncodeResponse(resp))
}
