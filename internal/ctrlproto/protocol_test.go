package ctrlproto_test

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/AdguardTeam/rsadv/internal/ctrlproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_roundTrip(t *testing.T) {
	addr := netip.MustParseAddr("2001:db8::")

	req := ctrlproto.AddPrefix{
		Prefix: ctrlproto.Prefix{
			Addr:         addr,
			PrefixLength: 64,
			Preferred:    ctrlproto.Lifetime{Kind: ctrlproto.LifetimeDuration, Seconds: 3600},
			Valid:        ctrlproto.Lifetime{Kind: ctrlproto.LifetimeDuration, Seconds: 3600},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, ctrlproto.WriteRequest(&buf, req))

	got, err := ctrlproto.ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

// TestRequest_addPrefixLiteral reproduces the literal control-socket
// scenario: discriminator 1, the unspecified prefix ::/64 with preferred and
// valid lifetimes both 3600 s, followed by the expected Ok response bytes.
func TestRequest_addPrefixLiteral(t *testing.T) {
	req := ctrlproto.AddPrefix{
		Prefix: ctrlproto.Prefix{
			Addr:         netip.IPv6Unspecified(),
			PrefixLength: 0x40,
			Preferred:    ctrlproto.Lifetime{Kind: ctrlproto.LifetimeDuration, Seconds: 3600},
			Valid:        ctrlproto.Lifetime{Kind: ctrlproto.LifetimeDuration, Seconds: 3600},
		},
	}

	body := ctrlproto.EncodeRequest(req)
	assert.Equal(t, []byte{0x01, 0, 0, 0}, body[:4])

	var buf bytes.Buffer
	require.NoError(t, ctrlproto.WriteRequest(&buf, req))
	assert.Equal(t, []byte{0x01, 0, 0, 0}, buf.Bytes()[4:8])

	var respBuf bytes.Buffer
	require.NoError(t, ctrlproto.WriteResponse(&respBuf, ctrlproto.Ok{}))
	assert.Equal(t, []byte{0x04, 0, 0, 0, 0x00, 0, 0, 0}, respBuf.Bytes())
}

func TestResponse_roundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ctrlproto.WriteResponse(&buf, ctrlproto.Ok{}))

	got, err := ctrlproto.ReadResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, ctrlproto.Ok{}, got)
}

func TestDecodeRequest_unknownDiscriminator(t *testing.T) {
	_, err := ctrlproto.DecodeRequest([]byte{0xFF, 0, 0, 0})
	assert.ErrorIs(t, err, ctrlproto.ErrEOF)
}

func TestDecodeRequest_truncated(t *testing.T) {
	_, err := ctrlproto.DecodeRequest([]byte{0x01, 0, 0})
	assert.ErrorIs(t, err, ctrlproto.ErrEOF)
}

func TestReadRequest_frameLenClamped(t *testing.T) {
	var buf bytes.Buffer
	// Claim a length far larger than the actual payload and larger than
	// MaxFrameLen; the reader must not try to allocate or read past what is
	// actually available, and must fail cleanly rather than hang.
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	buf.Write([]byte{0x01, 0, 0, 0})

	_, err := ctrlproto.ReadRequest(&buf)
	assert.Error(t, err)
}

func TestRemovePrefix_roundTrip(t *testing.T) {
	addr := netip.MustParseAddr("fd00::1")
	req := ctrlproto.RemovePrefix{Prefix: ctrlproto.Prefix{Addr: addr}}

	var buf bytes.Buffer
	require.NoError(t, ctrlproto.WriteRequest(&buf, req))

	got, err := ctrlproto.ReadRequest(&buf)
	require.NoError(t, err)

	rm, ok := got.(ctrlproto.RemovePrefix)
	require.True(t, ok)
	assert.Equal(t, addr, rm.Prefix.Addr)
}

func TestDNSServerRequests_roundTrip(t *testing.T) {
	addr := netip.MustParseAddr("2001:db8::53")
	lifetime := ctrlproto.Lifetime{Kind: ctrlproto.LifetimeUntil, Seconds: 1893456000}

	add := ctrlproto.AddDNSServer{Server: ctrlproto.DNSServer{Addr: addr, Lifetime: lifetime}}

	var buf bytes.Buffer
	require.NoError(t, ctrlproto.WriteRequest(&buf, add))

	got, err := ctrlproto.ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, add, got)

	remove := ctrlproto.RemoveDNSServer{Server: ctrlproto.DNSServer{Addr: addr}}

	buf.Reset()
	require.NoError(t, ctrlproto.WriteRequest(&buf, remove))

	got, err = ctrlproto.ReadRequest(&buf)
	require.NoError(t, err)

	rm, ok := got.(ctrlproto.RemoveDNSServer)
	require.True(t, ok)
	assert.Equal(t, addr, rm.Server.Addr)
}
