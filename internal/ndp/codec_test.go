package ndp_test

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/rsadv/internal/ndp"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_routerSolicitation(t *testing.T) {
	mac := net.HardwareAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	pkt := ndp.Packet{
		Body: &ndp.RouterSolicitation{
			Options: []ndp.Option{&ndp.SourceLinkLayerAddress{Addr: mac}},
		},
	}

	b, err := ndp.Encode(pkt)
	require.NoError(t, err)

	got, err := ndp.Decode(b)
	require.NoError(t, err)

	assert.Equal(t, ndp.TypeRouterSolicitation, got.Type)

	rs, ok := got.Body.(*ndp.RouterSolicitation)
	require.True(t, ok)

	lla := rs.SourceLinkLayerAddr()
	require.NotNil(t, lla)
	assert.Equal(t, mac, lla.Addr)
}

func TestEncodeDecode_routerAdvertisement(t *testing.T) {
	reachable := 30 * time.Second
	prefix := netip.MustParseAddr("2001:db8::")
	dns := netip.MustParseAddr("2001:db8::53")

	pkt := ndp.Packet{
		Body: &ndp.RouterAdvertisement{
			ReachableTime:  &reachable,
			RouterLifetime: 1800 * time.Second,
			CurHopLimit:    64,
			Managed:        true,
			Options: []ndp.Option{
				&ndp.PrefixInformation{
					Prefix:            prefix,
					ValidLifetime:     86400 * time.Second,
					PreferredLifetime: 14400 * time.Second,
					PrefixLength:      64,
					OnLink:            true,
					Autonomous:        true,
				},
				&ndp.MTU{MTU: 1500},
				&ndp.RecursiveDNSServer{
					Lifetime: 600 * time.Second,
					Servers:  []netip.Addr{dns},
				},
			},
		},
	}

	b, err := ndp.Encode(pkt)
	require.NoError(t, err)

	got, err := ndp.Decode(b)
	require.NoError(t, err)

	ra, ok := got.Body.(*ndp.RouterAdvertisement)
	require.True(t, ok)

	assert.Equal(t, uint8(64), ra.CurHopLimit)
	assert.True(t, ra.Managed)
	assert.False(t, ra.Other)
	assert.Equal(t, 1800*time.Second, ra.RouterLifetime)
	require.NotNil(t, ra.ReachableTime)
	assert.Equal(t, reachable, *ra.ReachableTime)
	assert.Nil(t, ra.RetransTimer)
	require.Len(t, ra.Options, 3)

	pi, ok := ra.Options[0].(*ndp.PrefixInformation)
	require.True(t, ok)
	assert.Equal(t, prefix, pi.Prefix)
	assert.Equal(t, uint8(64), pi.PrefixLength)
	assert.True(t, pi.OnLink)
	assert.True(t, pi.Autonomous)
	assert.Equal(t, 86400*time.Second, pi.ValidLifetime)
	assert.Equal(t, 14400*time.Second, pi.PreferredLifetime)

	mtu, ok := ra.Options[1].(*ndp.MTU)
	require.True(t, ok)
	assert.Equal(t, uint32(1500), mtu.MTU)

	rdnss, ok := ra.Options[2].(*ndp.RecursiveDNSServer)
	require.True(t, ok)
	assert.Equal(t, 600*time.Second, rdnss.Lifetime)
	assert.Equal(t, []netip.Addr{dns}, rdnss.Servers)

	// A second encode/decode round trip should reproduce the same option
	// set structurally, byte-level quirks (padding, reserved fields) aside.
	b2, err := ndp.Encode(ndp.Packet{Body: ra})
	require.NoError(t, err)

	got2, err := ndp.Decode(b2)
	require.NoError(t, err)

	ra2, ok := got2.Body.(*ndp.RouterAdvertisement)
	require.True(t, ok)

	addrComparer := cmp.Comparer(func(a, b netip.Addr) bool { return a == b })
	if diff := cmp.Diff(ra.Options, ra2.Options, addrComparer); diff != "" {
		t.Errorf("options changed across a second round trip (-want +got):\n%s", diff)
	}
}

// TestDecode_unknownOptionSkipped verifies that an option with a recognized
// header but unrecognized code is skipped without disturbing later options,
// per RFC 4861, section 4.6.
func TestDecode_unknownOptionSkipped(t *testing.T) {
	mac := net.HardwareAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}

	// header(4) + reserved(4), then splice in an unknown option (code 200,
	// length 1 unit = 8 bytes) followed by a recognized Source Link-Layer
	// Address option.
	b := ndp.AppendEncode(nil, ndp.Packet{Body: &ndp.RouterSolicitation{}})

	unknown := []byte{200, 1, 0, 0, 0, 0, 0, 0}
	b = append(b, unknown...)

	slla := ndp.AppendEncode(nil, ndp.Packet{
		Body: &ndp.RouterSolicitation{Options: []ndp.Option{&ndp.SourceLinkLayerAddress{Addr: mac}}},
	})
	b = append(b, slla[8:]...) // skip the other packet's header+reserved

	got, err := ndp.Decode(b)
	require.NoError(t, err)

	rs, ok := got.Body.(*ndp.RouterSolicitation)
	require.True(t, ok)
	require.Len(t, rs.Options, 1)

	lla, ok := rs.Options[0].(*ndp.SourceLinkLayerAddress)
	require.True(t, ok)
	assert.Equal(t, mac, lla.Addr)
}

func TestDecode_truncatedHeader(t *testing.T) {
	_, err := ndp.Decode([]byte{133, 0, 0})
	assert.ErrorIs(t, err, ndp.ErrEOF)
}

func TestDecode_unknownICMPType(t *testing.T) {
	_, err := ndp.Decode([]byte{1, 0, 0, 0})
	assert.ErrorIs(t, err, ndp.ErrUnknownICMPType)
}
