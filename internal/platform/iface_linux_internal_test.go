//go:build linux

package platform

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestClampSeconds(t *testing.T) {
	testCases := []struct {
		name string
		in   time.Duration
		want uint32
	}{{
		name: "zero",
		in:   0,
		want: 0,
	}, {
		name: "negative",
		in:   -time.Second,
		want: 0,
	}, {
		name: "whole_seconds",
		in:   90 * time.Second,
		want: 90,
	}, {
		name: "truncates_fraction",
		in:   90*time.Second + 500*time.Millisecond,
		want: 90,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, clampSeconds(tc.in))
		})
	}
}

func TestAppendAttr(t *testing.T) {
	buf := appendAttr(nil, unix.IFA_LOCAL, []byte{1, 2, 3})

	// 4-byte header + 3-byte payload, padded to an 8-byte total.
	require.Len(t, buf, 8)

	gotLen := binary.NativeEndian.Uint16(buf[0:2])
	gotType := binary.NativeEndian.Uint16(buf[2:4])

	assert.EqualValues(t, 7, gotLen)
	assert.EqualValues(t, unix.IFA_LOCAL, gotType)
	assert.Equal(t, []byte{1, 2, 3}, buf[4:7])
	assert.Equal(t, []byte{0}, buf[7:8])
}

func TestLinuxInterface_addrMessage(t *testing.T) {
	i := &linuxInterface{ifIndex: 7}
	addr := netip.MustParseAddr("2001:db8::1")

	msg := i.addrMessage(addr, 64, time.Hour, 2*time.Hour)

	require.GreaterOrEqual(t, len(msg), ifAddrMsgLen)
	assert.Equal(t, uint8(unix.AF_INET6), msg[0])
	assert.Equal(t, uint8(64), msg[1])
	assert.EqualValues(t, 7, binary.NativeEndian.Uint32(msg[4:8]))
}
