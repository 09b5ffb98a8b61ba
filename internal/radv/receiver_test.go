package radv_test

import (
	"context"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdguardTeam/rsadv/internal/ndp"
	"github.com/AdguardTeam/rsadv/internal/radv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiver_forwardsValidSolicitation(t *testing.T) {
	sched, schedConn, _ := newTestScheduler(t, time.Now(), 1800*time.Second, 0)
	recvConn := newFakeConn()
	recv := radv.NewReceiver(nil, recvConn, sched)

	var drops atomic.Int32
	recv.OnDrop(func() { drops.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	go sched.Run(ctx)
	go recv.Run(ctx)

	// Wait for the startup multicast RA, which is due immediately; a
	// solicitation handled before it is discarded in its favor.
	require.Eventually(t, func() bool {
		return schedConn.multicastCount() >= 1
	}, testTimeout, 10*time.Millisecond)

	src := netip.MustParseAddr("fe80::2")
	recvConn.rsCh <- rsEvent{src: src, rs: &ndp.RouterSolicitation{}}

	require.Eventually(t, func() bool {
		schedConn.mu.Lock()
		defer schedConn.mu.Unlock()

		return len(schedConn.unicast) >= 1
	}, testTimeout, 10*time.Millisecond)

	assert.Zero(t, drops.Load())
}

func TestReceiver_dropsUnspecifiedSourceWithSLLA(t *testing.T) {
	sched, schedConn, _ := newTestScheduler(t, time.Now(), 1800*time.Second, 0)
	recvConn := newFakeConn()
	recv := radv.NewReceiver(nil, recvConn, sched)

	var drops atomic.Int32
	recv.OnDrop(func() { drops.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	go sched.Run(ctx)
	go recv.Run(ctx)

	// RFC 4861, section 7.1.1: a solicitation from the unspecified address
	// must not carry a Source Link-Layer Address option.
	recvConn.rsCh <- rsEvent{
		src: netip.Addr{},
		rs: &ndp.RouterSolicitation{
			Options: []ndp.Option{&ndp.SourceLinkLayerAddress{}},
		},
	}

	require.Eventually(t, func() bool {
		return drops.Load() >= 1
	}, testTimeout, 10*time.Millisecond)

	schedConn.mu.Lock()
	defer schedConn.mu.Unlock()
	assert.Empty(t, schedConn.unicast)
}

func TestReceiver_stopsOnContextCancel(t *testing.T) {
	sched, _, _ := newTestScheduler(t, time.Now(), 1800*time.Second, 0)
	recvConn := newFakeConn()
	recv := radv.NewReceiver(nil, recvConn, sched)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		recv.Run(ctx)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("receiver did not stop after context cancellation")
	}
}
