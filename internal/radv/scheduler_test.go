package radv_test

import (
	"context"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/testutil/faketime"
	"github.com/AdguardTeam/rsadv/internal/ndp"
	"github.com/AdguardTeam/rsadv/internal/radv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMAC is the hardware address used across scheduler tests.
var testMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

// testTimeout bounds how long tests wait for asynchronous scheduler
// behavior before failing.
const testTimeout = 5 * time.Second

// fakeConn is an in-memory [radv.Conn] recording every sent packet.
type fakeConn struct {
	mu        sync.Mutex
	multicast []*ndp.RouterAdvertisement
	unicast   []unicastSend
	rsCh      chan rsEvent
}

type unicastSend struct {
	ra  *ndp.RouterAdvertisement
	dst netip.Addr
}

type rsEvent struct {
	src netip.Addr
	rs  *ndp.RouterSolicitation
	err error
}

func newFakeConn() *fakeConn {
	return &fakeConn{rsCh: make(chan rsEvent, 4)}
}

func (c *fakeConn) SendMulticast(_ context.Context, pkt ndp.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.multicast = append(c.multicast, pkt.Body.(*ndp.RouterAdvertisement))

	return nil
}

func (c *fakeConn) SendUnicast(_ context.Context, pkt ndp.Packet, dst netip.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unicast = append(c.unicast, unicastSend{ra: pkt.Body.(*ndp.RouterAdvertisement), dst: dst})

	return nil
}

func (c *fakeConn) ReceiveSolicitation(
	ctx context.Context,
) (src netip.Addr, rs *ndp.RouterSolicitation, err error) {
	select {
	case ev := <-c.rsCh:
		return ev.src, ev.rs, ev.err
	case <-ctx.Done():
		return netip.Addr{}, nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) multicastCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.multicast)
}

func TestClampIntervals(t *testing.T) {
	testCases := []struct {
		name        string
		maxIn       time.Duration
		minIn       time.Duration
		wantMax     time.Duration
		wantMinFunc func(max time.Duration) time.Duration
	}{{
		name:    "below_floor",
		maxIn:   1 * time.Second,
		minIn:   0,
		wantMax: 4 * time.Second,
	}, {
		name:    "above_ceiling",
		maxIn:   1 * time.Hour,
		minIn:   0,
		wantMax: 1800 * time.Second,
	}, {
		name:    "default_min_below_threshold",
		maxIn:   5 * time.Second,
		minIn:   0,
		wantMax: 5 * time.Second,
		wantMinFunc: func(max time.Duration) time.Duration {
			return max
		},
	}, {
		name:    "default_min_ratio",
		maxIn:   30 * time.Second,
		minIn:   0,
		wantMax: 30 * time.Second,
		wantMinFunc: func(max time.Duration) time.Duration {
			return max / 3
		},
	}, {
		name:    "explicit_min_clamped_to_ratio",
		maxIn:   30 * time.Second,
		minIn:   29 * time.Second,
		wantMax: 30 * time.Second,
		wantMinFunc: func(max time.Duration) time.Duration {
			return time.Duration(float64(max) * 0.75)
		},
	}, {
		name:    "explicit_min_below_floor",
		maxIn:   30 * time.Second,
		minIn:   1 * time.Second,
		wantMax: 30 * time.Second,
		wantMinFunc: func(time.Duration) time.Duration {
			return 3 * time.Second
		},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gotMax, gotMin := radv.ClampIntervals(tc.maxIn, tc.minIn)
			assert.Equal(t, tc.wantMax, gotMax)

			if tc.wantMinFunc != nil {
				assert.Equal(t, tc.wantMinFunc(gotMax), gotMin)
			}

			assert.LessOrEqual(t, gotMin, gotMax)
		})
	}
}

// newTestScheduler builds a Scheduler over a fakeConn with a faketime.Clock
// anchored at now, returning both for assertions. AnnounceOnExit is set to
// true.
func newTestScheduler(
	t *testing.T,
	now time.Time,
	maxInterval, minInterval time.Duration,
) (*radv.Scheduler, *fakeConn, *faketime.Clock) {
	t.Helper()

	return newTestSchedulerWithAnnounceOnExit(t, now, maxInterval, minInterval, true)
}

// newTestSchedulerWithAnnounceOnExit is [newTestScheduler] with an explicit
// AnnounceOnExit setting.
func newTestSchedulerWithAnnounceOnExit(
	t *testing.T,
	now time.Time,
	maxInterval, minInterval time.Duration,
	announceOnExit bool,
) (*radv.Scheduler, *fakeConn, *faketime.Clock) {
	t.Helper()

	conn := newFakeConn()
	clock := &faketime.Clock{OnNow: func() time.Time { return now }}
	state := radv.NewState(1500)

	sched := radv.NewScheduler(&radv.SchedulerConfig{
		State:                  state,
		Conn:                   conn,
		Clock:                  clock,
		Rand:                   rand.New(rand.NewSource(1)),
		MAC:                    testMAC,
		MaxRtrAdvInterval:      maxInterval,
		MinRtrAdvInterval:      minInterval,
		AnnounceOnExit:         announceOnExit,
		CommandChannelCapacity: 2,
	})

	return sched, conn, clock
}

func TestScheduler_emitsScheduledMulticast(t *testing.T) {
	now := time.Now()
	sched, conn, _ := newTestScheduler(t, now, 4*time.Second, 0)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return conn.multicastCount() >= 1
	}, testTimeout, 10*time.Millisecond)

	cancel()
	<-done

	// The shutdown sequence appends up to three terminating RAs.
	assert.GreaterOrEqual(t, conn.multicastCount(), 2)
}

func TestScheduler_handlesSolicitationUnicast(t *testing.T) {
	sched, conn, _ := newTestScheduler(t, time.Now(), 1800*time.Second, 0)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	// Wait for the startup multicast RA, which is due immediately; a
	// solicitation handled before it is discarded in its favor.
	require.Eventually(t, func() bool {
		return conn.multicastCount() >= 1
	}, testTimeout, 10*time.Millisecond)

	src := netip.MustParseAddr("fe80::1")
	ok := sched.TrySend(radv.SendRouterAdvertisement{Src: src})
	require.True(t, ok)

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()

		return len(conn.unicast) >= 1
	}, testTimeout, 10*time.Millisecond)

	cancel()
	<-done

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.unicast, 1)
	assert.Equal(t, src, conn.unicast[0].dst)
}

// TestScheduler_announceOnExitDisabled verifies that a Scheduler configured
// with AnnounceOnExit: false sends no terminating RAs on shutdown.
func TestScheduler_announceOnExitDisabled(t *testing.T) {
	now := time.Now()
	sched, conn, _ := newTestSchedulerWithAnnounceOnExit(t, now, 4*time.Second, 0, false)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return conn.multicastCount() >= 1
	}, testTimeout, 10*time.Millisecond)

	sent := conn.multicastCount()

	cancel()
	<-done

	// No terminating burst should follow the regular RA(s) already sent.
	assert.Equal(t, sent, conn.multicastCount())
}

// TestScheduler_SetAnnounceOnExit verifies that a hot-reloaded
// announce-on-exit setting takes effect on the next shutdown.
func TestScheduler_SetAnnounceOnExit(t *testing.T) {
	now := time.Now()
	sched, conn, _ := newTestSchedulerWithAnnounceOnExit(t, now, 4*time.Second, 0, true)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return conn.multicastCount() >= 1
	}, testTimeout, 10*time.Millisecond)

	sched.SetAnnounceOnExit(false)

	// Give the scheduler's own goroutine a chance to process the command
	// before it observes ctx cancellation.
	time.Sleep(50 * time.Millisecond)

	sent := conn.multicastCount()

	cancel()
	<-done

	assert.Equal(t, sent, conn.multicastCount())
}

func TestScheduler_SetIntervals(t *testing.T) {
	sched, _, _ := newTestScheduler(t, time.Now(), 4*time.Second, 0)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	// SetIntervals should not panic or deadlock when accepted by the
	// scheduler's command channel.
	sched.SetIntervals(30*time.Second, 10*time.Second)

	cancel()
	<-done
}
