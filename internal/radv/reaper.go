package radv

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
)

// Interface is the subset of [platform.Interface] the reaper needs to assign
// host addresses derived from advertised prefixes. It is declared here,
// rather than imported directly, so radv does not depend on platform.
type Interface interface {
	MAC() net.HardwareAddr
	AddAddr(ctx context.Context, addr netip.Addr, prefixLen int, preferred, valid time.Duration) error
}

// Database is the collaborator the reaper persists a snapshot of the current
// prefix and DNS server sets to. [raddb.Database] does not implement it
// directly, since its Store takes raddb's own record type; the daemon wraps
// it in an adapter.
type Database interface {
	Store(ctx context.Context, prefixes []Prefix, dns []netip.Addr) error
}

// ReaperConfig configures a [Reaper].
type ReaperConfig struct {
	Logger *slog.Logger
	State  *State
	Clock  timeutil.Clock
	Iface  Interface
	DB     Database

	// Scheduler receives the NewConfig command after each pass.
	Scheduler *Scheduler
}

// Reaper implements spec.md §4.6: expiring prefixes, re-assigning host
// addresses derived from surviving prefixes, and persisting a snapshot.
type Reaper struct {
	logger *slog.Logger
	state  *State
	clock  timeutil.Clock
	iface  Interface
	db     Database
	sched  *Scheduler
}

// NewReaper returns a Reaper built from conf.
func NewReaper(conf *ReaperConfig) *Reaper {
	logger := conf.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	return &Reaper{
		logger: logger,
		state:  conf.State,
		clock:  conf.Clock,
		iface:  conf.Iface,
		db:     conf.DB,
		sched:  conf.Scheduler,
	}
}

// Run waits for either a change notification or the next prefix expiry,
// whichever comes first, and runs one reaping pass each time, until ctx is
// cancelled.
func (r *Reaper) Run(ctx context.Context) {
	for {
		wait := r.nextWait()

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-r.state.Changed():
			timer.Stop()
		case <-timer.C:
		}

		r.runOnce(ctx)
	}
}

// nextWait returns the duration until the shortest remaining valid lifetime
// across the prefix table, the reaper's wake timer per spec.md §4.6.
func (r *Reaper) nextWait() time.Duration {
	prefixes, _ := r.state.Snapshot()
	if len(prefixes) == 0 {
		return time.Hour
	}

	now := r.clock.Now()

	shortest := time.Duration(1<<63 - 1)
	for _, p := range prefixes {
		if d := p.Valid.Remaining(now); d < shortest {
			shortest = d
		}
	}

	if shortest <= 0 {
		return 0
	}

	return shortest
}

// runOnce executes one reaping pass: expire, re-assign addresses, persist,
// notify the scheduler.
func (r *Reaper) runOnce(ctx context.Context) {
	now := r.clock.Now
	remaining := r.state.ReapExpired(now)

	mac := r.iface.MAC()

	for _, p := range remaining {
		addr := eui64HostAddr(p.Addr, mac)

		err := r.iface.AddAddr(
			ctx,
			addr,
			int(p.Length),
			p.Preferred.Remaining(now()),
			p.Valid.Remaining(now()),
		)
		if err != nil {
			r.logger.ErrorContext(ctx, "assigning host address", "addr", addr, slogutil.KeyError, err)
		}
	}

	_, dns := r.state.Snapshot()
	if err := r.db.Store(ctx, remaining, dns); err != nil {
		r.logger.ErrorContext(ctx, "persisting snapshot", slogutil.KeyError, err)
	}

	if !r.sched.TrySend(NewConfig{}) {
		r.logger.DebugContext(ctx, "dropping new-config notification, command channel full")
	}
}

// eui64HostAddr derives the host address for prefix per spec.md §4.6: the
// modified EUI-64 identifier built from mac, appended to the prefix's first
// 8 bytes. mac must be a 6-byte hardware address.
func eui64HostAddr(prefix netip.Addr, mac net.HardwareAddr) netip.Addr {
	p := prefix.As16()

	var iid [8]byte
	iid[0] = mac[0] ^ 0x02
	iid[1] = mac[1]
	iid[2] = mac[2]
	iid[3] = 0xff
	iid[4] = 0xfe
	iid[5] = mac[3]
	iid[6] = mac[4]
	iid[7] = mac[5]

	var out [16]byte
	copy(out[:8], p[:8])
	copy(out[8:], iid[:])

	return netip.AddrFrom16(out)
}
