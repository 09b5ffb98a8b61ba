package radv

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/rsadv/internal/ndp"
)

// Receiver reads Router Solicitations off the link and forwards validated
// ones to the scheduler, per spec.md §4.5.
type Receiver struct {
	logger *slog.Logger
	conn   Conn
	sched  *Scheduler

	// onDrop, if non-nil, is called once for every solicitation dropped by
	// validation or by a full command channel. It exists so callers can
	// observe drops (e.g. for metrics) without Receiver depending on any
	// particular metrics library.
	onDrop func()
}

// NewReceiver returns a Receiver reading from conn and forwarding commands to
// sched.
func NewReceiver(logger *slog.Logger, conn Conn, sched *Scheduler) *Receiver {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	return &Receiver{logger: logger, conn: conn, sched: sched}
}

// OnDrop sets the callback invoked whenever a solicitation is dropped.
func (r *Receiver) OnDrop(f func()) {
	r.onDrop = f
}

// drop logs and invokes the drop callback, if any.
func (r *Receiver) drop(ctx context.Context, reason string) {
	r.logger.DebugContext(ctx, reason)

	if r.onDrop != nil {
		r.onDrop()
	}
}

// Run reads solicitations until ctx is cancelled or the connection returns a
// fatal error.
func (r *Receiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		src, rs, err := r.conn.ReceiveSolicitation(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			r.logger.ErrorContext(ctx, "receiving solicitation", slogutil.KeyError, err)

			continue
		}

		if !r.accept(src, rs) {
			r.drop(ctx, "dropping invalid solicitation")

			continue
		}

		if !r.sched.TrySend(SendRouterAdvertisement{Src: src}) {
			r.drop(ctx, "dropping solicitation, command channel full")
		}
	}
}

// accept implements the RFC 4861, section 7.1.1, validation table from
// spec.md §4.5. Only the checks not already enforced by the kernel socket
// options are performed here.
func (r *Receiver) accept(src netip.Addr, rs *ndp.RouterSolicitation) bool {
	if rs == nil {
		return false
	}

	if !src.IsValid() || src.IsUnspecified() {
		for _, opt := range rs.Options {
			if _, ok := opt.(*ndp.SourceLinkLayerAddress); ok {
				return false
			}
		}
	}

	return true
}
