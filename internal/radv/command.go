package radv

import (
	"net/netip"
	"time"
)

// Command is a message sent to the [Scheduler] by the [Receiver] or the
// [Reaper].
type Command interface {
	isCommand()
}

// SendRouterAdvertisement requests that the scheduler emit a Router
// Advertisement in response to a received Router Solicitation from Src. An
// unspecified Src (the zero [netip.Addr]) means the solicitation's source
// was ::, so the response must be multicast rather than unicast.
type SendRouterAdvertisement struct {
	Src netip.Addr
}

func (SendRouterAdvertisement) isCommand() {}

// NewConfig notifies the scheduler that the shared state changed (a prefix
// or DNS server was added, removed, or expired), so the initial-burst
// semantics should apply to the next multicast RA.
type NewConfig struct{}

func (NewConfig) isCommand() {}

// UpdateIntervals requests that the scheduler adopt new RA interval bounds,
// e.g. after a configuration file hot-reload. The new bounds are clamped via
// [ClampIntervals] exactly as at startup.
type UpdateIntervals struct {
	Max time.Duration
	Min time.Duration
}

func (UpdateIntervals) isCommand() {}

// SetAnnounceOnExit requests that the scheduler adopt a new
// announce-on-exit setting, e.g. after a configuration file hot-reload. See
// [SchedulerConfig.AnnounceOnExit].
type SetAnnounceOnExit struct {
	Enabled bool
}

func (SetAnnounceOnExit) isCommand() {}
