package radv

import (
	"context"
	"log/slog"
	"math/rand"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/rsadv/internal/ndp"
)

// RFC 4861-mandated and spec-mandated scheduling constants, see spec.md
// §4.4.
const (
	// minRtrAdvIntervalFloor is the hard lower bound for MinRtrAdvInterval.
	minRtrAdvIntervalFloor = 3 * time.Second

	// maxRtrAdvIntervalFloor is the hard lower bound for MaxRtrAdvInterval.
	maxRtrAdvIntervalFloor = 4 * time.Second

	// maxRtrAdvIntervalCeil is the hard upper bound for MaxRtrAdvInterval.
	maxRtrAdvIntervalCeil = 1800 * time.Second

	// minRtrAdvIntervalRatio is the fraction of MaxRtrAdvInterval that
	// bounds MinRtrAdvInterval from above.
	minRtrAdvIntervalRatio = 0.75

	// defaultMinRtrAdvIntervalRatio derives the default MinRtrAdvInterval
	// from MaxRtrAdvInterval when the configured value is 0.
	defaultMinRtrAdvIntervalRatio = 1.0 / 3.0

	// defaultMinRtrAdvIntervalThreshold is the smallest MaxRtrAdvInterval for
	// which the ratio-derived default applies; below it, the default equals
	// MaxRtrAdvInterval itself.
	defaultMinRtrAdvIntervalThreshold = 9 * time.Second

	// maxInitialRtrAdvertisements is the number of RAs, after a config
	// change, that use the shortened initial-burst interval.
	maxInitialRtrAdvertisements = 3

	// maxInitialRtrAdvertInterval bounds the interval between RAs during
	// the initial burst.
	maxInitialRtrAdvertInterval = 16 * time.Second

	// maxFinalRtrAdvertisements is the number of terminating RAs sent on
	// shutdown.
	maxFinalRtrAdvertisements = 3

	// maxRADelayTime bounds the random delay before a solicited unicast RA.
	maxRADelayTime = 500 * time.Millisecond

	// minDelayBetweenRAs is the minimum spacing enforced between multicast
	// RAs, including ones triggered by an unspecified-source solicitation.
	minDelayBetweenRAs = 3 * time.Second

	// commandChannelCapacity is the default buffer size of the scheduler's
	// command channel.
	commandChannelCapacity = 16
)

// ClampIntervals clamps a configured (max, min) Router Advertisement
// interval pair to the bounds required by RFC 4861, section 6.2.1, and
// spec.md §4.4. A zero min selects the RFC-recommended default derived from
// max.
func ClampIntervals(maxInterval, minInterval time.Duration) (maxOut, minOut time.Duration) {
	maxOut = maxInterval
	if maxOut < maxRtrAdvIntervalFloor {
		maxOut = maxRtrAdvIntervalFloor
	} else if maxOut > maxRtrAdvIntervalCeil {
		maxOut = maxRtrAdvIntervalCeil
	}

	if minInterval == 0 {
		if maxOut >= defaultMinRtrAdvIntervalThreshold {
			minOut = time.Duration(float64(maxOut) * defaultMinRtrAdvIntervalRatio)
		} else {
			minOut = maxOut
		}

		return maxOut, minOut
	}

	minOut = minInterval
	ceil := time.Duration(float64(maxOut) * minRtrAdvIntervalRatio)
	if minOut > ceil {
		minOut = ceil
	}
	if minOut < minRtrAdvIntervalFloor {
		minOut = minRtrAdvIntervalFloor
	}

	return maxOut, minOut
}

// SchedulerConfig configures a [Scheduler].
type SchedulerConfig struct {
	Logger *slog.Logger
	State  *State
	Conn   Conn
	Clock  timeutil.Clock
	Rand   *rand.Rand
	MAC    net.HardwareAddr

	MaxRtrAdvInterval time.Duration
	MinRtrAdvInterval time.Duration

	// AnnounceOnExit controls whether [Scheduler.Run] emits the terminating
	// RA burst on shutdown, per spec.md §6. Operators who don't want the
	// daemon tearing down hosts' default route on a routine restart set
	// this to false.
	AnnounceOnExit bool

	// CommandChannelCapacity overrides [commandChannelCapacity] when
	// non-zero; tests use a small value to exercise channel-full drops.
	CommandChannelCapacity int
}

// Scheduler drives the Router Advertisement state machine described in
// spec.md §4.4: a single event loop prioritizing, in order, shutdown,
// scheduled multicast ticks, solicited-response commands, and configuration
// changes.
type Scheduler struct {
	logger *slog.Logger
	state  *State
	conn   Conn
	clock  timeutil.Clock
	rng    *rand.Rand
	mac    net.HardwareAddr

	maxInterval time.Duration
	minInterval time.Duration

	announceOnExit bool

	commands chan Command

	lastMulticastRA time.Time
	nextMulticastRA time.Time
	initialRASent   int
}

// NewScheduler builds a Scheduler from conf. conf.MaxRtrAdvInterval and
// conf.MinRtrAdvInterval are clamped via [ClampIntervals].
func NewScheduler(conf *SchedulerConfig) *Scheduler {
	maxInterval, minInterval := ClampIntervals(conf.MaxRtrAdvInterval, conf.MinRtrAdvInterval)

	capacity := conf.CommandChannelCapacity
	if capacity == 0 {
		capacity = commandChannelCapacity
	}

	logger := conf.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	now := conf.Clock.Now()

	return &Scheduler{
		logger:          logger,
		state:           conf.State,
		conn:            conf.Conn,
		clock:           conf.Clock,
		rng:             conf.Rand,
		mac:             conf.MAC,
		maxInterval:     maxInterval,
		minInterval:     minInterval,
		announceOnExit:  conf.AnnounceOnExit,
		commands:        make(chan Command, capacity),
		lastMulticastRA: now,
		nextMulticastRA: now,
	}
}

// Commands returns the channel the receiver and reaper send [Command]s on.
// Sends should be non-blocking; see [Scheduler.TrySend].
func (s *Scheduler) Commands() chan<- Command {
	return s.commands
}

// TrySend attempts a non-blocking send of cmd, reporting whether it was
// accepted. A full channel means sent == false; per spec.md §4.5 the caller
// drops the command rather than blocking.
func (s *Scheduler) TrySend(cmd Command) (sent bool) {
	select {
	case s.commands <- cmd:
		return true
	default:
		return false
	}
}

// intervalDuration draws a uniform random interval in [min, max], clamped
// further to maxInitialRtrAdvertInterval during the initial burst.
func (s *Scheduler) intervalDuration() time.Duration {
	maxI := s.maxInterval
	if s.initialRASent < maxInitialRtrAdvertisements && maxI > maxInitialRtrAdvertInterval {
		maxI = maxInitialRtrAdvertInterval
	}

	minI := s.minInterval
	if minI > maxI {
		minI = maxI
	}

	span := maxI - minI
	if span <= 0 {
		return minI
	}

	return minI + time.Duration(s.rng.Int63n(int64(span)+1))
}

// Run executes the scheduler's event loop until ctx is cancelled, at which
// point, if announce-on-exit is enabled, it emits up to
// [maxFinalRtrAdvertisements] terminating RAs before returning.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if s.announceOnExit {
				s.runShutdown(context.WithoutCancel(ctx))
			}

			return
		default:
		}

		timer := time.NewTimer(max(0, time.Until(s.nextMulticastRA)))

		select {
		case <-ctx.Done():
			timer.Stop()
			if s.announceOnExit {
				s.runShutdown(context.WithoutCancel(ctx))
			}

			return
		case <-timer.C:
			s.emitScheduledMulticast(ctx)
		case cmd := <-s.commands:
			timer.Stop()
			s.handleCommand(ctx, cmd)
		}
	}
}

// runShutdown emits the terminating RA burst described in spec.md §4.4.
func (s *Scheduler) runShutdown(ctx context.Context) {
	for range maxFinalRtrAdvertisements {
		ra := buildRouterAdvertisement(s.mac, s.state.MTU(), nil, nil, 0, s.clock.Now())

		if err := s.conn.SendMulticast(ctx, ndp.Packet{Body: ra}); err != nil {
			s.logger.ErrorContext(ctx, "sending terminating ra", slogutil.KeyError, err)
		}
	}
}

// emitScheduledMulticast sends the regular unsolicited multicast RA and
// advances the schedule per spec.md §4.4 rule 2.
func (s *Scheduler) emitScheduledMulticast(ctx context.Context) {
	now := s.clock.Now()
	s.sendMulticastRA(ctx, now)

	s.lastMulticastRA = s.nextMulticastRA
	s.nextMulticastRA = s.nextMulticastRA.Add(s.intervalDuration())

	if s.initialRASent < maxInitialRtrAdvertisements {
		s.initialRASent++
	}
}

// sendMulticastRA builds and sends one multicast RA from current state.
func (s *Scheduler) sendMulticastRA(ctx context.Context, now time.Time) {
	prefixes, dns := s.state.Snapshot()
	routerLifetime := min(3*s.maxInterval, 65535*time.Second)

	ra := buildRouterAdvertisement(s.mac, s.state.MTU(), prefixes, dns, routerLifetime, now)
	if err := s.conn.SendMulticast(ctx, ndp.Packet{Body: ra}); err != nil {
		s.logger.ErrorContext(ctx, "sending multicast ra", slogutil.KeyError, err)
	}
}

// handleCommand dispatches a command received from the receiver or reaper,
// implementing spec.md §4.4 rules 3 and 4.
func (s *Scheduler) handleCommand(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case SendRouterAdvertisement:
		s.handleSolicitation(ctx, c.Src)
	case NewConfig:
		now := s.clock.Now()
		s.nextMulticastRA = now
		s.initialRASent = 0
	case UpdateIntervals:
		s.maxInterval, s.minInterval = ClampIntervals(c.Max, c.Min)
	case SetAnnounceOnExit:
		s.announceOnExit = c.Enabled
	}
}

// SetIntervals requests new RA interval bounds, applied from within the
// scheduler's own goroutine on its next loop iteration. A full command
// channel drops the request; the next explicit reload will retry it.
func (s *Scheduler) SetIntervals(maxInterval, minInterval time.Duration) {
	s.TrySend(UpdateIntervals{Max: maxInterval, Min: minInterval})
}

// SetAnnounceOnExit requests a new announce-on-exit setting, applied from
// within the scheduler's own goroutine on its next loop iteration. A full
// command channel drops the request; the next explicit reload will retry
// it.
func (s *Scheduler) SetAnnounceOnExit(enabled bool) {
	s.TrySend(SetAnnounceOnExit{Enabled: enabled})
}

// handleSolicitation implements spec.md §4.4 rule 3.
func (s *Scheduler) handleSolicitation(ctx context.Context, src netip.Addr) {
	now := s.clock.Now()
	delay := time.Duration(s.rng.Int63n(int64(maxRADelayTime)))
	fire := now.Add(delay)

	if fire.After(s.nextMulticastRA) {
		// The upcoming multicast RA will serve this host; discard.
		return
	}

	if !src.IsValid() || src.IsUnspecified() {
		gap := minDelayBetweenRAs - now.Sub(s.lastMulticastRA)
		if gap < 0 {
			gap = 0
		}

		s.nextMulticastRA = s.nextMulticastRA.Add(gap).Add(delay)

		return
	}

	time.Sleep(time.Until(fire))

	prefixes, dns := s.state.Snapshot()
	routerLifetime := min(3*s.maxInterval, 65535*time.Second)
	ra := buildRouterAdvertisement(s.mac, s.state.MTU(), prefixes, dns, routerLifetime, s.clock.Now())

	if err := s.conn.SendUnicast(ctx, ndp.Packet{Body: ra}, src); err != nil {
		s.logger.ErrorContext(ctx, "sending unicast ra", slogutil.KeyError, err)
	}
}
