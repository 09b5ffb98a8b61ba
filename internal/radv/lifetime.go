// Package radv implements the Router Advertisement state machine: the
// shared prefix/DNS-server state, the multicast/unicast RA scheduler, the
// Router Solicitation receiver, and the expiry reaper.
package radv

import "time"

// lifetimeKind tags the variant of a [Lifetime].
type lifetimeKind uint8

// Recognized lifetime variants.
const (
	lifetimeKindDuration lifetimeKind = iota + 1
	lifetimeKindUntil
)

// Lifetime is a tagged relative-or-absolute expiration: either a fixed
// Duration span, or an Until moment in wall-clock time.
// See RFC 4861, section 4.6.2.
type Lifetime struct {
	until time.Time
	dur   time.Duration
	kind  lifetimeKind
}

// NewDurationLifetime returns a Lifetime whose remaining time is always dur,
// independent of wall-clock time; it does not count down.
func NewDurationLifetime(dur time.Duration) Lifetime {
	return Lifetime{kind: lifetimeKindDuration, dur: dur}
}

// NewUntilLifetime returns a Lifetime that expires at the fixed wall-clock
// moment t.
func NewUntilLifetime(t time.Time) Lifetime {
	return Lifetime{kind: lifetimeKindUntil, until: t}
}

// Remaining returns the time left until l expires, as observed at now. It
// saturates at zero: an already-expired Lifetime never yields a negative
// duration.
//
// A Duration variant is a fixed span, not anchored to a point in time, so it
// always yields its original value regardless of now; only an Until variant
// actually counts down.
func (l Lifetime) Remaining(now time.Time) time.Duration {
	switch l.kind {
	case lifetimeKindUntil:
		if d := l.until.Sub(now); d > 0 {
			return d
		}

		return 0
	case lifetimeKindDuration:
		if l.dur > 0 {
			return l.dur
		}

		return 0
	default:
		return 0
	}
}

// IsUntil reports whether l is an absolute (Until) lifetime, and returns the
// absolute moment if so.
func (l Lifetime) IsUntil() (t time.Time, ok bool) {
	return l.until, l.kind == lifetimeKindUntil
}
