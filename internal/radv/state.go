package radv

import (
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/container"
)

// Prefix is an advertised IPv6 prefix and its associated lifetimes.
type Prefix struct {
	// Addr is the prefix's network address.  The PrefixTable keys entries by
	// Addr; the prefix length is part of the record payload, not the key,
	// so re-adding the same address replaces the record even with a
	// different length.
	Addr netip.Addr

	Preferred Lifetime
	Valid     Lifetime

	Length uint8
}

// PrefixTable maps a prefix address to its current record.  Iteration order
// via [PrefixTable.Sorted] is deterministic (sorted by address) so tests and
// RA payload construction are reproducible.
type PrefixTable struct {
	byAddr map[netip.Addr]Prefix
}

// NewPrefixTable returns an empty PrefixTable.
func NewPrefixTable() *PrefixTable {
	return &PrefixTable{byAddr: map[netip.Addr]Prefix{}}
}

// Set inserts p, replacing any existing record for the same address.
func (t *PrefixTable) Set(p Prefix) {
	t.byAddr[p.Addr] = p
}

// Delete removes the record for addr, if any.
func (t *PrefixTable) Delete(addr netip.Addr) {
	delete(t.byAddr, addr)
}

// Len returns the number of prefixes in the table.
func (t *PrefixTable) Len() int {
	return len(t.byAddr)
}

// Sorted returns every prefix in the table, sorted by address.
func (t *PrefixTable) Sorted() []Prefix {
	out := make([]Prefix, 0, len(t.byAddr))
	for _, p := range t.byAddr {
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b Prefix) int { return a.Addr.Compare(b.Addr) })

	return out
}

// DNSSet is a deterministically-ordered set of recursive DNS server
// addresses with lifetimes.
type DNSSet struct {
	addrs     *container.MapSet[netip.Addr]
	lifetimes map[netip.Addr]Lifetime
}

// NewDNSSet returns an empty DNSSet.
func NewDNSSet() *DNSSet {
	return &DNSSet{
		addrs:     container.NewMapSet[netip.Addr](),
		lifetimes: map[netip.Addr]Lifetime{},
	}
}

// Add inserts addr with lifetime, replacing any existing lifetime for addr.
func (s *DNSSet) Add(addr netip.Addr, lifetime Lifetime) {
	s.addrs.Add(addr)
	s.lifetimes[addr] = lifetime
}

// Delete removes addr from the set, if present.
func (s *DNSSet) Delete(addr netip.Addr) {
	s.addrs.Delete(addr)
	delete(s.lifetimes, addr)
}

// Len returns the number of servers in the set.
func (s *DNSSet) Len() int {
	return s.addrs.Len()
}

// Sorted returns every server address in the set, sorted.
func (s *DNSSet) Sorted() []netip.Addr {
	out := s.addrs.Values()
	slices.SortFunc(out, func(a, b netip.Addr) int { return a.Compare(b) })

	return out
}

// State is the prefix table and DNS server set shared by the control
// listener, scheduler, receiver, and reaper.  It is created once at startup
// and lives until process exit.
type State struct {
	mu       sync.RWMutex
	prefixes *PrefixTable
	dns      *DNSSet

	// mtu is the configured link MTU to advertise, or 0 to omit the MTU
	// option. It is mutated by configuration hot-reload, so it is held
	// separately from mu as a plain atomic.
	mtu atomic.Uint32

	// changed signals that the prefix table or DNS set was mutated.  Sends
	// are non-blocking (wake-one, level-triggered): a full channel means a
	// wake is already pending, so the reaper will re-sample state on its
	// next wake regardless.
	changed chan struct{}
}

// NewState returns an empty State with the given MTU.
func NewState(mtu uint32) *State {
	s := &State{
		prefixes: NewPrefixTable(),
		dns:      NewDNSSet(),
		changed:  make(chan struct{}, 1),
	}
	s.mtu.Store(mtu)

	return s
}

// MTU returns the currently configured link MTU, or 0 if the MTU option
// should be omitted.
func (s *State) MTU() uint32 {
	return s.mtu.Load()
}

// SetMTU updates the link MTU advertised in future Router Advertisements.
func (s *State) SetMTU(mtu uint32) {
	s.mtu.Store(mtu)
}

// Changed returns the channel the reaper waits on for mutation
// notifications.
func (s *State) Changed() <-chan struct{} {
	return s.changed
}

// notify performs a non-blocking wake-one send on the changed channel.
func (s *State) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// SetPrefix inserts or replaces p under the write lock and signals change.
func (s *State) SetPrefix(p Prefix) {
	s.mu.Lock()
	s.prefixes.Set(p)
	s.mu.Unlock()

	s.notify()
}

// DeletePrefix removes the prefix at addr under the write lock and signals
// change.
func (s *State) DeletePrefix(addr netip.Addr) {
	s.mu.Lock()
	s.prefixes.Delete(addr)
	s.mu.Unlock()

	s.notify()
}

// SetDNSServer inserts or replaces the DNS server at addr under the write
// lock and signals change.
func (s *State) SetDNSServer(addr netip.Addr, lifetime Lifetime) {
	s.mu.Lock()
	s.dns.Add(addr, lifetime)
	s.mu.Unlock()

	s.notify()
}

// DeleteDNSServer removes the DNS server at addr under the write lock and
// signals change.
func (s *State) DeleteDNSServer(addr netip.Addr) {
	s.mu.Lock()
	s.dns.Delete(addr)
	s.mu.Unlock()

	s.notify()
}

// Snapshot returns the current sorted prefixes and DNS servers under a read
// lock.
func (s *State) Snapshot() (prefixes []Prefix, dns []netip.Addr) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.prefixes.Sorted(), s.dns.Sorted()
}

// ReapExpired removes, under the write lock, every prefix whose valid
// lifetime has fully elapsed as of now, returning the prefixes that remain.
// It does not signal change: the reaper that calls this is itself the
// change consumer and drives the rest of its pass directly.
func (s *State) ReapExpired(now timeNow) []Prefix {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.prefixes.Sorted() {
		if p.Valid.Remaining(now()) == 0 {
			s.prefixes.Delete(p.Addr)
		}
	}

	return s.prefixes.Sorted()
}

// timeNow is the shape of [github.com/AdguardTeam/golibs/timeutil.Clock.Now],
// accepted directly so state.go does not need to import timeutil itself.
type timeNow func() time.Time
