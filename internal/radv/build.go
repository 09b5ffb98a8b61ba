package radv

import (
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/rsadv/internal/ndp"
)

// curHopLimit is the suggested hop limit advertised to hosts for their own
// outgoing unicast traffic, per spec.md §4.4.
const curHopLimit = 64

// buildRouterAdvertisement constructs the RA body for one emission. now is
// used to resolve each prefix's remaining preferred/valid lifetimes. mac is
// the outgoing interface's link-layer address, always included as the
// Source Link-Layer Address option. routerLifetime is 0 for a terminating
// (shutdown) RA and omits prefix information entirely, per spec.md §4.4.
func buildRouterAdvertisement(
	mac net.HardwareAddr,
	mtu uint32,
	prefixes []Prefix,
	dns []netip.Addr,
	routerLifetime time.Duration,
	now time.Time,
) *ndp.RouterAdvertisement {
	ra := &ndp.RouterAdvertisement{
		RouterLifetime: routerLifetime,
		CurHopLimit:    curHopLimit,
	}

	ra.Options = append(ra.Options, &ndp.SourceLinkLayerAddress{Addr: mac})

	if mtu != 0 {
		ra.Options = append(ra.Options, &ndp.MTU{MTU: mtu})
	}

	if len(dns) > 0 {
		ra.Options = append(ra.Options, &ndp.RecursiveDNSServer{
			Lifetime: rdnssLifetime,
			Servers:  dns,
		})
	}

	if routerLifetime > 0 {
		for _, p := range prefixes {
			valid := p.Valid.Remaining(now)
			if valid <= 0 {
				continue
			}

			ra.Options = append(ra.Options, &ndp.PrefixInformation{
				Prefix:            prefixNetworkAddr(p),
				ValidLifetime:     valid,
				PreferredLifetime: p.Preferred.Remaining(now),
				PrefixLength:      p.Length,
				OnLink:            true,
				Autonomous:        true,
			})
		}
	}

	return ra
}

// rdnssLifetime is the fixed lifetime advertised for every RDNSS entry, per
// spec.md §4.4.
const rdnssLifetime = 3600 * time.Second

// prefixNetworkAddr returns p's address with any bits past its prefix length
// masked off, so a prefix added with stray host bits still advertises a
// clean network address.
func prefixNetworkAddr(p Prefix) netip.Addr {
	prefix := netip.PrefixFrom(p.Addr, int(p.Length))

	return prefix.Masked().Addr()
}
