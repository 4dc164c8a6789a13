package discovery

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"go4.org/netipx"
)

// ParseTargets turns CIDRs, single addresses and "a-b" ranges into address
// ranges. CIDRs up to /30 exclude their network and broadcast addresses.
// It fails with ErrInvalidTarget on malformed input, an empty set, or more
// than maxTargets addresses (maxTargets <= 0 means no limit).
func ParseTargets(specs []string, maxTargets int) ([]netipx.IPRange, int, error) {
	var (
		ranges []netipx.IPRange
		total  uint64
	)
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		r, err := parseTarget(spec)
		if err != nil {
			return nil, 0, err
		}
		ranges = append(ranges, r)
		total += rangeSize(r)
		if maxTargets > 0 && total > uint64(maxTargets) {
			return nil, 0, fmt.Errorf("%w: more than %d addresses", domain.ErrInvalidTarget, maxTargets)
		}
	}
	if len(ranges) == 0 {
		return nil, 0, fmt.Errorf("%w: no targets", domain.ErrInvalidTarget)
	}
	return ranges, int(total), nil
}

func parseTarget(spec string) (netipx.IPRange, error) {
	var r netipx.IPRange
	switch {
	case strings.Contains(spec, "/"):
		prefix, err := netip.ParsePrefix(spec)
		if err != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: %q", domain.ErrInvalidTarget, spec)
		}
		if first, last, ok := domain.HostRange(prefix); ok {
			r = netipx.IPRangeFrom(first, last)
		} else {
			r = netipx.RangeOfPrefix(prefix.Masked())
		}
	case strings.Contains(spec, "-"):
		parsed, err := netipx.ParseIPRange(spec)
		if err != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: %q", domain.ErrInvalidTarget, spec)
		}
		r = parsed
	default:
		addr, err := netip.ParseAddr(spec)
		if err != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: %q", domain.ErrInvalidTarget, spec)
		}
		r = netipx.IPRangeFrom(addr, addr)
	}

	if !r.IsValid() || !r.From().Is4() {
		return netipx.IPRange{}, fmt.Errorf("%w: %q is not an IPv4 range", domain.ErrInvalidTarget, spec)
	}
	return r, nil
}

func rangeSize(r netipx.IPRange) uint64 {
	from, to := r.From().As4(), r.To().As4()
	return uint64(binary.BigEndian.Uint32(to[:])) - uint64(binary.BigEndian.Uint32(from[:])) + 1
}
