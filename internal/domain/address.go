package domain

import (
	"fmt"
	"net/netip"

	"go4.org/netipx"
)

// HostRange returns the first and last allocatable host of an IPv4 prefix.
// Prefixes longer than /30 have no host range.
func HostRange(prefix netip.Prefix) (first, last netip.Addr, ok bool) {
	if !prefix.Addr().Is4() || prefix.Bits() > 30 {
		return netip.Addr{}, netip.Addr{}, false
	}
	r := netipx.RangeOfPrefix(prefix.Masked())
	return r.From().Next(), r.To().Prev(), true
}

// HostCount is the number of addresses in the host range, gateway included.
func HostCount(prefix netip.Prefix) uint64 {
	if !prefix.Addr().Is4() || prefix.Bits() > 30 {
		return 0
	}
	return (uint64(1) << (32 - prefix.Bits())) - 2
}

// DefaultGateway is the first host address, or the network address when there is no host range.
func DefaultGateway(prefix netip.Prefix) netip.Addr {
	if first, _, ok := HostRange(prefix); ok {
		return first
	}
	return prefix.Masked().Addr()
}

func InHostRange(prefix netip.Prefix, addr netip.Addr) bool {
	first, last, ok := HostRange(prefix)
	if !ok {
		return false
	}
	return addr.Compare(first) >= 0 && addr.Compare(last) <= 0
}

func validateGateway(prefix netip.Prefix, gateway netip.Addr) error {
	if !prefix.Contains(gateway) {
		return fmt.Errorf("gateway not in subnet")
	}
	if _, _, ok := HostRange(prefix); ok && !InHostRange(prefix, gateway) {
		return fmt.Errorf("gateway is the network or broadcast address")
	}
	return nil
}

func parseSubnetPrefix(s string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: invalid cidr", ErrInvalidInput)
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%w: only IPv4 subnets are supported", ErrInvalidInput)
	}
	return prefix.Masked(), nil
}

func parseAddress(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: invalid ip", ErrInvalidInput)
	}
	return addr.Unmap(), nil
}
