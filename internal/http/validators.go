package http

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/Flarenzy/smart-ipam/internal/domain"
)

// Request checks here only reject malformed payloads early; the service owns
// every rule about subnets and addresses.

func (r CreateSubnetRequest) validate() error {
	if strings.TrimSpace(r.CIDR) == "" {
		return fmt.Errorf("%w: cidr is required", domain.ErrInvalidInput)
	}
	if _, err := netip.ParsePrefix(strings.TrimSpace(r.CIDR)); err != nil {
		return fmt.Errorf("%w: invalid cidr %q", domain.ErrInvalidInput, r.CIDR)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	return nil
}

func (r CreateAllocationRequest) validate() error {
	if address := strings.TrimSpace(r.Address); address != "" {
		if _, err := parseAddressParam(address); err != nil {
			return err
		}
	}
	switch domain.AllocationKind(r.Kind) {
	case "", domain.AllocationStatic, domain.AllocationDynamic:
		return nil
	}
	return fmt.Errorf("%w: unknown allocation kind %q", domain.ErrInvalidInput, r.Kind)
}

func (r DiscoveryRequest) validate() error {
	if _, ok := domain.ParseDiscoveryMethod(strings.TrimSpace(r.Method)); !ok {
		return fmt.Errorf("%w: unknown discovery method %q", domain.ErrInvalidInput, r.Method)
	}
	return nil
}

func parseAddressParam(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: invalid IPv4 address %q", domain.ErrInvalidInput, s)
	}
	return addr, nil
}
