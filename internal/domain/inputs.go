package domain

import "net/netip"

type CreateSubnetInput struct {
	CIDR        string
	Name        string
	Description string
	VLANID      *int
	Gateway     string
}

type AllocateInput struct {
	// Subnet is a subnet id or CIDR.
	Subnet      string
	Address     string
	Hostname    string
	DeviceType  string
	Owner       string
	Description string
	Kind        AllocationKind
}

// AllocationRequest is an AllocateInput after validation.
type AllocationRequest struct {
	Address     netip.Addr
	Hostname    string
	DeviceType  string
	Owner       string
	Description string
	Kind        AllocationKind
}

type DiscoverInput struct {
	// Target is a comma separated list of CIDRs, addresses or a-b ranges.
	Target  string
	Subnet  string
	Method  string
	Persist bool
}

type DiscoverRequest struct {
	Targets []string
	Method  DiscoveryMethod
}
