package domain

import (
	"context"
	"net/netip"
	"time"
)

type NetworkService interface {
	ListSubnets(ctx context.Context) ([]Subnet, error)
	CreateSubnet(ctx context.Context, input CreateSubnetInput) (Subnet, error)
	GetSubnet(ctx context.Context, ref string) (Subnet, error)
	Allocate(ctx context.Context, input AllocateInput) (Allocation, error)
	Deallocate(ctx context.Context, address string) (Allocation, error)
	FindAllocation(ctx context.Context, address string) (Allocation, error)
	ListAllocations(ctx context.Context, subnetRef string) ([]Allocation, error)
	Discover(ctx context.Context, input DiscoverInput) (Snapshot, error)
	CheckConflicts(ctx context.Context) ([]Conflict, error)
	Utilization(ctx context.Context, subnetRef string) (UtilizationReport, error)
}

// AddressLedger owns the authoritative allocation state.
type AddressLedger interface {
	CreateSubnet(ctx context.Context, subnet Subnet) (Subnet, error)
	Subnets() []Subnet
	Subnet(id int64) (Subnet, bool)
	Allocate(ctx context.Context, subnetID int64, req AllocationRequest) (Allocation, error)
	Deallocate(ctx context.Context, address netip.Addr) (Allocation, error)
	FindActive(address netip.Addr) (Allocation, bool)
	ListBySubnet(ctx context.Context, subnetID int64) ([]Allocation, error)
	ActiveAllocations() []Allocation
	Usage() []SubnetUsage
}

type Scanner interface {
	Discover(ctx context.Context, req DiscoverRequest) (Snapshot, error)
}

type Clock func() time.Time
