package domain

import (
	"context"
	"time"
)

type SubnetRepository interface {
	List(ctx context.Context) ([]Subnet, error)
	// Create persists a new subnet and returns it with its assigned ID.
	Create(ctx context.Context, subnet Subnet) (Subnet, error)
}

type AllocationRepository interface {
	ListBySubnetID(ctx context.Context, subnetID int64) ([]Allocation, error)
	// Save inserts the allocation or updates the stored record with the same ID.
	Save(ctx context.Context, allocation Allocation) error
}

type DiscoveryRepository interface {
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	LatestSnapshot(ctx context.Context) (Snapshot, error)
	RecordIdentities(ctx context.Context, identities []DeviceIdentity) error
	// LatestIdentities returns, per allocation, the newest identity observed strictly before the given time.
	LatestIdentities(ctx context.Context, before time.Time) (map[AllocationID]DeviceIdentity, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}
