// Package memory keeps subnets, allocations and discovery results in process memory.
package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/sasha-s/go-deadlock"
)

type Store struct {
	mu           deadlock.RWMutex
	nextSubnetID int64
	subnets      []domain.Subnet
	allocations  map[domain.AllocationID]domain.Allocation
	snapshots    []domain.Snapshot
	identities   map[domain.AllocationID][]domain.DeviceIdentity
}

func NewStore() *Store {
	return &Store{
		allocations: make(map[domain.AllocationID]domain.Allocation),
		identities:  make(map[domain.AllocationID][]domain.DeviceIdentity),
	}
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) List(context.Context) ([]domain.Subnet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.subnets), nil
}

func (s *Store) Create(_ context.Context, subnet domain.Subnet) (domain.Subnet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subnets {
		if existing.CIDR == subnet.CIDR {
			return domain.Subnet{}, fmt.Errorf("%w: %s already exists", domain.ErrSubnetOverlap, subnet.CIDR)
		}
	}
	s.nextSubnetID++
	subnet.ID = s.nextSubnetID
	s.subnets = append(s.subnets, subnet)
	return subnet, nil
}

func (s *Store) ListBySubnetID(_ context.Context, subnetID int64) ([]domain.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allocations []domain.Allocation
	for _, allocation := range s.allocations {
		if allocation.SubnetID == subnetID {
			allocations = append(allocations, allocation)
		}
	}
	slices.SortFunc(allocations, func(a, b domain.Allocation) int {
		if c := a.Address.Compare(b.Address); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return allocations, nil
}

func (s *Store) Save(_ context.Context, allocation domain.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if allocation.Active() {
		for id, existing := range s.allocations {
			if id != allocation.ID && existing.Active() && existing.Address == allocation.Address {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyActive, allocation.Address)
			}
		}
	}
	s.allocations[allocation.ID] = allocation
	return nil
}

func (s *Store) SaveSnapshot(_ context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.Devices = slices.Clone(snapshot.Devices)
	snapshot.Targets = slices.Clone(snapshot.Targets)
	snapshot.Ranges = slices.Clone(snapshot.Ranges)
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *Store) LatestSnapshot(context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return domain.Snapshot{}, domain.ErrNoSnapshot
	}
	latest := slices.MaxFunc(s.snapshots, func(a, b domain.Snapshot) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return latest, nil
}

func (s *Store) RecordIdentities(_ context.Context, identities []domain.DeviceIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, identity := range identities {
		s.identities[identity.AllocationID] = append(s.identities[identity.AllocationID], identity)
	}
	return nil
}

func (s *Store) LatestIdentities(_ context.Context, before time.Time) (map[domain.AllocationID]domain.DeviceIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[domain.AllocationID]domain.DeviceIdentity)
	for id, history := range s.identities {
		for _, identity := range history {
			if !identity.ObservedAt.Before(before) {
				continue
			}
			current, ok := latest[id]
			if !ok || !identity.ObservedAt.Before(current.ObservedAt) {
				latest[id] = identity
			}
		}
	}
	return latest, nil
}
