package domain

import (
	"bytes"
	"cmp"
	"net/netip"
	"slices"
	"time"
)

type ReconcileInput struct {
	Allocations []Allocation
	Snapshot    Snapshot
	// Identities holds the identity recorded for each allocation before the snapshot was taken.
	Identities map[AllocationID]DeviceIdentity
	Now        time.Time
}

// Reconcile compares the active allocations with what a discovery run observed.
// It does not mutate its inputs and returns conflicts ordered by address, then kind.
func Reconcile(in ReconcileInput) []Conflict {
	devices := make(map[netip.Addr]DiscoveredDevice, len(in.Snapshot.Devices))
	for _, device := range in.Snapshot.Devices {
		devices[device.Address] = device
	}

	var conflicts []Conflict
	allocated := make(map[netip.Addr]struct{}, len(in.Allocations))
	for _, allocation := range in.Allocations {
		if !allocation.Active() {
			continue
		}
		allocated[allocation.Address] = struct{}{}
		if !in.Snapshot.Covers(allocation.Address) {
			continue
		}

		device, seen := devices[allocation.Address]
		if !seen {
			conflicts = append(conflicts, Conflict{
				Address:    allocation.Address,
				Kind:       ConflictStale,
				Allocation: &allocation,
				DetectedAt: in.Now,
			})
			continue
		}

		previous, known := in.Identities[allocation.ID]
		if !known || !identityChanged(previous.MAC, device.MAC) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Address:     allocation.Address,
			Kind:        ConflictMismatch,
			Allocation:  &allocation,
			Device:      &device,
			PreviousMAC: previous.MAC,
			DetectedAt:  in.Now,
		})
	}

	for _, device := range in.Snapshot.Devices {
		if _, ok := allocated[device.Address]; ok {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Address:    device.Address,
			Kind:       ConflictRogue,
			Device:     &device,
			DetectedAt: in.Now,
		})
	}

	slices.SortFunc(conflicts, func(a, b Conflict) int {
		if c := a.Address.Compare(b.Address); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	return conflicts
}

// An observation without a MAC says nothing about identity.
func identityChanged(previous, current []byte) bool {
	if len(previous) == 0 || len(current) == 0 {
		return false
	}
	return !bytes.Equal(previous, current)
}

// IdentitiesFromSnapshot pairs observed MACs with the allocation active at the same address.
func IdentitiesFromSnapshot(snapshot Snapshot, active func(netip.Addr) (Allocation, bool)) []DeviceIdentity {
	var identities []DeviceIdentity
	for _, device := range snapshot.Devices {
		if len(device.MAC) == 0 {
			continue
		}
		allocation, ok := active(device.Address)
		if !ok {
			continue
		}
		observedAt := device.LastSeen
		if observedAt.IsZero() {
			observedAt = snapshot.FinishedAt
		}
		identities = append(identities, DeviceIdentity{
			AllocationID: allocation.ID,
			Address:      device.Address,
			MAC:          device.MAC,
			ObservedAt:   observedAt,
		})
	}
	return identities
}
