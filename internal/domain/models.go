package domain

import (
	"net"
	"net/netip"
	"time"

	"go4.org/netipx"
)

type AllocationID string

type AllocationKind string

const (
	AllocationStatic  AllocationKind = "static"
	AllocationDynamic AllocationKind = "dynamic"
)

type AllocationStatus string

const (
	StatusActive   AllocationStatus = "active"
	StatusReleased AllocationStatus = "released"
)

const DefaultDeviceType = "unknown"

type Subnet struct {
	ID          int64
	CIDR        netip.Prefix
	Name        string
	Description string
	VLANID      *int
	Gateway     netip.Addr
	CreatedAt   time.Time
}

type Allocation struct {
	ID          AllocationID
	Address     netip.Addr
	SubnetID    int64
	Hostname    string
	DeviceType  string
	Owner       string
	Description string
	Kind        AllocationKind
	Status      AllocationStatus
	CreatedAt   time.Time
	ReleasedAt  *time.Time
}

func (a Allocation) Active() bool {
	return a.Status == StatusActive
}

type DiscoveryMethod string

const (
	MethodPing DiscoveryMethod = "ping"
	MethodARP  DiscoveryMethod = "arp"
	MethodSNMP DiscoveryMethod = "snmp"
	MethodFull DiscoveryMethod = "full"
)

func ParseDiscoveryMethod(s string) (DiscoveryMethod, bool) {
	switch m := DiscoveryMethod(s); m {
	case MethodPing, MethodARP, MethodSNMP, MethodFull:
		return m, true
	case "":
		return MethodFull, true
	}
	return "", false
}

type DiscoveredDevice struct {
	Address  netip.Addr
	MAC      net.HardwareAddr
	Hostname string
	Vendor   string
	LastSeen time.Time
	Method   DiscoveryMethod
}

type ScanState string

const (
	ScanPending     ScanState = "pending"
	ScanProbing     ScanState = "probing"
	ScanAggregating ScanState = "aggregating"
	ScanComplete    ScanState = "complete"
	ScanFailed      ScanState = "failed"
)

// Snapshot is the result of one discovery run. Devices are ordered by address
// and hold at most one entry per address.
type Snapshot struct {
	ID         string
	Targets    []string
	Ranges     []netipx.IPRange
	Method     DiscoveryMethod
	State      ScanState
	StartedAt  time.Time
	FinishedAt time.Time
	Devices    []DiscoveredDevice
	Probed     int
	Partial    bool
}

func (s Snapshot) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Covers reports whether addr was inside the scanned ranges. A partial
// snapshot only carries the ranges that were actually probed. A complete
// snapshot without ranges covers everything; a partial one covers nothing.
func (s Snapshot) Covers(addr netip.Addr) bool {
	if len(s.Ranges) == 0 {
		return !s.Partial
	}
	for _, r := range s.Ranges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

type ConflictKind string

const (
	ConflictStale    ConflictKind = "stale"
	ConflictMismatch ConflictKind = "mismatch"
	ConflictRogue    ConflictKind = "rogue"
)

type Conflict struct {
	Address     netip.Addr
	Kind        ConflictKind
	Allocation  *Allocation
	Device      *DiscoveredDevice
	PreviousMAC net.HardwareAddr
	DetectedAt  time.Time
}

// DeviceIdentity is the hardware identity last observed at an allocated address.
type DeviceIdentity struct {
	AllocationID AllocationID
	Address      netip.Addr
	MAC          net.HardwareAddr
	ObservedAt   time.Time
}

// SubnetUsage holds raw pool counters. Total is the host count; Reserved
// counts hosts inside it that are never allocatable (the gateway).
type SubnetUsage struct {
	Subnet    Subnet
	Allocated uint64
	Reserved  uint64
	Total     uint64
}

type SubnetUtilization struct {
	Subnet    Subnet
	Allocated uint64
	Reserved  uint64
	// Total counts every usable host, the reserved gateway included, so
	// Percent is relative to the whole host range.
	Total     uint64
	Available uint64
	Percent   float64
}

type UtilizationReport struct {
	Subnets   []SubnetUtilization
	Allocated uint64
	Reserved  uint64
	// Total sums the per-subnet host counts, gateways included.
	Total     uint64
	Available uint64
	Percent   float64
}
