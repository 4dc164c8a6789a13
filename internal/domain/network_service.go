package domain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVLANID = 4094

type networkService struct {
	ledger    AddressLedger
	scanner   Scanner
	discovery DiscoveryRepository
	now       Clock

	mu     sync.Mutex
	latest *Snapshot
}

func NewNetworkService(ledger AddressLedger, scanner Scanner, discovery DiscoveryRepository, now Clock) NetworkService {
	if now == nil {
		now = time.Now
	}
	return &networkService{
		ledger:    ledger,
		scanner:   scanner,
		discovery: discovery,
		now:       now,
	}
}

func (s *networkService) ListSubnets(ctx context.Context) ([]Subnet, error) {
	return s.ledger.Subnets(), nil
}

func (s *networkService) CreateSubnet(ctx context.Context, input CreateSubnetInput) (Subnet, error) {
	prefix, err := parseSubnetPrefix(strings.TrimSpace(input.CIDR))
	if err != nil {
		return Subnet{}, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Subnet{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if input.VLANID != nil && (*input.VLANID < 1 || *input.VLANID > maxVLANID) {
		return Subnet{}, fmt.Errorf("%w: vlan id must be between 1 and %d", ErrInvalidInput, maxVLANID)
	}

	gateway := DefaultGateway(prefix)
	if strings.TrimSpace(input.Gateway) != "" {
		if gateway, err = parseAddress(strings.TrimSpace(input.Gateway)); err != nil {
			return Subnet{}, err
		}
		if err = validateGateway(prefix, gateway); err != nil {
			return Subnet{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	return s.ledger.CreateSubnet(ctx, Subnet{
		CIDR:        prefix,
		Name:        name,
		Description: input.Description,
		VLANID:      input.VLANID,
		Gateway:     gateway,
	})
}

func (s *networkService) GetSubnet(ctx context.Context, ref string) (Subnet, error) {
	return s.resolveSubnet(ref)
}

func (s *networkService) Allocate(ctx context.Context, input AllocateInput) (Allocation, error) {
	subnet, err := s.resolveSubnet(input.Subnet)
	if err != nil {
		return Allocation{}, err
	}

	req := AllocationRequest{
		Hostname:    strings.TrimSpace(input.Hostname),
		DeviceType:  strings.TrimSpace(input.DeviceType),
		Owner:       input.Owner,
		Description: input.Description,
		Kind:        input.Kind,
	}
	if req.DeviceType == "" {
		req.DeviceType = DefaultDeviceType
	}
	if address := strings.TrimSpace(input.Address); address != "" {
		if req.Address, err = parseAddress(address); err != nil {
			return Allocation{}, err
		}
	}

	switch req.Kind {
	case AllocationStatic, AllocationDynamic:
	case "":
		req.Kind = AllocationDynamic
		if req.Address.IsValid() {
			req.Kind = AllocationStatic
		}
	default:
		return Allocation{}, fmt.Errorf("%w: unknown allocation kind %q", ErrInvalidInput, req.Kind)
	}

	return s.ledger.Allocate(ctx, subnet.ID, req)
}

func (s *networkService) Deallocate(ctx context.Context, address string) (Allocation, error) {
	addr, err := parseAddress(strings.TrimSpace(address))
	if err != nil {
		return Allocation{}, err
	}
	return s.ledger.Deallocate(ctx, addr)
}

func (s *networkService) FindAllocation(ctx context.Context, address string) (Allocation, error) {
	addr, err := parseAddress(strings.TrimSpace(address))
	if err != nil {
		return Allocation{}, err
	}
	allocation, ok := s.ledger.FindActive(addr)
	if !ok {
		return Allocation{}, fmt.Errorf("%w: %s", ErrNotActive, addr)
	}
	return allocation, nil
}

func (s *networkService) ListAllocations(ctx context.Context, subnetRef string) ([]Allocation, error) {
	subnet, err := s.resolveSubnet(subnetRef)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListBySubnet(ctx, subnet.ID)
}

func (s *networkService) Discover(ctx context.Context, input DiscoverInput) (Snapshot, error) {
	method, ok := ParseDiscoveryMethod(strings.TrimSpace(input.Method))
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: unknown discovery method %q", ErrInvalidInput, input.Method)
	}

	targets, err := s.discoveryTargets(input)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot, err := s.scanner.Discover(ctx, DiscoverRequest{Targets: targets, Method: method})
	if err != nil {
		return snapshot, err
	}

	if s.discovery != nil {
		// A cancelled scan still returns a partial snapshot worth keeping.
		writeCtx := context.WithoutCancel(ctx)
		identities := IdentitiesFromSnapshot(snapshot, s.ledger.FindActive)
		if len(identities) > 0 {
			if err = s.discovery.RecordIdentities(writeCtx, identities); err != nil {
				return snapshot, err
			}
		}
		if input.Persist {
			if err = s.discovery.SaveSnapshot(writeCtx, snapshot); err != nil {
				return snapshot, err
			}
		}
	}

	s.mu.Lock()
	s.latest = &snapshot
	s.mu.Unlock()
	return snapshot, nil
}

func (s *networkService) CheckConflicts(ctx context.Context) ([]Conflict, error) {
	snapshot, err := s.latestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var identities map[AllocationID]DeviceIdentity
	if s.discovery != nil {
		if identities, err = s.discovery.LatestIdentities(ctx, snapshot.StartedAt); err != nil {
			return nil, err
		}
	}

	return Reconcile(ReconcileInput{
		Allocations: s.ledger.ActiveAllocations(),
		Snapshot:    snapshot,
		Identities:  identities,
		Now:         s.now(),
	}), nil
}

func (s *networkService) Utilization(ctx context.Context, subnetRef string) (UtilizationReport, error) {
	usages := s.ledger.Usage()
	if strings.TrimSpace(subnetRef) == "" {
		return Summarize(usages), nil
	}

	subnet, err := s.resolveSubnet(subnetRef)
	if err != nil {
		return UtilizationReport{}, err
	}
	usages = slices.DeleteFunc(usages, func(u SubnetUsage) bool {
		return u.Subnet.ID != subnet.ID
	})
	return Summarize(usages), nil
}

func (s *networkService) latestSnapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	latest := s.latest
	s.mu.Unlock()
	if latest != nil {
		return *latest, nil
	}
	if s.discovery == nil {
		return Snapshot{}, ErrNoSnapshot
	}

	snapshot, err := s.discovery.LatestSnapshot(ctx)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{}, ErrNoSnapshot
	}
	return snapshot, err
}

func (s *networkService) discoveryTargets(input DiscoverInput) ([]string, error) {
	if target := strings.TrimSpace(input.Target); target != "" {
		var targets []string
		for _, part := range strings.Split(target, ",") {
			if part = strings.TrimSpace(part); part != "" {
				targets = append(targets, part)
			}
		}
		return targets, nil
	}

	if strings.TrimSpace(input.Subnet) != "" {
		subnet, err := s.resolveSubnet(input.Subnet)
		if err != nil {
			return nil, err
		}
		return []string{subnet.CIDR.String()}, nil
	}

	subnets := s.ledger.Subnets()
	if len(subnets) == 0 {
		return nil, fmt.Errorf("%w: no subnets to scan", ErrInvalidTarget)
	}
	targets := make([]string, 0, len(subnets))
	for _, subnet := range subnets {
		targets = append(targets, subnet.CIDR.String())
	}
	return targets, nil
}

// resolveSubnet accepts a numeric subnet id or a CIDR.
func (s *networkService) resolveSubnet(ref string) (Subnet, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Subnet{}, fmt.Errorf("%w: subnet is required", ErrInvalidInput)
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		subnet, ok := s.ledger.Subnet(id)
		if !ok {
			return Subnet{}, ErrSubnetNotFound
		}
		return subnet, nil
	}

	prefix, err := parseSubnetPrefix(ref)
	if err != nil {
		return Subnet{}, err
	}
	for _, subnet := range s.ledger.Subnets() {
		if subnet.CIDR == prefix {
			return subnet, nil
		}
	}
	return Subnet{}, ErrSubnetNotFound
}
