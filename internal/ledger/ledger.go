// Package ledger is the authoritative record of which addresses are allocated.
//
// Subnet creation takes the registry write lock; allocation and release only
// hold the registry read lock long enough to find their subnet and then run
// under that subnet's own mutex, so work on different subnets never contends.
// A pool reservation and the persisted record it belongs to change together
// inside that section, or not at all.
package ledger

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"sort"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/Flarenzy/smart-ipam/internal/pool"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

// ReclaimPolicy decides whether a dynamic allocation has expired.
type ReclaimPolicy func(allocation domain.Allocation, now time.Time) bool

// NeverExpire keeps every allocation until it is released explicitly.
func NeverExpire(domain.Allocation, time.Time) bool {
	return false
}

type subnetState struct {
	mu     deadlock.Mutex
	subnet domain.Subnet
	pool   *pool.Pool
	active map[netip.Addr]domain.Allocation
}

type Ledger struct {
	subnets     domain.SubnetRepository
	allocations domain.AllocationRepository
	logger      *slog.Logger
	now         domain.Clock
	newID       func() domain.AllocationID
	reclaim     ReclaimPolicy

	mu     deadlock.RWMutex
	states []*subnetState // ordered by network address
	byID   map[int64]*subnetState
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithClock(now domain.Clock) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithIDGenerator(newID func() domain.AllocationID) Option {
	return func(l *Ledger) {
		if newID != nil {
			l.newID = newID
		}
	}
}

func WithReclaimPolicy(policy ReclaimPolicy) Option {
	return func(l *Ledger) {
		if policy != nil {
			l.reclaim = policy
		}
	}
}

func New(subnets domain.SubnetRepository, allocations domain.AllocationRepository, opts ...Option) *Ledger {
	l := &Ledger{
		subnets:     subnets,
		allocations: allocations,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		newID:       func() domain.AllocationID { return domain.AllocationID(uuid.NewString()) },
		reclaim:     NeverExpire,
		byID:        make(map[int64]*subnetState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds a ledger from persisted subnets and their active allocations.
func Load(ctx context.Context, subnets domain.SubnetRepository, allocations domain.AllocationRepository, opts ...Option) (*Ledger, error) {
	l := New(subnets, allocations, opts...)

	records, err := subnets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subnets: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, subnet := range records {
		if other := l.overlapping(subnet.CIDR); other != nil {
			return nil, fmt.Errorf("load subnet %s: %w: %s", subnet.CIDR, domain.ErrSubnetOverlap, other.subnet.CIDR)
		}

		st := newSubnetState(subnet)
		stored, err := allocations.ListBySubnetID(ctx, subnet.ID)
		if err != nil {
			return nil, fmt.Errorf("load allocations for subnet %d: %w", subnet.ID, err)
		}
		for _, allocation := range stored {
			if !allocation.Active() {
				continue
			}
			if err = st.pool.ReserveSpecific(allocation.Address); err != nil {
				return nil, fmt.Errorf("load allocation %s: %w", allocation.ID, err)
			}
			st.active[allocation.Address] = allocation
		}
		l.insertLocked(st)

		allocated, total := st.pool.Utilization()
		l.logger.DebugContext(ctx, "subnet loaded",
			"subnet_id", subnet.ID,
			"cidr", subnet.CIDR.String(),
			"allocated", allocated,
			"total", total,
		)
	}
	return l, nil
}

func newSubnetState(subnet domain.Subnet) *subnetState {
	return &subnetState{
		subnet: subnet,
		pool:   pool.New(subnet.CIDR, subnet.Gateway),
		active: make(map[netip.Addr]domain.Allocation),
	}
}

func (l *Ledger) CreateSubnet(ctx context.Context, subnet domain.Subnet) (domain.Subnet, error) {
	subnet.CIDR = subnet.CIDR.Masked()
	if !subnet.Gateway.IsValid() {
		subnet.Gateway = domain.DefaultGateway(subnet.CIDR)
	}
	if subnet.CreatedAt.IsZero() {
		subnet.CreatedAt = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if other := l.overlapping(subnet.CIDR); other != nil {
		return domain.Subnet{}, fmt.Errorf("%w: %s intersects %s", domain.ErrSubnetOverlap, subnet.CIDR, other.subnet.CIDR)
	}

	created, err := l.subnets.Create(ctx, subnet)
	if err != nil {
		return domain.Subnet{}, err
	}
	l.insertLocked(newSubnetState(created))
	return created, nil
}

func (l *Ledger) Subnets() []domain.Subnet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	subnets := make([]domain.Subnet, 0, len(l.states))
	for _, st := range l.states {
		subnets = append(subnets, st.subnet)
	}
	return subnets
}

func (l *Ledger) Subnet(id int64) (domain.Subnet, bool) {
	st, ok := l.state(id)
	if !ok {
		return domain.Subnet{}, false
	}
	return st.subnet, true
}

func (l *Ledger) Allocate(ctx context.Context, subnetID int64, req domain.AllocationRequest) (domain.Allocation, error) {
	st, ok := l.state(subnetID)
	if !ok {
		return domain.Allocation{}, domain.ErrSubnetNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	var (
		address = req.Address
		err     error
	)
	if address.IsValid() {
		err = st.pool.ReserveSpecific(address)
	} else {
		address, err = st.pool.ReserveNextFree()
	}
	if err != nil {
		return domain.Allocation{}, err
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.AllocationDynamic
		if req.Address.IsValid() {
			kind = domain.AllocationStatic
		}
	}
	allocation := domain.Allocation{
		ID:          l.newID(),
		Address:     address,
		SubnetID:    subnetID,
		Hostname:    req.Hostname,
		DeviceType:  req.DeviceType,
		Owner:       req.Owner,
		Description: req.Description,
		Kind:        kind,
		Status:      domain.StatusActive,
		CreatedAt:   l.now(),
	}

	if err = l.allocations.Save(ctx, allocation); err != nil {
		if releaseErr := st.pool.Release(address); releaseErr != nil {
			l.logger.ErrorContext(ctx, "rollback of pool reservation failed",
				"address", address.String(),
				"err", releaseErr.Error(),
			)
		}
		return domain.Allocation{}, fmt.Errorf("save allocation %s: %w", address, err)
	}

	st.active[address] = allocation
	return allocation, nil
}

func (l *Ledger) Deallocate(ctx context.Context, address netip.Addr) (domain.Allocation, error) {
	address = address.Unmap()
	st := l.lookup(address)
	if st == nil {
		return domain.Allocation{}, fmt.Errorf("%w: %s", domain.ErrNotActive, address)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	allocation, ok := st.active[address]
	if !ok {
		return domain.Allocation{}, fmt.Errorf("%w: %s", domain.ErrNotActive, address)
	}
	return l.releaseLocked(ctx, st, allocation, l.now())
}

// releaseLocked persists the release first so a storage failure leaves the
// allocation active. The caller holds st.mu.
func (l *Ledger) releaseLocked(ctx context.Context, st *subnetState, allocation domain.Allocation, now time.Time) (domain.Allocation, error) {
	released := allocation
	released.Status = domain.StatusReleased
	released.ReleasedAt = &now

	if err := l.allocations.Save(ctx, released); err != nil {
		return domain.Allocation{}, fmt.Errorf("save allocation %s: %w", allocation.Address, err)
	}
	if err := st.pool.Release(allocation.Address); err != nil {
		l.logger.ErrorContext(ctx, "pool release failed after record update",
			"address", allocation.Address.String(),
			"err", err.Error(),
		)
	}
	delete(st.active, allocation.Address)
	return released, nil
}

func (l *Ledger) FindActive(address netip.Addr) (domain.Allocation, bool) {
	address = address.Unmap()
	st := l.lookup(address)
	if st == nil {
		return domain.Allocation{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	allocation, ok := st.active[address]
	return allocation, ok
}

// ListBySubnet returns active and released records ordered by address, then creation time.
func (l *Ledger) ListBySubnet(ctx context.Context, subnetID int64) ([]domain.Allocation, error) {
	st, ok := l.state(subnetID)
	if !ok {
		return nil, domain.ErrSubnetNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	allocations, err := l.allocations.ListBySubnetID(ctx, subnetID)
	if err != nil {
		return nil, err
	}
	sortAllocations(allocations)
	return allocations, nil
}

func (l *Ledger) ActiveAllocations() []domain.Allocation {
	var allocations []domain.Allocation
	for _, st := range l.snapshotStates() {
		st.mu.Lock()
		for _, allocation := range st.active {
			allocations = append(allocations, allocation)
		}
		st.mu.Unlock()
	}
	sortAllocations(allocations)
	return allocations
}

func (l *Ledger) Usage() []domain.SubnetUsage {
	states := l.snapshotStates()
	usages := make([]domain.SubnetUsage, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		allocated, total := st.pool.Utilization()
		usages = append(usages, domain.SubnetUsage{
			Subnet:    st.subnet,
			Allocated: allocated,
			Reserved:  st.pool.Reserved(),
			Total:     total,
		})
		st.mu.Unlock()
	}
	return usages
}

// ReclaimExpired releases dynamic allocations the reclaim policy reports as
// expired. With the default policy it does nothing.
func (l *Ledger) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	reclaimed := 0
	for _, st := range l.snapshotStates() {
		n, err := l.reclaimSubnet(ctx, st, now)
		reclaimed += n
		if err != nil {
			return reclaimed, err
		}
	}
	return reclaimed, nil
}

func (l *Ledger) reclaimSubnet(ctx context.Context, st *subnetState, now time.Time) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var expired []domain.Allocation
	for _, allocation := range st.active {
		if allocation.Kind == domain.AllocationDynamic && l.reclaim(allocation, now) {
			expired = append(expired, allocation)
		}
	}
	sortAllocations(expired)

	for i, allocation := range expired {
		if _, err := l.releaseLocked(ctx, st, allocation, now); err != nil {
			return i, err
		}
		l.logger.InfoContext(ctx, "expired allocation reclaimed",
			"subnet_id", st.subnet.ID,
			"address", allocation.Address.String(),
		)
	}
	return len(expired), nil
}

func (l *Ledger) state(id int64) (*subnetState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.byID[id]
	return st, ok
}

// lookup finds the subnet containing address in O(log n); subnets never overlap.
func (l *Ledger) lookup(address netip.Addr) *subnetState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := sort.Search(len(l.states), func(i int) bool {
		return l.states[i].subnet.CIDR.Addr().Compare(address) > 0
	}) - 1
	if i < 0 || !l.states[i].subnet.CIDR.Contains(address) {
		return nil
	}
	return l.states[i]
}

func (l *Ledger) snapshotStates() []*subnetState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.states)
}

// overlapping returns a registered subnet intersecting prefix. The caller holds l.mu.
func (l *Ledger) overlapping(prefix netip.Prefix) *subnetState {
	for _, st := range l.states {
		if st.subnet.CIDR.Overlaps(prefix) {
			return st
		}
	}
	return nil
}

// insertLocked keeps states ordered by network address. The caller holds l.mu for writing.
func (l *Ledger) insertLocked(st *subnetState) {
	i, _ := slices.BinarySearchFunc(l.states, st.subnet.CIDR.Addr(), func(s *subnetState, addr netip.Addr) int {
		return s.subnet.CIDR.Addr().Compare(addr)
	})
	l.states = slices.Insert(l.states, i, st)
	l.byID[st.subnet.ID] = st
}

func sortAllocations(allocations []domain.Allocation) {
	slices.SortStableFunc(allocations, func(a, b domain.Allocation) int {
		if c := a.Address.Compare(b.Address); c != 0 {
			return c
		}
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
}
