package metrics

import (
	"context"

	"github.com/Flarenzy/smart-ipam/internal/domain"
)

type instrumentedNetworkService struct {
	domain.NetworkService
	metrics *Metrics
}

// NewInstrumentedNetworkService records outcomes of the state-changing and
// discovery operations. Reads pass straight through.
func NewInstrumentedNetworkService(m *Metrics, next domain.NetworkService) domain.NetworkService {
	if m == nil || next == nil {
		return next
	}
	return &instrumentedNetworkService{NetworkService: next, metrics: m}
}

func (s *instrumentedNetworkService) Allocate(ctx context.Context, input domain.AllocateInput) (domain.Allocation, error) {
	allocation, err := s.NetworkService.Allocate(ctx, input)
	kind := string(allocation.Kind)
	if err != nil {
		kind = string(input.Kind)
		if kind == "" {
			kind = "unknown"
		}
	}
	s.metrics.Allocations.WithLabelValues(kind, result(err)).Inc()
	return allocation, err
}

func (s *instrumentedNetworkService) Deallocate(ctx context.Context, address string) (domain.Allocation, error) {
	allocation, err := s.NetworkService.Deallocate(ctx, address)
	s.metrics.Deallocations.WithLabelValues(result(err)).Inc()
	return allocation, err
}

func (s *instrumentedNetworkService) Discover(ctx context.Context, input domain.DiscoverInput) (domain.Snapshot, error) {
	snapshot, err := s.NetworkService.Discover(ctx, input)
	method := string(snapshot.Method)
	if method == "" {
		method = input.Method
	}
	if method == "" {
		method = "unknown"
	}
	s.metrics.DiscoveryScans.WithLabelValues(method, result(err)).Inc()
	if err != nil {
		return snapshot, err
	}

	s.metrics.DiscoveryDuration.WithLabelValues(method).Observe(snapshot.Duration().Seconds())
	s.metrics.DiscoveredDevices.Set(float64(len(snapshot.Devices)))
	return snapshot, nil
}

func (s *instrumentedNetworkService) CheckConflicts(ctx context.Context) ([]domain.Conflict, error) {
	conflicts, err := s.NetworkService.CheckConflicts(ctx)
	if err != nil {
		return conflicts, err
	}

	counts := map[domain.ConflictKind]int{
		domain.ConflictStale:    0,
		domain.ConflictMismatch: 0,
		domain.ConflictRogue:    0,
	}
	for _, c := range conflicts {
		counts[c.Kind]++
	}
	for kind, n := range counts {
		s.metrics.Conflicts.WithLabelValues(string(kind)).Set(float64(n))
	}
	return conflicts, nil
}
