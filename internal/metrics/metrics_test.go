package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubNetworkService struct {
	domain.NetworkService

	allocateFn       func(context.Context, domain.AllocateInput) (domain.Allocation, error)
	deallocateFn     func(context.Context, string) (domain.Allocation, error)
	discoverFn       func(context.Context, domain.DiscoverInput) (domain.Snapshot, error)
	checkConflictsFn func(context.Context) ([]domain.Conflict, error)
}

func (s stubNetworkService) Allocate(ctx context.Context, input domain.AllocateInput) (domain.Allocation, error) {
	return s.allocateFn(ctx, input)
}

func (s stubNetworkService) Deallocate(ctx context.Context, address string) (domain.Allocation, error) {
	return s.deallocateFn(ctx, address)
}

func (s stubNetworkService) Discover(ctx context.Context, input domain.DiscoverInput) (domain.Snapshot, error) {
	return s.discoverFn(ctx, input)
}

func (s stubNetworkService) CheckConflicts(ctx context.Context) ([]domain.Conflict, error) {
	return s.checkConflictsFn(ctx)
}

func TestAllocationOutcomesAreCounted(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)
	calls := 0
	svc := NewInstrumentedNetworkService(m, stubNetworkService{
		allocateFn: func(context.Context, domain.AllocateInput) (domain.Allocation, error) {
			calls++
			if calls == 1 {
				return domain.Allocation{Kind: domain.AllocationDynamic}, nil
			}
			return domain.Allocation{}, fmt.Errorf("%w: subnet 1", domain.ErrExhausted)
		},
		deallocateFn: func(context.Context, string) (domain.Allocation, error) {
			return domain.Allocation{}, domain.ErrNotActive
		},
	})

	ctx := context.Background()
	_, _ = svc.Allocate(ctx, domain.AllocateInput{Subnet: "1"})
	_, _ = svc.Allocate(ctx, domain.AllocateInput{Subnet: "1", Kind: domain.AllocationDynamic})
	_, _ = svc.Deallocate(ctx, "10.0.0.9")

	if got := testutil.ToFloat64(m.Allocations.WithLabelValues("dynamic", "ok")); got != 1 {
		t.Fatalf("expected 1 successful allocation, got %v", got)
	}
	if got := testutil.ToFloat64(m.Allocations.WithLabelValues("dynamic", "exhausted")); got != 1 {
		t.Fatalf("expected 1 exhausted allocation, got %v", got)
	}
	if got := testutil.ToFloat64(m.Deallocations.WithLabelValues("conflict")); got != 1 {
		t.Fatalf("expected 1 rejected release, got %v", got)
	}
}

func TestDiscoveryAndConflictGauges(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)
	started := time.Unix(100, 0)
	svc := NewInstrumentedNetworkService(m, stubNetworkService{
		discoverFn: func(context.Context, domain.DiscoverInput) (domain.Snapshot, error) {
			return domain.Snapshot{
				Method:     domain.MethodPing,
				StartedAt:  started,
				FinishedAt: started.Add(3 * time.Second),
				Devices:    make([]domain.DiscoveredDevice, 4),
			}, nil
		},
		checkConflictsFn: func(context.Context) ([]domain.Conflict, error) {
			return []domain.Conflict{
				{Kind: domain.ConflictRogue},
				{Kind: domain.ConflictRogue},
				{Kind: domain.ConflictStale},
			}, nil
		},
	})

	ctx := context.Background()
	if _, err := svc.Discover(ctx, domain.DiscoverInput{Method: "ping"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := svc.CheckConflicts(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := testutil.ToFloat64(m.DiscoveryScans.WithLabelValues("ping", "ok")); got != 1 {
		t.Fatalf("expected 1 scan, got %v", got)
	}
	if got := testutil.ToFloat64(m.DiscoveredDevices); got != 4 {
		t.Fatalf("expected 4 devices, got %v", got)
	}
	if got := testutil.ToFloat64(m.Conflicts.WithLabelValues("rogue")); got != 2 {
		t.Fatalf("expected 2 rogue conflicts, got %v", got)
	}
	if got := testutil.ToFloat64(m.Conflicts.WithLabelValues("mismatch")); got != 0 {
		t.Fatalf("expected 0 mismatch conflicts, got %v", got)
	}
}

func TestFailedDiscoveryIsCountedWithoutDuration(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)
	svc := NewInstrumentedNetworkService(m, stubNetworkService{
		discoverFn: func(context.Context, domain.DiscoverInput) (domain.Snapshot, error) {
			return domain.Snapshot{}, domain.ErrInvalidTarget
		},
	})

	if _, err := svc.Discover(context.Background(), domain.DiscoverInput{Method: "arp"}); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.DiscoveryScans.WithLabelValues("arp", "invalid")); got != 1 {
		t.Fatalf("expected 1 invalid scan, got %v", got)
	}
	if got := testutil.CollectAndCount(m.DiscoveryDuration); got != 0 {
		t.Fatalf("expected no duration samples, got %d", got)
	}
}

func TestHandlerExposesUtilizationGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, func() float64 { return 0.25 })

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ipam_utilization_ratio 0.25") {
		t.Fatalf("expected utilization gauge in output, got %q", rec.Body.String())
	}
}

func TestNilMetricsReturnsNext(t *testing.T) {
	next := &stubNetworkService{}
	if got := NewInstrumentedNetworkService(nil, next); got != domain.NetworkService(next) {
		t.Fatal("expected undecorated service")
	}
}
