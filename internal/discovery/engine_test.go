package discovery

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
)

func respondTo(addrs ...string) Prober {
	set := make(map[netip.Addr]bool, len(addrs))
	for _, a := range addrs {
		set[netip.MustParseAddr(a)] = true
	}
	return ProberFunc(func(_ context.Context, addr netip.Addr) (Observation, error) {
		if set[addr] {
			return Observation{}, nil
		}
		return Observation{}, ErrNoResponse
	})
}

func silent() Prober {
	return ProberFunc(func(context.Context, netip.Addr) (Observation, error) {
		return Observation{}, ErrNoResponse
	})
}

func newTestEngine(opts ...Option) *Engine {
	base := []Option{
		WithPingProber(silent()),
		WithARPProber(silent()),
		WithSNMPProber(silent()),
		WithRetries(1, 0),
		WithTimeout(time.Second),
		WithConcurrency(16),
	}
	return NewEngine(append(base, opts...)...)
}

func TestDiscoverPingFindsResponders(t *testing.T) {
	engine := newTestEngine(WithPingProber(respondTo("10.0.0.9", "10.0.0.5")))

	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{
		Targets: []string{"10.0.0.0/28"},
		Method:  domain.MethodPing,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snapshot.State != domain.ScanComplete || snapshot.Partial {
		t.Fatalf("unexpected snapshot state: %+v", snapshot)
	}
	if snapshot.Probed != 14 {
		t.Fatalf("expected 14 probed targets, got %d", snapshot.Probed)
	}
	if len(snapshot.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(snapshot.Devices))
	}
	if snapshot.Devices[0].Address.String() != "10.0.0.5" || snapshot.Devices[1].Address.String() != "10.0.0.9" {
		t.Fatalf("devices not ordered by address: %+v", snapshot.Devices)
	}
	if snapshot.Devices[0].Method != domain.MethodPing || snapshot.Devices[0].LastSeen.IsZero() {
		t.Fatalf("unexpected device: %+v", snapshot.Devices[0])
	}
}

func TestDiscoverUnreachableRangeIsEmptyNotFailed(t *testing.T) {
	engine := newTestEngine()

	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{
		Targets: []string{"10.0.0.0/27"},
		Method:  domain.MethodFull,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snapshot.State != domain.ScanComplete || len(snapshot.Devices) != 0 {
		t.Fatalf("expected complete empty snapshot, got %+v", snapshot)
	}
}

func TestDiscoverInvalidTargetFails(t *testing.T) {
	engine := newTestEngine()

	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{
		Targets: []string{"10.0.0.0/24", "10.0.0.999"},
		Method:  domain.MethodPing,
	})
	if !errors.Is(err, domain.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if snapshot.State != domain.ScanFailed {
		t.Fatalf("expected failed state, got %s", snapshot.State)
	}
}

func TestDiscoverUnavailableMethod(t *testing.T) {
	engine := newTestEngine(WithSNMPProber(nil))

	_, err := engine.Discover(context.Background(), domain.DiscoverRequest{
		Targets: []string{"10.0.0.1"},
		Method:  domain.MethodSNMP,
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDiscoverRetriesSilentTargetOnce(t *testing.T) {
	var mu sync.Mutex
	attempts := make(map[netip.Addr]int)
	flaky := ProberFunc(func(_ context.Context, addr netip.Addr) (Observation, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts[addr]++
		if attempts[addr] < 2 {
			return Observation{}, ErrNoResponse
		}
		return Observation{}, nil
	})

	engine := newTestEngine(WithPingProber(flaky))
	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{Targets: []string{"10.0.0.1"}, Method: domain.MethodPing})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(snapshot.Devices) != 1 {
		t.Fatalf("expected the retry to find the device, got %+v", snapshot.Devices)
	}

	attempts = make(map[netip.Addr]int)
	engine = newTestEngine(WithPingProber(flaky), WithRetries(0, 0))
	snapshot, err = engine.Discover(context.Background(), domain.DiscoverRequest{Targets: []string{"10.0.0.1"}, Method: domain.MethodPing})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(snapshot.Devices) != 0 {
		t.Fatalf("expected no device without retries, got %+v", snapshot.Devices)
	}
}

func TestDiscoverProbeTimeout(t *testing.T) {
	hang := ProberFunc(func(ctx context.Context, _ netip.Addr) (Observation, error) {
		<-ctx.Done()
		return Observation{}, ctx.Err()
	})
	engine := newTestEngine(WithPingProber(hang), WithTimeout(10*time.Millisecond))

	start := time.Now()
	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{Targets: []string{"10.0.0.0/29"}, Method: domain.MethodPing})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(snapshot.Devices) != 0 || snapshot.Partial {
		t.Fatalf("expected complete empty snapshot, got %+v", snapshot)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("per-probe timeout not applied, scan took %s", elapsed)
	}
}

func TestDiscoverFullMergesSources(t *testing.T) {
	mac, _ := net.ParseMAC("00:50:56:aa:bb:cc")
	arp := ProberFunc(func(_ context.Context, addr netip.Addr) (Observation, error) {
		if addr == netip.MustParseAddr("10.0.0.5") {
			return Observation{MAC: mac}, nil
		}
		return Observation{}, ErrAbsent
	})
	snmp := ProberFunc(func(_ context.Context, addr netip.Addr) (Observation, error) {
		if addr == netip.MustParseAddr("10.0.0.5") {
			return Observation{Hostname: "core-sw1", Vendor: "Cisco"}, nil
		}
		return Observation{}, ErrNoResponse
	})
	engine := newTestEngine(
		WithPingProber(respondTo("10.0.0.5", "10.0.0.6")),
		WithARPProber(arp),
		WithSNMPProber(snmp),
	)

	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{Targets: []string{"10.0.0.0/29"}, Method: domain.MethodFull})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(snapshot.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %+v", snapshot.Devices)
	}

	enriched := snapshot.Devices[0]
	if enriched.MAC.String() != mac.String() || enriched.Hostname != "core-sw1" || enriched.Vendor != "Cisco" {
		t.Fatalf("expected merged device, got %+v", enriched)
	}
	if enriched.Method != domain.MethodARP {
		t.Fatalf("expected arp as strongest source, got %s", enriched.Method)
	}

	pingOnly := snapshot.Devices[1]
	if pingOnly.MAC != nil || pingOnly.Method != domain.MethodPing {
		t.Fatalf("expected ping-only device, got %+v", pingOnly)
	}
}

type stubResolver map[netip.Addr]string

func (r stubResolver) LookupAddr(_ context.Context, addr netip.Addr) (string, error) {
	if name, ok := r[addr]; ok {
		return name, nil
	}
	return "", errors.New("nxdomain")
}

func TestDiscoverEnrichesHostnameAndVendor(t *testing.T) {
	mac, _ := net.ParseMAC("00:50:56:01:02:03")
	engine := newTestEngine(
		WithARPProber(ProberFunc(func(context.Context, netip.Addr) (Observation, error) {
			return Observation{MAC: mac}, nil
		})),
		WithResolver(stubResolver{netip.MustParseAddr("10.0.0.1"): "vm1.lab"}),
	)

	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{Targets: []string{"10.0.0.1"}, Method: domain.MethodARP})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(snapshot.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(snapshot.Devices))
	}
	if snapshot.Devices[0].Hostname != "vm1.lab" || snapshot.Devices[0].Vendor != "VMware" {
		t.Fatalf("expected enrichment, got %+v", snapshot.Devices[0])
	}
}

func TestDiscoverRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int64
	prober := ProberFunc(func(context.Context, netip.Addr) (Observation, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return Observation{}, nil
	})
	engine := newTestEngine(WithPingProber(prober), WithConcurrency(4))

	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{Targets: []string{"10.0.0.0/26"}, Method: domain.MethodPing})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(snapshot.Devices) != 62 {
		t.Fatalf("expected 62 devices, got %d", len(snapshot.Devices))
	}
	if peak.Load() > 4 {
		t.Fatalf("expected at most 4 concurrent probes, saw %d", peak.Load())
	}
}

func TestDiscoverCancellationReturnsPartialSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prober := ProberFunc(func(ctx context.Context, addr netip.Addr) (Observation, error) {
		last := addr.As4()[3]
		if last < 10 {
			return Observation{}, nil
		}
		if last == 13 {
			cancel()
		}
		<-ctx.Done()
		return Observation{}, ctx.Err()
	})
	engine := newTestEngine(WithPingProber(prober), WithConcurrency(4), WithTimeout(time.Minute))

	snapshot, err := engine.Discover(ctx, domain.DiscoverRequest{Targets: []string{"10.0.0.0/24"}, Method: domain.MethodPing})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snapshot.State != domain.ScanComplete || !snapshot.Partial {
		t.Fatalf("expected complete partial snapshot, got state=%s partial=%v", snapshot.State, snapshot.Partial)
	}
	if len(snapshot.Devices) != 9 {
		t.Fatalf("expected the 9 devices found before cancellation, got %d", len(snapshot.Devices))
	}
	for i, device := range snapshot.Devices {
		if int(device.Address.As4()[3]) != i+1 {
			t.Fatalf("unexpected device order: %+v", snapshot.Devices)
		}
	}
}

func TestDiscoverCancelledScanNarrowsRangesToScannedAddresses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := netip.MustParseAddr("10.0.0.1")
	prober := ProberFunc(func(ctx context.Context, addr netip.Addr) (Observation, error) {
		if addr == first {
			cancel()
			return Observation{}, nil
		}
		<-ctx.Done()
		return Observation{}, ctx.Err()
	})
	engine := newTestEngine(WithPingProber(prober), WithConcurrency(1), WithTimeout(time.Minute))

	snapshot, err := engine.Discover(ctx, domain.DiscoverRequest{Targets: []string{"10.0.0.0/24"}, Method: domain.MethodPing})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !snapshot.Partial || snapshot.Probed != 1 || len(snapshot.Devices) != 1 {
		t.Fatalf("expected one scanned device in a partial snapshot, got partial=%v probed=%d devices=%d",
			snapshot.Partial, snapshot.Probed, len(snapshot.Devices))
	}
	if len(snapshot.Ranges) != 1 || snapshot.Ranges[0].From() != first || snapshot.Ranges[0].To() != first {
		t.Fatalf("expected ranges to hold only %s, got %v", first, snapshot.Ranges)
	}
	if snapshot.Covers(netip.MustParseAddr("10.0.0.200")) {
		t.Fatal("expected an unscanned address to be outside the snapshot")
	}
}

func TestDiscoverCompleteScanKeepsRequestedRanges(t *testing.T) {
	engine := newTestEngine(WithPingProber(respondTo("10.0.0.3")))

	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{
		Targets: []string{"10.0.0.0/29", "10.0.0.3"},
		Method:  domain.MethodPing,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snapshot.Partial || snapshot.Probed != 7 || len(snapshot.Ranges) != 2 {
		t.Fatalf("expected a complete scan over both targets, got partial=%v probed=%d ranges=%v",
			snapshot.Partial, snapshot.Probed, snapshot.Ranges)
	}
}

func TestAggregateDeduplicatesOverlappingTargets(t *testing.T) {
	engine := newTestEngine(WithPingProber(respondTo("10.0.0.3")))

	snapshot, err := engine.Discover(context.Background(), domain.DiscoverRequest{
		Targets: []string{"10.0.0.0/29", "10.0.0.3"},
		Method:  domain.MethodPing,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(snapshot.Devices) != 1 {
		t.Fatalf("expected a single entry per address, got %+v", snapshot.Devices)
	}
}
