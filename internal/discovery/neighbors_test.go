package discovery

import (
	"context"
	"errors"
	"maps"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"
)

type countingNeighbors struct {
	calls int
	table map[netip.Addr]net.HardwareAddr
}

func (c *countingNeighbors) Neighbors(context.Context) (map[netip.Addr]net.HardwareAddr, error) {
	c.calls++
	return maps.Clone(c.table), nil
}

func TestARPProberCachesTableAndRefreshesOnStaleMiss(t *testing.T) {
	mac, _ := net.ParseMAC("52:54:00:12:34:56")
	source := &countingNeighbors{table: map[netip.Addr]net.HardwareAddr{
		netip.MustParseAddr("10.0.0.2"): mac,
	}}
	clock := time.Unix(1_000, 0)
	prober := NewARPProber(source, time.Second)
	prober.now = func() time.Time { return clock }
	ctx := context.Background()

	obs, err := prober.Probe(ctx, netip.MustParseAddr("10.0.0.2"))
	if err != nil || obs.MAC.String() != mac.String() {
		t.Fatalf("expected hit, got %+v, %v", obs, err)
	}

	if _, err = prober.Probe(ctx, netip.MustParseAddr("10.0.0.3")); !errors.Is(err, ErrAbsent) {
		t.Fatalf("expected ErrAbsent, got %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("fresh table must not be reread, got %d reads", source.calls)
	}

	source.table[netip.MustParseAddr("10.0.0.3")] = mac
	clock = clock.Add(time.Second)
	if _, err = prober.Probe(ctx, netip.MustParseAddr("10.0.0.3")); err != nil {
		t.Fatalf("expected reread to find the new entry, got %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected 2 reads, got %d", source.calls)
	}
}

type gatedNeighbors struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	table   map[netip.Addr]net.HardwareAddr
}

func (g *gatedNeighbors) Neighbors(context.Context) (map[netip.Addr]net.HardwareAddr, error) {
	if g.calls.Add(1) > 1 {
		g.started <- struct{}{}
		<-g.release
	}
	return maps.Clone(g.table), nil
}

func TestARPProberServesCacheDuringReread(t *testing.T) {
	mac, _ := net.ParseMAC("52:54:00:12:34:56")
	known := netip.MustParseAddr("10.0.0.2")
	missing := netip.MustParseAddr("10.0.0.3")
	source := &gatedNeighbors{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		table:   map[netip.Addr]net.HardwareAddr{known: mac},
	}
	var clock atomic.Int64
	clock.Store(1_000)
	prober := NewARPProber(source, time.Second)
	prober.now = func() time.Time { return time.Unix(clock.Load(), 0) }
	ctx := context.Background()

	if _, err := prober.Probe(ctx, known); err != nil {
		t.Fatalf("expected hit, got %v", err)
	}
	clock.Add(5)

	const misses = 3
	errs := make(chan error, misses)
	for range misses {
		go func() {
			_, err := prober.Probe(ctx, missing)
			errs <- err
		}()
	}

	select {
	case <-source.started:
	case <-time.After(5 * time.Second):
		t.Fatal("reread never started")
	}

	hit := make(chan error, 1)
	go func() {
		_, err := prober.Probe(ctx, known)
		hit <- err
	}()
	select {
	case err := <-hit:
		if err != nil {
			t.Fatalf("expected cached hit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cached lookup blocked behind the reread")
	}

	close(source.release)
	for range misses {
		if err := <-errs; !errors.Is(err, ErrAbsent) {
			t.Fatalf("expected ErrAbsent, got %v", err)
		}
	}
	if got := source.calls.Load(); got > 1+misses {
		t.Fatalf("expected at most %d reads, got %d", 1+misses, got)
	}
}

func TestUsableMAC(t *testing.T) {
	zero := net.HardwareAddr{0, 0, 0, 0, 0, 0}
	valid, _ := net.ParseMAC("00:11:22:33:44:55")
	if usableMAC(zero) || usableMAC(nil) || !usableMAC(valid) {
		t.Fatal("unexpected usableMAC result")
	}
}
