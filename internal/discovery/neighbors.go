package discovery

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultNeighborRefresh = 250 * time.Millisecond

// NeighborSource reads the host's IPv4 neighbour (ARP) table.
type NeighborSource interface {
	Neighbors(ctx context.Context) (map[netip.Addr]net.HardwareAddr, error)
}

// ARPProber answers probes from a cached copy of the neighbour table. A miss
// rereads the table when the copy predates the probe and is older than the
// refresh interval, so entries created by a just-finished ping are seen
// without dumping the table for every target of a large range. Concurrent
// misses share one read, and the cache stays readable while it runs.
type ARPProber struct {
	source  NeighborSource
	refresh time.Duration
	now     func() time.Time
	reads   singleflight.Group

	mu      sync.Mutex
	table   map[netip.Addr]net.HardwareAddr
	takenAt time.Time
}

func NewARPProber(source NeighborSource, refresh time.Duration) *ARPProber {
	if refresh <= 0 {
		refresh = defaultNeighborRefresh
	}
	return &ARPProber{
		source:  source,
		refresh: refresh,
		now:     time.Now,
	}
}

func (p *ARPProber) Probe(ctx context.Context, addr netip.Addr) (Observation, error) {
	mac, stale := p.cached(addr, p.now())
	if mac != nil {
		return Observation{MAC: mac}, nil
	}
	if !stale {
		return Observation{}, ErrAbsent
	}

	res, err, _ := p.reads.Do("neighbors", func() (any, error) {
		table, err := p.source.Neighbors(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.table, p.takenAt = table, p.now()
		p.mu.Unlock()
		return table, nil
	})
	if err != nil {
		return Observation{}, err
	}
	if mac, ok := res.(map[netip.Addr]net.HardwareAddr)[addr]; ok {
		return Observation{MAC: mac}, nil
	}
	return Observation{}, ErrAbsent
}

// cached looks addr up in the current table and reports whether a miss
// warrants a reread.
func (p *ARPProber) cached(addr netip.Addr, started time.Time) (net.HardwareAddr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if mac, ok := p.table[addr]; ok {
		return mac, false
	}
	return nil, p.table == nil || (p.takenAt.Before(started) && started.Sub(p.takenAt) >= p.refresh)
}

func usableMAC(mac net.HardwareAddr) bool {
	if len(mac) != 6 {
		return false
	}
	for _, b := range mac {
		if b != 0 {
			return true
		}
	}
	return false
}
