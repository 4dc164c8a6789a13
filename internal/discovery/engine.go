// Package discovery probes address ranges and reports which devices answered.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go4.org/netipx"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 256
	defaultTimeout     = time.Second
	defaultRetries     = 1
	defaultRetryDelay  = 100 * time.Millisecond
	defaultMaxTargets  = 1 << 16
	lookupTimeout      = 500 * time.Millisecond
)

// Engine runs discovery scans. Each target is probed by one worker; results
// are merged only after every worker has finished.
type Engine struct {
	ping     Prober
	arp      Prober
	snmp     Prober
	resolver HostnameResolver
	vendors  VendorLookup
	logger   *slog.Logger
	now      domain.Clock

	concurrency int
	timeout     time.Duration
	retries     int
	retryDelay  time.Duration
	maxTargets  int
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		ping:        ICMPProber{},
		arp:         NewARPProber(NetlinkNeighbors{}, 0),
		snmp:        SNMPProber{},
		vendors:     NewOUITable(),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
		retries:     defaultRetries,
		retryDelay:  defaultRetryDelay,
		maxTargets:  defaultMaxTargets,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover scans req.Targets with req.Method. A malformed target fails the
// scan with ErrInvalidTarget. Silent hosts are simply absent. Cancelling ctx
// stops scheduling new targets and returns the devices found so far in a
// complete snapshot marked Partial.
func (e *Engine) Discover(ctx context.Context, req domain.DiscoverRequest) (domain.Snapshot, error) {
	method := req.Method
	if method == "" {
		method = domain.MethodFull
	}
	snapshot := domain.Snapshot{
		ID:        uuid.NewString(),
		Targets:   slices.Clone(req.Targets),
		Method:    method,
		State:     domain.ScanPending,
		StartedAt: e.now(),
	}

	e.transition(ctx, &snapshot, domain.ScanProbing)
	ranges, total, err := ParseTargets(req.Targets, e.maxTargets)
	if err == nil {
		err = e.checkMethod(method)
	}
	if err != nil {
		snapshot.FinishedAt = e.now()
		e.transition(ctx, &snapshot, domain.ScanFailed)
		return snapshot, err
	}
	snapshot.Ranges = ranges

	found, probed, count := e.probeAll(ctx, snapshot.Ranges, method)

	e.transition(ctx, &snapshot, domain.ScanAggregating)
	snapshot.Devices = aggregate(found)
	snapshot.Probed = count
	snapshot.Partial = ctx.Err() != nil || count < total
	if snapshot.Partial {
		// Only probed addresses may be judged as absent.
		snapshot.Ranges = probed
	}
	snapshot.FinishedAt = e.now()
	e.transition(ctx, &snapshot, domain.ScanComplete)
	return snapshot, nil
}

func (e *Engine) checkMethod(method domain.DiscoveryMethod) error {
	var missing bool
	switch method {
	case domain.MethodPing:
		missing = e.ping == nil
	case domain.MethodARP:
		missing = e.arp == nil
	case domain.MethodSNMP:
		missing = e.snmp == nil
	case domain.MethodFull:
		missing = e.ping == nil && e.arp == nil && e.snmp == nil
	default:
		return fmt.Errorf("%w: unknown method %q", domain.ErrInvalidInput, method)
	}
	if missing {
		return fmt.Errorf("%w: method %q is not available", domain.ErrInvalidInput, method)
	}
	return nil
}

func (e *Engine) transition(ctx context.Context, snapshot *domain.Snapshot, state domain.ScanState) {
	e.logger.DebugContext(ctx, "scan state changed",
		"snapshot_id", snapshot.ID,
		"from", string(snapshot.State),
		"to", string(state),
	)
	snapshot.State = state
}

// probeAll fans targets out over a bounded worker pool. Workers hand finished
// results to a single collector; nothing is shared between workers. The
// returned ranges hold every address that answered or whose probes ran to
// completion; count is the number of such targets, duplicates included.
func (e *Engine) probeAll(ctx context.Context, ranges []netipx.IPRange, method domain.DiscoveryMethod) ([]domain.DiscoveredDevice, []netipx.IPRange, int) {
	var (
		g      errgroup.Group
		probed netipx.IPSetBuilder
		found  []domain.DiscoveredDevice
		count  int
	)
	g.SetLimit(e.concurrency)

	results := make(chan probeResult, e.concurrency)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for res := range results {
			if res.done || res.ok {
				count++
				probed.Add(res.addr)
			}
			if res.ok {
				found = append(found, res.device)
			}
		}
	}()

schedule:
	for _, r := range ranges {
		for addr := r.From(); ; addr = addr.Next() {
			if ctx.Err() != nil {
				break schedule
			}
			g.Go(func() error {
				device, ok := e.probeTarget(ctx, addr, method)
				results <- probeResult{addr: addr, device: device, ok: ok, done: ctx.Err() == nil}
				return nil
			})
			if addr == r.To() {
				break
			}
		}
	}

	_ = g.Wait()
	close(results)
	<-collected

	set, err := probed.IPSet()
	if err != nil {
		return found, nil, count
	}
	return found, set.Ranges(), count
}

type probeResult struct {
	addr   netip.Addr
	device domain.DiscoveredDevice
	ok     bool
	done   bool
}

func (e *Engine) probeTarget(ctx context.Context, addr netip.Addr, method domain.DiscoveryMethod) (domain.DiscoveredDevice, bool) {
	var (
		device domain.DiscoveredDevice
		ok     bool
	)
	switch method {
	case domain.MethodPing:
		device, ok = e.single(ctx, e.ping, addr, method)
	case domain.MethodARP:
		device, ok = e.single(ctx, e.arp, addr, method)
	case domain.MethodSNMP:
		device, ok = e.single(ctx, e.snmp, addr, method)
	case domain.MethodFull:
		device, ok = e.full(ctx, addr)
	}
	if !ok {
		return domain.DiscoveredDevice{}, false
	}

	e.enrich(ctx, &device)
	device.LastSeen = e.now()
	return device, true
}

func (e *Engine) single(ctx context.Context, p Prober, addr netip.Addr, method domain.DiscoveryMethod) (domain.DiscoveredDevice, bool) {
	obs, ok := e.probe(ctx, p, addr)
	if !ok {
		return domain.DiscoveredDevice{}, false
	}
	return domain.DiscoveredDevice{
		Address:  addr,
		MAC:      obs.MAC,
		Hostname: obs.Hostname,
		Vendor:   obs.Vendor,
		Method:   method,
	}, true
}

// full runs the ping then ARP chain alongside SNMP. The ARP lookup follows
// the ping so the kernel has had a chance to resolve the target.
func (e *Engine) full(ctx context.Context, addr netip.Addr) (domain.DiscoveredDevice, bool) {
	var (
		g                     errgroup.Group
		pingObs, arpObs       Observation
		snmpObs               Observation
		pinged, arped, polled bool
	)
	g.Go(func() error {
		pingObs, pinged = e.probe(ctx, e.ping, addr)
		arpObs, arped = e.probe(ctx, e.arp, addr)
		return nil
	})
	g.Go(func() error {
		snmpObs, polled = e.probe(ctx, e.snmp, addr)
		return nil
	})
	_ = g.Wait()

	if !pinged && !arped && !polled {
		return domain.DiscoveredDevice{}, false
	}

	device := domain.DiscoveredDevice{Address: addr, Method: domain.MethodPing}
	if polled {
		device.Method = domain.MethodSNMP
		device.Hostname = snmpObs.Hostname
		device.Vendor = snmpObs.Vendor
	}
	if arped {
		device.Method = domain.MethodARP
		device.MAC = arpObs.MAC
	}
	if device.Hostname == "" {
		device.Hostname = firstNonEmpty(arpObs.Hostname, pingObs.Hostname)
	}
	return device, true
}

// probe runs one prober with a per-attempt timeout and a bounded number of
// retries. It reports false for silent, absent or cancelled targets.
func (e *Engine) probe(ctx context.Context, p Prober, addr netip.Addr) (Observation, bool) {
	if p == nil {
		return Observation{}, false
	}

	var obs Observation
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		var err error
		obs, err = p.Probe(attemptCtx, addr)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, ErrAbsent):
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.retryDelay), uint64(e.retries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return Observation{}, false
	}
	return obs, true
}

func (e *Engine) enrich(ctx context.Context, device *domain.DiscoveredDevice) {
	if device.Hostname == "" && e.resolver != nil && ctx.Err() == nil {
		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		name, err := e.resolver.LookupAddr(lookupCtx, device.Address)
		cancel()
		if err == nil {
			device.Hostname = name
		}
	}
	if device.Vendor == "" && len(device.MAC) > 0 && e.vendors != nil {
		device.Vendor = e.vendors.Vendor(device.MAC)
	}
}

// aggregate keeps one device per address, ordered by address. Overlapping
// target ranges can yield the same address twice; the richer entry wins.
func aggregate(found []domain.DiscoveredDevice) []domain.DiscoveredDevice {
	slices.SortStableFunc(found, func(a, b domain.DiscoveredDevice) int {
		return a.Address.Compare(b.Address)
	})

	devices := make([]domain.DiscoveredDevice, 0, len(found))
	for _, device := range found {
		if n := len(devices); n > 0 && devices[n-1].Address == device.Address {
			devices[n-1] = merge(devices[n-1], device)
			continue
		}
		devices = append(devices, device)
	}
	return devices
}

func merge(a, b domain.DiscoveredDevice) domain.DiscoveredDevice {
	if len(a.MAC) == 0 {
		a.MAC = b.MAC
	}
	a.Hostname = firstNonEmpty(a.Hostname, b.Hostname)
	a.Vendor = firstNonEmpty(a.Vendor, b.Vendor)
	if b.LastSeen.After(a.LastSeen) {
		a.LastSeen = b.LastSeen
	}
	if methodRank(b.Method) > methodRank(a.Method) {
		a.Method = b.Method
	}
	return a
}

func methodRank(m domain.DiscoveryMethod) int {
	switch m {
	case domain.MethodARP:
		return 3
	case domain.MethodSNMP:
		return 2
	case domain.MethodPing:
		return 1
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
