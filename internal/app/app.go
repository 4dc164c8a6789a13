// Package app wires configuration, storage, discovery and the HTTP gateway
// into a running service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/db"
	"github.com/Flarenzy/smart-ipam/internal/db/memory"
	"github.com/Flarenzy/smart-ipam/internal/db/sqlite"
	"github.com/Flarenzy/smart-ipam/internal/discovery"
	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/Flarenzy/smart-ipam/internal/ledger"
	"github.com/Flarenzy/smart-ipam/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Services holds everything a front end (HTTP or CLI) needs.
type Services struct {
	Service  domain.NetworkService
	Ledger   *ledger.Ledger
	Health   domain.HealthChecker
	Registry *prometheus.Registry

	close func()
}

type store struct {
	subnets     domain.SubnetRepository
	allocations domain.AllocationRepository
	discovery   domain.DiscoveryRepository
	health      domain.HealthChecker
	close       func()
}

// Build opens the configured store, replays it into a ledger and assembles
// the decorated NetworkService.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	l, err := ledger.Load(ctx, st.subnets, st.allocations, ledger.WithLogger(logger))
	if err != nil {
		st.close()
		return nil, err
	}

	engine, err := newEngine(cfg.Discovery, logger)
	if err != nil {
		st.close()
		return nil, err
	}

	registry := metrics.NewRegistry()
	m := metrics.New(registry, func() float64 {
		return domain.Summarize(l.Usage()).Percent / 100
	})

	var service domain.NetworkService
	service = domain.NewNetworkService(l, engine, st.discovery, time.Now)
	service = domain.NewLoggingNetworkService(logger, service)
	service = metrics.NewInstrumentedNetworkService(m, service)

	return &Services{
		Service:  service,
		Ledger:   l,
		Health:   st.health,
		Registry: registry,
		close:    st.close,
	}, nil
}

func (s *Services) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store, error) {
	switch driver := cfg.Driver(); driver {
	case DriverMemory:
		logger.WarnContext(ctx, "using in-memory store, state is lost on exit")
		m := memory.NewStore()
		return store{subnets: m, allocations: m, discovery: m, health: m, close: func() {}}, nil

	case DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return store{}, err
		}
		logger.InfoContext(ctx, "sqlite store opened", "path", cfg.SQLitePath)
		return store{subnets: s, allocations: s, discovery: s, health: s, close: func() { _ = s.Close() }}, nil

	case DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DSN)
		if err != nil {
			return store{}, err
		}
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return store{}, err
		}
		logger.InfoContext(ctx, "postgres store ready", "migrations_applied", applied)
		return store{
			subnets:     db.NewSubnetRepository(pool),
			allocations: db.NewAllocationRepository(pool),
			discovery:   db.NewDiscoveryRepository(pool),
			health:      pool,
			close:       pool.Close,
		}, nil

	default:
		return store{}, fmt.Errorf("unknown db driver %q", driver)
	}
}

func newEngine(cfg DiscoveryConfig, logger *slog.Logger) (*discovery.Engine, error) {
	vendors := discovery.NewOUITable()
	if cfg.OUIFile != "" {
		var err error
		if vendors, err = discovery.LoadOUIFile(cfg.OUIFile); err != nil {
			return nil, fmt.Errorf("load oui file: %w", err)
		}
	}

	opts := []discovery.Option{
		discovery.WithLogger(logger),
		discovery.WithConcurrency(cfg.Concurrency),
		discovery.WithTimeout(cfg.Timeout),
		discovery.WithRetries(cfg.Retries, cfg.RetryDelay),
		discovery.WithMaxTargets(cfg.MaxTargets),
		discovery.WithPingProber(discovery.ICMPProber{Privileged: cfg.Privileged}),
		discovery.WithSNMPProber(discovery.SNMPProber{Community: cfg.SNMPCommunity, Port: cfg.SNMPPort}),
		discovery.WithVendorLookup(vendors),
	}

	resolver, err := discovery.NewDNSResolver(cfg.DNSServer)
	if err != nil {
		logger.Warn("reverse dns disabled", "err", err.Error())
	} else {
		opts = append(opts, discovery.WithResolver(resolver))
	}

	return discovery.NewEngine(opts...), nil
}
