//go:build integration

package db_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/db"
	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/Flarenzy/smart-ipam/internal/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go4.org/netipx"
)

const postgresPort = "5432/tcp"

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16",
			ExposedPorts: []string{postgresPort},
			Env: map[string]string{
				"POSTGRES_DB":       "ipam",
				"POSTGRES_USER":     "ipam",
				"POSTGRES_PASSWORD": "ipam",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		t.Fatalf("postgres mapped port: %v", err)
	}

	pool, err := db.NewPool(ctx, fmt.Sprintf("postgres://ipam:ipam@%s:%s/ipam?sslmode=disable", host, port.Port()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func TestPostgresRepositories(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	subnets := db.NewSubnetRepository(pool)
	allocations := db.NewAllocationRepository(pool)
	discovery := db.NewDiscoveryRepository(pool)

	vlan := 42
	subnet, err := subnets.Create(ctx, domain.Subnet{
		CIDR:    netip.MustParsePrefix("10.20.0.0/24"),
		Name:    "office",
		VLANID:  &vlan,
		Gateway: netip.MustParseAddr("10.20.0.1"),
	})
	if err != nil {
		t.Fatalf("create subnet: %v", err)
	}
	if subnet.ID == 0 || subnet.VLANID == nil || *subnet.VLANID != 42 {
		t.Fatalf("unexpected subnet: %+v", subnet)
	}

	_, err = subnets.Create(ctx, domain.Subnet{
		CIDR:    netip.MustParsePrefix("10.20.0.128/25"),
		Name:    "inner",
		Gateway: netip.MustParseAddr("10.20.0.129"),
	})
	if !errors.Is(err, domain.ErrSubnetOverlap) {
		t.Fatalf("expected overlap error, got %v", err)
	}

	t.Run("allocations", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		first := domain.Allocation{
			ID:         domain.AllocationID(uuid.NewString()),
			Address:    netip.MustParseAddr("10.20.0.10"),
			SubnetID:   subnet.ID,
			Hostname:   "printer",
			DeviceType: domain.DefaultDeviceType,
			Kind:       domain.AllocationStatic,
			Status:     domain.StatusActive,
			CreatedAt:  now,
		}
		if err := allocations.Save(ctx, first); err != nil {
			t.Fatalf("save: %v", err)
		}

		duplicate := first
		duplicate.ID = domain.AllocationID(uuid.NewString())
		if err := allocations.Save(ctx, duplicate); !errors.Is(err, domain.ErrAlreadyActive) {
			t.Fatalf("expected already active, got %v", err)
		}

		released := now.Add(time.Minute)
		first.Status = domain.StatusReleased
		first.ReleasedAt = &released
		if err := allocations.Save(ctx, first); err != nil {
			t.Fatalf("release: %v", err)
		}
		if err := allocations.Save(ctx, duplicate); err != nil {
			t.Fatalf("reallocate after release: %v", err)
		}

		listed, err := allocations.ListBySubnetID(ctx, subnet.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(listed) != 2 {
			t.Fatalf("expected 2 records, got %d", len(listed))
		}
		if listed[0].ID != first.ID || listed[0].Active() || listed[0].ReleasedAt == nil {
			t.Fatalf("expected released record first, got %+v", listed[0])
		}
		if listed[1].ID != duplicate.ID || !listed[1].Active() {
			t.Fatalf("expected active record second, got %+v", listed[1])
		}
	})

	t.Run("ledger reload", func(t *testing.T) {
		l, err := ledger.Load(ctx, subnets, allocations)
		if err != nil {
			t.Fatalf("load ledger: %v", err)
		}
		if _, ok := l.FindActive(netip.MustParseAddr("10.20.0.10")); !ok {
			t.Fatal("expected reloaded ledger to know the active allocation")
		}
		usage := l.Usage()
		if len(usage) != 1 || usage[0].Allocated != 1 {
			t.Fatalf("unexpected usage after reload: %+v", usage)
		}
	})

	t.Run("snapshots and identities", func(t *testing.T) {
		started := time.Now().UTC().Truncate(time.Microsecond)
		mac := net.HardwareAddr{0x00, 0x1b, 0x21, 0xaa, 0xbb, 0xcc}
		snapshot := domain.Snapshot{
			ID:         uuid.NewString(),
			Targets:    []string{"10.20.0.0/24"},
			Ranges:     []netipx.IPRange{netipx.IPRangeFrom(netip.MustParseAddr("10.20.0.1"), netip.MustParseAddr("10.20.0.254"))},
			Method:     domain.MethodFull,
			State:      domain.ScanComplete,
			StartedAt:  started,
			FinishedAt: started.Add(2 * time.Second),
			Probed:     254,
			Devices: []domain.DiscoveredDevice{
				{Address: netip.MustParseAddr("10.20.0.10"), MAC: mac, Method: domain.MethodARP, LastSeen: started},
				{Address: netip.MustParseAddr("10.20.0.99"), Method: domain.MethodPing, LastSeen: started},
			},
		}
		if err := discovery.SaveSnapshot(ctx, snapshot); err != nil {
			t.Fatalf("save snapshot: %v", err)
		}

		latest, err := discovery.LatestSnapshot(ctx)
		if err != nil {
			t.Fatalf("latest snapshot: %v", err)
		}
		if latest.ID != snapshot.ID || len(latest.Devices) != 2 || len(latest.Ranges) != 1 {
			t.Fatalf("unexpected snapshot: %+v", latest)
		}
		if latest.Devices[0].MAC.String() != mac.String() || latest.Devices[1].MAC != nil {
			t.Fatalf("unexpected device macs: %+v", latest.Devices)
		}

		listed, err := allocations.ListBySubnetID(ctx, subnet.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		active := listed[1]
		older := domain.DeviceIdentity{AllocationID: active.ID, Address: active.Address, MAC: mac, ObservedAt: started.Add(-time.Hour)}
		newer := domain.DeviceIdentity{AllocationID: active.ID, Address: active.Address, MAC: net.HardwareAddr{0, 1, 2, 3, 4, 5}, ObservedAt: started}
		if err := discovery.RecordIdentities(ctx, []domain.DeviceIdentity{older, newer}); err != nil {
			t.Fatalf("record identities: %v", err)
		}

		identities, err := discovery.LatestIdentities(ctx, started)
		if err != nil {
			t.Fatalf("latest identities: %v", err)
		}
		got, ok := identities[active.ID]
		if !ok || got.MAC.String() != mac.String() {
			t.Fatalf("expected identity observed before the cutoff, got %+v", identities)
		}
	})
}
