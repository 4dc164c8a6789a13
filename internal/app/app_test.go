package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBuildWithSQLiteReloadsState(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "ipam.db")
	cfg.Discovery.DNSServer = "127.0.0.1"

	services, err := Build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err = services.Service.CreateSubnet(ctx, domain.CreateSubnetInput{CIDR: "10.20.0.0/24", Name: "lab"}); err != nil {
		t.Fatalf("create subnet: %v", err)
	}
	first, err := services.Service.Allocate(ctx, domain.AllocateInput{Subnet: "10.20.0.0/24", Hostname: "a"})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	services.Close()

	services, err = Build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	defer services.Close()

	found, err := services.Service.FindAllocation(ctx, first.Address.String())
	if err != nil || found.ID != first.ID {
		t.Fatalf("expected allocation to survive restart, got %+v, %v", found, err)
	}
	second, err := services.Service.Allocate(ctx, domain.AllocateInput{Subnet: "10.20.0.0/24", Hostname: "b"})
	if err != nil {
		t.Fatalf("allocate after reload: %v", err)
	}
	if second.Address == first.Address {
		t.Fatalf("expected a different address after reload, got %s twice", second.Address)
	}
}

func TestBuildRegistersUtilizationGauge(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Discovery.DNSServer = "127.0.0.1"

	services, err := Build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer services.Close()

	if _, err = services.Service.CreateSubnet(ctx, domain.CreateSubnetInput{CIDR: "10.0.0.0/30", Name: "p2p"}); err != nil {
		t.Fatalf("create subnet: %v", err)
	}
	if _, err = services.Service.Allocate(ctx, domain.AllocateInput{Subnet: "10.0.0.0/30"}); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if n, err := testutil.GatherAndCount(services.Registry, "ipam_utilization_ratio", "ipam_allocations_total"); err != nil || n != 2 {
		t.Fatalf("expected utilization and allocation series, got %d, %v", n, err)
	}
}

func TestBuildFailsOnMissingOUIFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discovery.OUIFile = filepath.Join(t.TempDir(), "missing")

	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected missing oui file to fail")
	}
}
