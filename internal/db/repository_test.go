package db

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestConstraintViolationsAreRecognisedThroughWrapping(t *testing.T) {
	overlap := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgExclusionViolation, ConstraintName: "subnets_no_overlap"})
	if !isOverlapViolation(overlap) {
		t.Fatal("expected overlap violation to be recognised")
	}
	if isUniqueActiveViolation(overlap) {
		t.Fatal("overlap violation must not look like a duplicate active address")
	}

	duplicate := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "unique_active_address"}
	if !isUniqueActiveViolation(duplicate) {
		t.Fatal("expected unique active violation to be recognised")
	}

	other := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "allocations_pkey"}
	if isUniqueActiveViolation(other) {
		t.Fatal("primary key violation must not look like a duplicate active address")
	}
	if isOverlapViolation(errors.New("boom")) {
		t.Fatal("plain errors are not constraint violations")
	}
}

func TestIsNoRows(t *testing.T) {
	if !isNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
	if isNoRows(domain.ErrNotFound) {
		t.Fatal("domain not found is not a driver no-rows error")
	}
}

func TestAllocationIDRoundTrip(t *testing.T) {
	const id = domain.AllocationID("5f0c9b5e-7c3e-4a55-9a43-2d1f1f5b3c11")

	parsed, err := parseAllocationID(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("expected parsed uuid to be valid")
	}
	if got := toAllocationID(parsed); got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}

	if _, err := parseAllocationID("not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestNullableHelpers(t *testing.T) {
	if nullableTime(time.Time{}) != nil {
		t.Fatal("zero time must map to NULL")
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := nullableTime(now); got == nil || !got.Equal(now) {
		t.Fatalf("expected %v, got %v", now, got)
	}

	if nullableMAC(nil) != nil {
		t.Fatal("empty mac must map to NULL")
	}
	mac := net.HardwareAddr{0x00, 0x1b, 0x21, 0x01, 0x02, 0x03}
	if got, ok := nullableMAC(mac).(net.HardwareAddr); !ok || got.String() != mac.String() {
		t.Fatalf("expected %s, got %v", mac, nullableMAC(mac))
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one migration")
	}
}
