package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"go4.org/netipx"
)

// SaveSnapshot stores the snapshot and its devices in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	targets, err := json.Marshal(nonNil(snapshot.Targets))
	if err != nil {
		return err
	}
	ranges := make([]string, 0, len(snapshot.Ranges))
	for _, r := range snapshot.Ranges {
		ranges = append(ranges, r.String())
	}
	rangesJSON, err := json.Marshal(ranges)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO discovery_snapshots (id, method, state, targets, ranges, probed, partial, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snapshot.ID,
		string(snapshot.Method),
		string(snapshot.State),
		string(targets),
		string(rangesJSON),
		snapshot.Probed,
		snapshot.Partial,
		toNanos(snapshot.StartedAt),
		timeToNull(snapshot.FinishedAt),
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO discovered_devices (snapshot_id, address, mac, hostname, vendor, method, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare device insert: %w", err)
	}
	defer stmt.Close()

	for _, device := range snapshot.Devices {
		if _, err := stmt.ExecContext(ctx,
			snapshot.ID,
			device.Address.String(),
			macToString(device.MAC),
			device.Hostname,
			device.Vendor,
			string(device.Method),
			toNanos(device.LastSeen),
		); err != nil {
			return fmt.Errorf("failed to insert device %s: %w", device.Address, err)
		}
	}

	return tx.Commit()
}

func (s *Store) LatestSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var (
		snapshot        domain.Snapshot
		method, state   string
		targets, ranges string
		startedAt       int64
		finishedAt      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, method, state, targets, ranges, probed, partial, started_at, finished_at
		FROM discovery_snapshots
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&snapshot.ID, &method, &state, &targets, &ranges, &snapshot.Probed, &snapshot.Partial, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNoSnapshot
		}
		return domain.Snapshot{}, fmt.Errorf("failed to query snapshot: %w", err)
	}

	snapshot.Method = domain.DiscoveryMethod(method)
	snapshot.State = domain.ScanState(state)
	snapshot.StartedAt = fromNanos(startedAt)
	if finishedAt.Valid {
		snapshot.FinishedAt = fromNanos(finishedAt.Int64)
	}
	if err := json.Unmarshal([]byte(targets), &snapshot.Targets); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to unmarshal targets: %w", err)
	}
	var rangeSpecs []string
	if err := json.Unmarshal([]byte(ranges), &rangeSpecs); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to unmarshal ranges: %w", err)
	}
	for _, spec := range rangeSpecs {
		r, err := netipx.ParseIPRange(spec)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("snapshot %s: %w", snapshot.ID, err)
		}
		snapshot.Ranges = append(snapshot.Ranges, r)
	}

	if snapshot.Devices, err = s.devices(ctx, snapshot.ID); err != nil {
		return domain.Snapshot{}, err
	}
	return snapshot, nil
}

func (s *Store) devices(ctx context.Context, snapshotID string) ([]domain.DiscoveredDevice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, mac, hostname, vendor, method, last_seen
		FROM discovered_devices
		WHERE snapshot_id = ?
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.DiscoveredDevice
	for rows.Next() {
		var (
			device               domain.DiscoveredDevice
			address, mac, method string
			lastSeen             int64
		)
		if err := rows.Scan(&address, &mac, &device.Hostname, &device.Vendor, &method, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if device.Address, err = netip.ParseAddr(address); err != nil {
			return nil, err
		}
		if device.MAC, err = stringToMAC(mac); err != nil {
			return nil, err
		}
		device.Method = domain.DiscoveryMethod(method)
		device.LastSeen = fromNanos(lastSeen)
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	slices.SortFunc(devices, func(a, b domain.DiscoveredDevice) int {
		return a.Address.Compare(b.Address)
	})
	return devices, nil
}

func (s *Store) RecordIdentities(ctx context.Context, identities []domain.DeviceIdentity) error {
	if len(identities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, identity := range identities {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO device_identities (allocation_id, address, mac, observed_at)
			VALUES (?, ?, ?, ?)
		`,
			string(identity.AllocationID),
			identity.Address.String(),
			macToString(identity.MAC),
			toNanos(identity.ObservedAt),
		); err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
	}
	return tx.Commit()
}

// LatestIdentities relies on SQLite taking bare columns from the MAX() row.
func (s *Store) LatestIdentities(ctx context.Context, before time.Time) (map[domain.AllocationID]domain.DeviceIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT allocation_id, address, mac, MAX(observed_at)
		FROM device_identities
		WHERE observed_at < ?
		GROUP BY allocation_id
	`, toNanos(before))
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	latest := make(map[domain.AllocationID]domain.DeviceIdentity)
	for rows.Next() {
		var (
			id, address, mac string
			observedAt       int64
		)
		if err := rows.Scan(&id, &address, &mac, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identity := domain.DeviceIdentity{
			AllocationID: domain.AllocationID(id),
			ObservedAt:   fromNanos(observedAt),
		}
		if identity.Address, err = netip.ParseAddr(address); err != nil {
			return nil, err
		}
		if identity.MAC, err = stringToMAC(mac); err != nil {
			return nil, err
		}
		latest[identity.AllocationID] = identity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identities: %w", err)
	}
	return latest, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
