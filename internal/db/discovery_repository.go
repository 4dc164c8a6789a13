package db

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go4.org/netipx"
)

const (
	insertSnapshot = `INSERT INTO discovery_snapshots (id, method, state, targets, ranges, probed, partial, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertDevice = `INSERT INTO discovered_devices (snapshot_id, address, mac, hostname, vendor, method, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	latestSnapshot = `SELECT id, method, state, targets, ranges, probed, partial, started_at, finished_at
FROM discovery_snapshots
ORDER BY started_at DESC
LIMIT 1`

	listDevicesBySnapshot = `SELECT address, mac, hostname, vendor, method, last_seen
FROM discovered_devices
WHERE snapshot_id = $1
ORDER BY address`

	insertIdentity = `INSERT INTO device_identities (allocation_id, address, mac, observed_at)
VALUES ($1, $2, $3, $4)`

	latestIdentitiesBefore = `SELECT DISTINCT ON (allocation_id) allocation_id, address, mac, observed_at
FROM device_identities
WHERE observed_at < $1
ORDER BY allocation_id, observed_at DESC`
)

type DiscoveryRepository struct {
	db DBTX
}

func NewDiscoveryRepository(db DBTX) *DiscoveryRepository {
	return &DiscoveryRepository{db: db}
}

// SaveSnapshot stores the snapshot and its devices in one transaction.
func (r *DiscoveryRepository) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	id, err := parseUUID(snapshot.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid snapshot id", domain.ErrInvalidInput)
	}

	ranges := make([]string, 0, len(snapshot.Ranges))
	for _, r := range snapshot.Ranges {
		ranges = append(ranges, r.String())
	}
	targets := snapshot.Targets
	if targets == nil {
		targets = []string{}
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertSnapshot,
			id,
			string(snapshot.Method),
			string(snapshot.State),
			targets,
			ranges,
			snapshot.Probed,
			snapshot.Partial,
			snapshot.StartedAt,
			nullableTime(snapshot.FinishedAt),
		); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}

		batch := &pgx.Batch{}
		for _, device := range snapshot.Devices {
			batch.Queue(insertDevice,
				id,
				device.Address,
				nullableMAC(device.MAC),
				device.Hostname,
				device.Vendor,
				string(device.Method),
				device.LastSeen,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert devices: %w", err)
		}
		return nil
	})
}

func (r *DiscoveryRepository) LatestSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var (
		snapshot   domain.Snapshot
		id         pgtype.UUID
		method     string
		state      string
		ranges     []string
		finishedAt pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, latestSnapshot).Scan(
		&id,
		&method,
		&state,
		&snapshot.Targets,
		&ranges,
		&snapshot.Probed,
		&snapshot.Partial,
		&snapshot.StartedAt,
		&finishedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return domain.Snapshot{}, domain.ErrNoSnapshot
		}
		return domain.Snapshot{}, err
	}

	snapshot.ID = uuid.UUID(id.Bytes).String()
	snapshot.Method = domain.DiscoveryMethod(method)
	snapshot.State = domain.ScanState(state)
	snapshot.FinishedAt = finishedAt.Time
	for _, s := range ranges {
		r, err := netipx.ParseIPRange(s)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("snapshot %s: %w", snapshot.ID, err)
		}
		snapshot.Ranges = append(snapshot.Ranges, r)
	}

	rows, err := r.db.Query(ctx, listDevicesBySnapshot, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if snapshot.Devices, err = pgx.CollectRows(rows, scanDevice); err != nil {
		return domain.Snapshot{}, err
	}
	return snapshot, nil
}

func (r *DiscoveryRepository) RecordIdentities(ctx context.Context, identities []domain.DeviceIdentity) error {
	batch := &pgx.Batch{}
	for _, identity := range identities {
		id, err := parseAllocationID(identity.AllocationID)
		if err != nil {
			return fmt.Errorf("%w: invalid allocation id", domain.ErrInvalidInput)
		}
		batch.Queue(insertIdentity, id, identity.Address, identity.MAC, identity.ObservedAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	return r.db.SendBatch(ctx, batch).Close()
}

func (r *DiscoveryRepository) LatestIdentities(ctx context.Context, before time.Time) (map[domain.AllocationID]domain.DeviceIdentity, error) {
	rows, err := r.db.Query(ctx, latestIdentitiesBefore, before)
	if err != nil {
		return nil, err
	}
	identities, err := pgx.CollectRows(rows, scanIdentity)
	if err != nil {
		return nil, err
	}

	latest := make(map[domain.AllocationID]domain.DeviceIdentity, len(identities))
	for _, identity := range identities {
		latest[identity.AllocationID] = identity
	}
	return latest, nil
}

func scanDevice(row pgx.CollectableRow) (domain.DiscoveredDevice, error) {
	var (
		device domain.DiscoveredDevice
		method string
	)
	if err := row.Scan(
		&device.Address,
		&device.MAC,
		&device.Hostname,
		&device.Vendor,
		&method,
		&device.LastSeen,
	); err != nil {
		return domain.DiscoveredDevice{}, err
	}
	device.Method = domain.DiscoveryMethod(method)
	return device, nil
}

func scanIdentity(row pgx.CollectableRow) (domain.DeviceIdentity, error) {
	var (
		identity domain.DeviceIdentity
		id       pgtype.UUID
	)
	if err := row.Scan(&id, &identity.Address, &identity.MAC, &identity.ObservedAt); err != nil {
		return domain.DeviceIdentity{}, err
	}
	identity.AllocationID = toAllocationID(id)
	return identity, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableMAC(mac net.HardwareAddr) any {
	if len(mac) == 0 {
		return nil
	}
	return mac
}
