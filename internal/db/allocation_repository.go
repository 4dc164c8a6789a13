package db

import (
	"context"
	"fmt"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	listAllocationsBySubnetID = `SELECT id, subnet_id, address, hostname, device_type, owner, description, kind, status, created_at, released_at
FROM allocations
WHERE subnet_id = $1
ORDER BY address, created_at`

	upsertAllocation = `INSERT INTO allocations (id, subnet_id, address, hostname, device_type, owner, description, kind, status, created_at, released_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    hostname = EXCLUDED.hostname,
    device_type = EXCLUDED.device_type,
    owner = EXCLUDED.owner,
    description = EXCLUDED.description,
    status = EXCLUDED.status,
    released_at = EXCLUDED.released_at`
)

type AllocationRepository struct {
	db DBTX
}

func NewAllocationRepository(db DBTX) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) ListBySubnetID(ctx context.Context, subnetID int64) ([]domain.Allocation, error) {
	rows, err := r.db.Query(ctx, listAllocationsBySubnetID, subnetID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAllocation)
}

func (r *AllocationRepository) Save(ctx context.Context, allocation domain.Allocation) error {
	id, err := parseAllocationID(allocation.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid allocation id", domain.ErrInvalidInput)
	}

	_, err = r.db.Exec(ctx, upsertAllocation,
		id,
		allocation.SubnetID,
		allocation.Address,
		allocation.Hostname,
		allocation.DeviceType,
		allocation.Owner,
		allocation.Description,
		string(allocation.Kind),
		string(allocation.Status),
		allocation.CreatedAt,
		allocation.ReleasedAt,
	)
	if err != nil {
		if isUniqueActiveViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyActive, allocation.Address)
		}
		return err
	}
	return nil
}

func scanAllocation(row pgx.CollectableRow) (domain.Allocation, error) {
	var (
		allocation domain.Allocation
		id         pgtype.UUID
		kind       string
		status     string
		createdAt  pgtype.Timestamptz
		releasedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&id,
		&allocation.SubnetID,
		&allocation.Address,
		&allocation.Hostname,
		&allocation.DeviceType,
		&allocation.Owner,
		&allocation.Description,
		&kind,
		&status,
		&createdAt,
		&releasedAt,
	); err != nil {
		return domain.Allocation{}, err
	}

	allocation.ID = toAllocationID(id)
	allocation.Kind = domain.AllocationKind(kind)
	allocation.Status = domain.AllocationStatus(status)
	allocation.CreatedAt = createdAt.Time
	if releasedAt.Valid {
		t := releasedAt.Time
		allocation.ReleasedAt = &t
	}
	return allocation, nil
}

func parseAllocationID(id domain.AllocationID) (pgtype.UUID, error) {
	return parseUUID(string(id))
}

func toAllocationID(id pgtype.UUID) domain.AllocationID {
	return domain.AllocationID(uuid.UUID(id.Bytes).String())
}

func parseUUID(s string) (pgtype.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, err
	}

	var parsed pgtype.UUID
	copy(parsed.Bytes[:], u[:])
	parsed.Valid = true

	return parsed, nil
}
