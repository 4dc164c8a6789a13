package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	listSubnets = `SELECT id, cidr, name, description, vlan_id, gateway, created_at
FROM subnets
ORDER BY cidr`

	createSubnet = `INSERT INTO subnets (cidr, name, description, vlan_id, gateway, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
RETURNING id, cidr, name, description, vlan_id, gateway, created_at`
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

type SubnetRepository struct {
	db DBTX
}

func NewSubnetRepository(db DBTX) *SubnetRepository {
	return &SubnetRepository{db: db}
}

func (r *SubnetRepository) List(ctx context.Context) ([]domain.Subnet, error) {
	rows, err := r.db.Query(ctx, listSubnets)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSubnet)
}

func (r *SubnetRepository) Create(ctx context.Context, subnet domain.Subnet) (domain.Subnet, error) {
	rows, err := r.db.Query(ctx, createSubnet,
		subnet.CIDR,
		subnet.Name,
		subnet.Description,
		subnet.VLANID,
		subnet.Gateway,
		nullableTime(subnet.CreatedAt),
	)
	if err != nil {
		return domain.Subnet{}, err
	}

	created, err := pgx.CollectExactlyOneRow(rows, scanSubnet)
	if err != nil {
		if isOverlapViolation(err) {
			return domain.Subnet{}, fmt.Errorf("%w: %s", domain.ErrSubnetOverlap, subnet.CIDR)
		}
		return domain.Subnet{}, err
	}
	return created, nil
}

func scanSubnet(row pgx.CollectableRow) (domain.Subnet, error) {
	var (
		subnet    domain.Subnet
		vlanID    pgtype.Int4
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&subnet.ID,
		&subnet.CIDR,
		&subnet.Name,
		&subnet.Description,
		&vlanID,
		&subnet.Gateway,
		&createdAt,
	); err != nil {
		return domain.Subnet{}, err
	}

	if vlanID.Valid {
		v := int(vlanID.Int32)
		subnet.VLANID = &v
	}
	subnet.CreatedAt = createdAt.Time
	return subnet, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == "subnets_no_overlap"
}

func isUniqueActiveViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "unique_active_address"
}
