// Package sqlite stores subnets, allocations and discovery results in a
// single SQLite file, for deployments without a PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"slices"
	"strings"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements the subnet, allocation and discovery repositories.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) List(ctx context.Context) ([]domain.Subnet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cidr, name, description, vlan_id, gateway, created_at
		FROM subnets
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subnets: %w", err)
	}
	defer rows.Close()

	var subnets []domain.Subnet
	for rows.Next() {
		var (
			subnet         domain.Subnet
			cidr, gateway  string
			vlanID         sql.NullInt64
			createdAtNanos int64
		)
		if err := rows.Scan(&subnet.ID, &cidr, &subnet.Name, &subnet.Description, &vlanID, &gateway, &createdAtNanos); err != nil {
			return nil, fmt.Errorf("failed to scan subnet: %w", err)
		}
		if subnet.CIDR, err = netip.ParsePrefix(cidr); err != nil {
			return nil, fmt.Errorf("subnet %d: %w", subnet.ID, err)
		}
		if subnet.Gateway, err = netip.ParseAddr(gateway); err != nil {
			return nil, fmt.Errorf("subnet %d: %w", subnet.ID, err)
		}
		subnet.VLANID = nullToIntPtr(vlanID)
		subnet.CreatedAt = fromNanos(createdAtNanos)
		subnets = append(subnets, subnet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subnets: %w", err)
	}

	slices.SortFunc(subnets, func(a, b domain.Subnet) int {
		return a.CIDR.Addr().Compare(b.CIDR.Addr())
	})
	return subnets, nil
}

func (s *Store) Create(ctx context.Context, subnet domain.Subnet) (domain.Subnet, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO subnets (cidr, name, description, vlan_id, gateway, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		subnet.CIDR.String(),
		subnet.Name,
		subnet.Description,
		intPtrToNull(subnet.VLANID),
		subnet.Gateway.String(),
		toNanos(subnet.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "subnets.cidr") {
			return domain.Subnet{}, fmt.Errorf("%w: %s already exists", domain.ErrSubnetOverlap, subnet.CIDR)
		}
		return domain.Subnet{}, fmt.Errorf("failed to insert subnet: %w", err)
	}

	if subnet.ID, err = result.LastInsertId(); err != nil {
		return domain.Subnet{}, err
	}
	return subnet, nil
}

func (s *Store) ListBySubnetID(ctx context.Context, subnetID int64) ([]domain.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subnet_id, address, hostname, device_type, owner, description, kind, status, created_at, released_at
		FROM allocations
		WHERE subnet_id = ?
	`, subnetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []domain.Allocation
	for rows.Next() {
		var (
			allocation     domain.Allocation
			id, address    string
			kind, status   string
			createdAtNanos int64
			releasedAt     sql.NullInt64
		)
		if err := rows.Scan(
			&id,
			&allocation.SubnetID,
			&address,
			&allocation.Hostname,
			&allocation.DeviceType,
			&allocation.Owner,
			&allocation.Description,
			&kind,
			&status,
			&createdAtNanos,
			&releasedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		if allocation.Address, err = netip.ParseAddr(address); err != nil {
			return nil, fmt.Errorf("allocation %s: %w", id, err)
		}
		allocation.ID = domain.AllocationID(id)
		allocation.Kind = domain.AllocationKind(kind)
		allocation.Status = domain.AllocationStatus(status)
		allocation.CreatedAt = fromNanos(createdAtNanos)
		allocation.ReleasedAt = nullToTimePtr(releasedAt)
		allocations = append(allocations, allocation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}

	slices.SortFunc(allocations, func(a, b domain.Allocation) int {
		if c := a.Address.Compare(b.Address); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return allocations, nil
}

func (s *Store) Save(ctx context.Context, allocation domain.Allocation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allocations (id, subnet_id, address, hostname, device_type, owner, description, kind, status, created_at, released_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			hostname = excluded.hostname,
			device_type = excluded.device_type,
			owner = excluded.owner,
			description = excluded.description,
			status = excluded.status,
			released_at = excluded.released_at
	`,
		string(allocation.ID),
		allocation.SubnetID,
		allocation.Address.String(),
		allocation.Hostname,
		allocation.DeviceType,
		allocation.Owner,
		allocation.Description,
		string(allocation.Kind),
		string(allocation.Status),
		toNanos(allocation.CreatedAt),
		timePtrToNull(allocation.ReleasedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "allocations.address") {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyActive, allocation.Address)
		}
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE && strings.Contains(sqliteErr.Error(), column)
}
