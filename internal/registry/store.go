package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vantico/pulse/internal/models"
)

// Store reads the tenant table registry. The registry is read-only
// from this service's perspective; writes happen in the provisioning
// pipeline.
type Store interface {
	// ListByTenant returns every registry row for a tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]models.TableEntry, error)

	// ListByChannel returns the registry rows for one tenant channel.
	ListByChannel(ctx context.Context, tenantID string, channel models.Channel) ([]models.TableEntry, error)

	// Lookup resolves a single (tenant, channel, type) tuple. ok is
	// false when no row exists, which is not an error.
	Lookup(ctx context.Context, tenantID string, channel models.Channel, tableType string) (name string, ok bool, err error)

	// CountByChannel counts registry rows for one tenant channel.
	CountByChannel(ctx context.Context, tenantID string, channel models.Channel) (int64, error)
}

// PostgresStore implements Store against the client_table_registry table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]models.TableEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, channel, table_type, table_name
		FROM client_table_registry WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) ListByChannel(ctx context.Context, tenantID string, channel models.Channel) ([]models.TableEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, channel, table_type, table_name
		FROM client_table_registry WHERE tenant_id = $1 AND channel = $2
	`, tenantID, string(channel))
	if err != nil {
		return nil, fmt.Errorf("failed to list channel registry entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) Lookup(ctx context.Context, tenantID string, channel models.Channel, tableType string) (string, bool, error) {
	var name string
	err := s.pool.QueryRow(ctx, `
		SELECT table_name FROM client_table_registry
		WHERE tenant_id = $1 AND channel = $2 AND table_type = $3
	`, tenantID, string(channel), tableType).Scan(&name)

	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to lookup registry entry: %w", err)
	}
	return name, true, nil
}

func (s *PostgresStore) CountByChannel(ctx context.Context, tenantID string, channel models.Channel) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM client_table_registry
		WHERE tenant_id = $1 AND channel = $2
	`, tenantID, string(channel)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registry entries: %w", err)
	}
	return count, nil
}

func scanEntries(rows pgx.Rows) ([]models.TableEntry, error) {
	var entries []models.TableEntry
	for rows.Next() {
		var e models.TableEntry
		var channel string
		if err := rows.Scan(&e.TenantID, &channel, &e.TableType, &e.TableName); err != nil {
			return nil, err
		}
		e.Channel = models.Channel(channel)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
