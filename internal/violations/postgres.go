package violations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"admission/internal/models"
)

// PostgresStore implements Store using PostgreSQL. The table is append-only
// and indexed by (organization_id, created_at) for the paged tenant queries
// the management API serves.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rate_limit_violations (
	id              UUID PRIMARY KEY,
	ip              TEXT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	organization_id TEXT NOT NULL DEFAULT '',
	endpoint        TEXT NOT NULL,
	violation_tier  TEXT NOT NULL,
	user_agent      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_violations_org_created
	ON rate_limit_violations (organization_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_violations_created
	ON rate_limit_violations (created_at DESC);
`

// NewPostgresStore creates a PostgreSQL audit store, verifying connectivity
// and ensuring the schema exists.
func NewPostgresStore(cfg models.DatabaseConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL audit storage")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Insert appends one violation record.
func (ps *PostgresStore) Insert(ctx context.Context, record *models.ViolationRecord) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO rate_limit_violations
			(id, ip, user_id, organization_id, endpoint, violation_tier, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.IP, record.UserID, record.OrganizationID,
		record.Endpoint, string(record.ViolationTier), record.UserAgent, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

// List returns a newest-first page matching the filter plus the total count.
func (ps *PostgresStore) List(ctx context.Context, filter models.ViolationFilter) ([]*models.ViolationRecord, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.TargetType != "" {
		args = append(args, string(filter.TargetType))
		where += fmt.Sprintf(" AND violation_tier = $%d", len(args))
	}
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		where += fmt.Sprintf(" AND organization_id = $%d", len(args))
	}

	var total int
	if err := ps.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM rate_limit_violations"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count violations: %w", err)
	}

	args = append(args, filter.Limit)
	limitClause := fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	limitClause += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := ps.pool.Query(ctx,
		`SELECT id, ip, user_id, organization_id, endpoint, violation_tier, user_agent, created_at
		 FROM rate_limit_violations`+where+limitClause, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ViolationRecord, 0, filter.Limit)
	for rows.Next() {
		var r models.ViolationRecord
		var tier string
		if err := rows.Scan(&r.ID, &r.IP, &r.UserID, &r.OrganizationID,
			&r.Endpoint, &tier, &r.UserAgent, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan violation: %w", err)
		}
		r.ViolationTier = models.Tier(tier)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read violations: %w", err)
	}

	return records, total, nil
}

// Close closes the connection pool.
func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}
