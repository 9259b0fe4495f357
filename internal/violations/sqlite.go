package violations

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"admission/internal/models"
)

// SQLiteStore implements Store using SQLite, for single-node deployments
// that want a durable audit trail without running PostgreSQL.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rate_limit_violations (
	id              TEXT PRIMARY KEY,
	ip              TEXT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	organization_id TEXT NOT NULL DEFAULT '',
	endpoint        TEXT NOT NULL,
	violation_tier  TEXT NOT NULL,
	user_agent      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_violations_org_created
	ON rate_limit_violations (organization_id, created_at DESC);
`

// NewSQLiteStore creates a SQLite audit store, verifying connectivity and
// ensuring the schema exists.
func NewSQLiteStore(cfg models.DatabaseConfig) (*SQLiteStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for SQLite audit storage")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Insert appends one violation record.
func (ss *SQLiteStore) Insert(ctx context.Context, record *models.ViolationRecord) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO rate_limit_violations
			(id, ip, user_id, organization_id, endpoint, violation_tier, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.IP, record.UserID, record.OrganizationID,
		record.Endpoint, string(record.ViolationTier), record.UserAgent, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

// List returns a newest-first page matching the filter plus the total count.
func (ss *SQLiteStore) List(ctx context.Context, filter models.ViolationFilter) ([]*models.ViolationRecord, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.TargetType != "" {
		where += " AND violation_tier = ?"
		args = append(args, string(filter.TargetType))
	}
	if filter.OrganizationID != "" {
		where += " AND organization_id = ?"
		args = append(args, filter.OrganizationID)
	}

	var total int
	if err := ss.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rate_limit_violations"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count violations: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	rows, err := ss.db.QueryContext(ctx,
		`SELECT id, ip, user_id, organization_id, endpoint, violation_tier, user_agent, created_at
		 FROM rate_limit_violations`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
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

// Close closes the database handle.
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}
