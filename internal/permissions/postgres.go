package permissions

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// DBTX matches the subset of pgx behavior the store needs so it can run
// against a pool, a single connection, or a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists permission records in Postgres.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a Store backed by the given connection.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const createPermissionsTable = `
CREATE TABLE IF NOT EXISTS dapp_permissions (
    key             TEXT PRIMARY KEY,
    origin          TEXT NOT NULL,
    favicon_url     TEXT NOT NULL DEFAULT '',
    title           TEXT NOT NULL DEFAULT '',
    state           TEXT NOT NULL,
    account_address TEXT NOT NULL,
    chain_id        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS dapp_permissions_origin_idx ON dapp_permissions (origin);
`

// EnsureSchema creates the permissions table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createPermissionsTable); err != nil {
		return errors.Wrap(err, "creating dapp_permissions schema")
	}
	return nil
}

const getPermission = `
SELECT key, origin, favicon_url, title, state, account_address, chain_id
FROM dapp_permissions
WHERE key = $1
`

func (s *PostgresStore) Get(ctx context.Context, key string) (PermissionRequest, error) {
	row := s.db.QueryRow(ctx, getPermission, key)

	var rec PermissionRequest
	err := row.Scan(&rec.Key, &rec.Origin, &rec.FaviconURL, &rec.Title, &rec.State, &rec.AccountAddress, &rec.ChainID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionRequest{}, ErrNotFound
		}
		return PermissionRequest{}, errors.Wrap(err, "querying permission")
	}
	return rec, nil
}

const upsertPermission = `
INSERT INTO dapp_permissions (key, origin, favicon_url, title, state, account_address, chain_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (key) DO UPDATE SET
    favicon_url = EXCLUDED.favicon_url,
    title       = EXCLUDED.title,
    state       = EXCLUDED.state
`

func (s *PostgresStore) Put(ctx context.Context, req PermissionRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, upsertPermission,
		req.Key, req.Origin, req.FaviconURL, req.Title, req.State, req.AccountAddress, req.ChainID)
	if err != nil {
		return errors.Wrap(err, "upserting permission")
	}
	return nil
}

const deletePermission = `DELETE FROM dapp_permissions WHERE key = $1`

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tag, err := s.db.Exec(ctx, deletePermission, key)
	if err != nil {
		return errors.Wrap(err, "deleting permission")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const listPermissionsByOrigin = `
SELECT key, origin, favicon_url, title, state, account_address, chain_id
FROM dapp_permissions
WHERE origin = $1
ORDER BY key
`

func (s *PostgresStore) ListByOrigin(ctx context.Context, origin string) ([]PermissionRequest, error) {
	rows, err := s.db.Query(ctx, listPermissionsByOrigin, origin)
	if err != nil {
		return nil, errors.Wrap(err, "listing permissions by origin")
	}
	defer rows.Close()

	var out []PermissionRequest
	for rows.Next() {
		var rec PermissionRequest
		if err := rows.Scan(&rec.Key, &rec.Origin, &rec.FaviconURL, &rec.Title, &rec.State, &rec.AccountAddress, &rec.ChainID); err != nil {
			return nil, errors.Wrap(err, "scanning permission row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating permission rows")
	}
	return out, nil
}
