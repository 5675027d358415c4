// Package pgmirror implements an optional, best-effort Postgres
// projection of the imported-asset index (SPEC_FULL.md's DOMAIN
// STACK): operators get a SQL-queryable view over imported assets
// (filter by type, search by name) alongside the mandatory flat-file
// store in internal/persist. It is a read model only — the in-memory
// index remains the source of truth the resolver and pipeline
// consult; a failed mirror write is logged and never blocks an
// import. Grounded directly on the teacher's postgres.Store: thin
// struct wrapping a pgxpool.Pool, explicit New/Connect, fmt.Errorf-wrapped
// queries.
package pgmirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaultbridge/importengine/internal/engineerr"
	"github.com/vaultbridge/importengine/internal/model"
)

// Store implements persist.Mirror against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres mirror with the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect creates a new connection pool and returns a Store.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the mirror table if it does not already exist.
// Called once at startup; safe to call repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS imported_assets (
			org_id       TEXT NOT NULL,
			project_id   TEXT NOT NULL,
			asset_id     TEXT NOT NULL,
			version      TEXT NOT NULL,
			name         TEXT NOT NULL,
			asset_type   TEXT NOT NULL,
			status       TEXT NOT NULL,
			updated      TIMESTAMPTZ NOT NULL,
			file_count   INTEGER NOT NULL,
			entry        JSONB NOT NULL,
			PRIMARY KEY (org_id, project_id, asset_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensuring imported_assets schema: %w", err)
	}
	return nil
}

// Upsert writes entry's row, replacing any prior row for the same
// tracked identity.
func (s *Store) Upsert(ctx context.Context, entry model.ImportedAssetInfo) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return engineerr.IOf(err, "marshaling mirror row for %s", entry.Tracked())
	}
	id := entry.Asset.Identifier
	_, err = s.pool.Exec(ctx, `
		INSERT INTO imported_assets (org_id, project_id, asset_id, version, name, asset_type, status, updated, file_count, entry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (org_id, project_id, asset_id) DO UPDATE SET
			version = EXCLUDED.version,
			name = EXCLUDED.name,
			asset_type = EXCLUDED.asset_type,
			status = EXCLUDED.status,
			updated = EXCLUDED.updated,
			file_count = EXCLUDED.file_count,
			entry = EXCLUDED.entry
	`,
		id.OrgID, id.ProjectID, id.AssetID, id.Version,
		entry.Asset.Name, entry.Asset.Type, string(entry.Asset.Status),
		entry.Asset.Updated, len(entry.Files), payload,
	)
	if err != nil {
		return fmt.Errorf("upserting imported asset mirror row: %w", err)
	}
	return nil
}

// Remove deletes the row for id, if present.
func (s *Store) Remove(ctx context.Context, id model.TrackedID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM imported_assets WHERE org_id = $1 AND project_id = $2 AND asset_id = $3
	`, id.OrgID, id.ProjectID, id.AssetID)
	if err != nil {
		return fmt.Errorf("deleting imported asset mirror row: %w", err)
	}
	return nil
}

// Filter narrows List's results.
type Filter struct {
	AssetType string
	Status    string
	Search    string
	Limit     int
	Offset    int
}

// List returns mirrored rows matching filter with a total count,
// the same shape as the teacher's AssetStore.List.
func (s *Store) List(ctx context.Context, filter Filter) ([]model.ImportedAssetInfo, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argIdx := 1

	if filter.AssetType != "" {
		where += fmt.Sprintf(" AND asset_type = $%d", argIdx)
		args = append(args, filter.AssetType)
		argIdx++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM imported_assets " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting mirrored assets: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	dataQuery := fmt.Sprintf(`
		SELECT entry FROM imported_assets %s ORDER BY updated DESC LIMIT $%d OFFSET $%d
	`, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing mirrored assets: %w", err)
	}
	defer rows.Close()

	var out []model.ImportedAssetInfo
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, fmt.Errorf("scanning mirrored asset row: %w", err)
		}
		var entry model.ImportedAssetInfo
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, 0, fmt.Errorf("decoding mirrored asset row: %w", err)
		}
		out = append(out, entry)
	}
	return out, total, nil
}
