package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore keeps each collection as a JSONB row in the collections table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	prefix string
}

// NewPostgresStore creates a store on an existing pool. The collections
// table must exist (see database.Migrate).
func NewPostgresStore(pool *pgxpool.Pool, prefix string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool, prefix: prefix}, nil
}

func (s *PostgresStore) Read(ctx context.Context, collection string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var snap Snapshot
	err := s.pool.QueryRow(ctx,
		`SELECT data, version FROM collections WHERE name = $1`,
		s.prefix+collection,
	).Scan(&snap.Data, &snap.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("select collection: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) Write(ctx context.Context, collection string, data []byte, version int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	name := s.prefix + collection
	var next int64
	var err error

	if version == 0 {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO collections (name, data, version, updated_at)
			 VALUES ($1, $2::jsonb, 1, NOW())
			 ON CONFLICT (name) DO NOTHING
			 RETURNING version`,
			name,
			string(data),
		).Scan(&next)
	} else {
		err = s.pool.QueryRow(ctx,
			`UPDATE collections
			 SET data = $2::jsonb, version = version + 1, updated_at = NOW()
			 WHERE name = $1 AND version = $3
			 RETURNING version`,
			name,
			string(data),
			version,
		).Scan(&next)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("write collection: %w", err)
	}
	return next, nil
}
