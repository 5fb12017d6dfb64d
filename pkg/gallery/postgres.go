package gallery

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrCodeEU/faceroll/pkg/face"
	"github.com/MrCodeEU/faceroll/pkg/logging"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS gallery_identities (
	name       TEXT PRIMARY KEY,
	embedding  REAL[] NOT NULL,
	dimension  INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps the gallery in a PostgreSQL table, one row per identity.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the gallery table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create gallery table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Save replaces the table contents with g in one transaction.
func (s *PostgresStore) Save(ctx context.Context, g *Gallery) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM gallery_identities`); err != nil {
		return fmt.Errorf("failed to clear gallery: %w", err)
	}

	rows := make([][]any, 0, g.Len())
	g.Each(func(key string, emb face.Embedding) bool {
		rows = append(rows, []any{key, []float32(emb), len(emb)})
		return true
	})

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"gallery_identities"},
		[]string{"name", "embedding", "dimension"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("failed to insert identities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit gallery: %w", err)
	}

	logging.Debugf("Saved %d identities to postgres", g.Len())
	return nil
}

// Load reads every identity ordered by name.
func (s *PostgresStore) Load(ctx context.Context) (*Gallery, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, embedding FROM gallery_identities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query gallery: %w", err)
	}
	defer rows.Close()

	g := New()
	for rows.Next() {
		var (
			name string
			emb  []float32
		)
		if err := rows.Scan(&name, &emb); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		if err := g.set(name, face.Embedding(emb)); err != nil {
			return nil, fmt.Errorf("invalid gallery row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}

	return g, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
