// Package postgres provides a PostgreSQL-backed implementation of the
// bitemporal knowledge-graph store (C3) and its companion pgvector-backed
// vector index (C4).
//
// A single [pgxpool.Pool] backs both: [Store] implements
// [kgraph.GraphStore] directly, and [Store.VectorIndex] returns a
// [VectorIndexImpl] implementing [kgraph.VectorIndex], satisfying
// [kgraph.VectorCapable].
//
// The pgvector extension must be available in the target database;
// [Migrate] installs it automatically via CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// Compile-time interface checks.
var (
	_ kgraph.GraphStore     = (*Store)(nil)
	_ kgraph.VectorCapable  = (*Store)(nil)
	_ kgraph.FullTextCapable = (*Store)(nil)
	_ kgraph.VectorIndex    = (*VectorIndexImpl)(nil)
)

// Store is the PostgreSQL-backed bitemporal graph store. All methods are
// safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	vector *VectorIndexImpl
}

// NewStore creates a new Store, establishes a connection pool to dsn,
// registers pgvector types on every connection, and runs [Migrate].
//
// embeddingDimensions must match the output dimension of the configured
// embedding provider. Changing it after the first migration requires a
// manual schema change. metric selects the HNSW operator class used by the
// vector index; it must match the metric passed to searches, since pgvector
// picks its index only when the query operator matches the index's opclass.
func NewStore(ctx context.Context, dsn string, maxConns int32, embeddingDimensions int, metric kgraph.DistanceMetric) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("kgraph/postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("kgraph/postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kgraph/postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions, metric); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kgraph/postgres: migrate: %w", err)
	}

	return &Store{
		pool:   pool,
		vector: &VectorIndexImpl{pool: pool, metric: metric},
	}, nil
}

// VectorIndex implements [kgraph.VectorCapable].
func (s *Store) VectorIndex() kgraph.VectorIndex { return s.vector }

// FullTextSearch implements [kgraph.FullTextCapable] by delegating to
// SearchNodes, which matches substrings and regular expressions in Go;
// there is no separate full-text index or query path.
func (s *Store) FullTextSearch(ctx context.Context, opts kgraph.TextSearchOptions) (kgraph.PaginatedGraph, error) {
	return s.SearchNodes(ctx, opts)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// isNoRows reports whether err is the pgx "no rows" sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
