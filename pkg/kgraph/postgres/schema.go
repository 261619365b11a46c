package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// ddlEntities defines the bitemporal entities table. Current-row uniqueness
// is enforced by a partial unique index on name WHERE valid_to IS NULL
// rather than a plain (name, valid_to) constraint, since PostgreSQL treats
// NULLs as distinct in ordinary unique constraints and would otherwise
// allow more than one current row per name.
const ddlEntities = `
CREATE TABLE IF NOT EXISTS entities (
    id            TEXT         PRIMARY KEY,
    name          TEXT         NOT NULL,
    entity_type   TEXT         NOT NULL,
    observations  TEXT[]       NOT NULL DEFAULT '{}',
    embedding_provider    TEXT,
    embedding_model       TEXT,
    embedding_updated_at  TIMESTAMPTZ,
    version       INT          NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL,
    updated_at    TIMESTAMPTZ  NOT NULL,
    valid_from    TIMESTAMPTZ  NOT NULL,
    valid_to      TIMESTAMPTZ,
    changed_by    TEXT         NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS entities_current_name_uq
    ON entities (name) WHERE valid_to IS NULL;

CREATE INDEX IF NOT EXISTS entities_name_idx ON entities (name);
CREATE INDEX IF NOT EXISTS entities_valid_from_idx ON entities (name, valid_from);
`

// ddlRelations defines the bitemporal relations table. The merge key is
// (from_name, to_name, relation_type); current-row uniqueness follows the
// same partial-index pattern as entities.
const ddlRelations = `
CREATE TABLE IF NOT EXISTS relations (
    id                     TEXT         PRIMARY KEY,
    from_name              TEXT         NOT NULL,
    to_name                TEXT         NOT NULL,
    relation_type          TEXT         NOT NULL,
    strength               DOUBLE PRECISION,
    confidence             DOUBLE PRECISION,
    metadata               JSONB        NOT NULL DEFAULT '{}',
    unparseable_metadata   TEXT         NOT NULL DEFAULT '',
    version                INT          NOT NULL,
    created_at             TIMESTAMPTZ  NOT NULL,
    updated_at             TIMESTAMPTZ  NOT NULL,
    valid_from             TIMESTAMPTZ  NOT NULL,
    valid_to               TIMESTAMPTZ,
    changed_by             TEXT         NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS relations_current_uq
    ON relations (from_name, to_name, relation_type) WHERE valid_to IS NULL;

CREATE INDEX IF NOT EXISTS relations_from_idx ON relations (from_name) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS relations_to_idx   ON relations (to_name)   WHERE valid_to IS NULL;
`

// ddlVectors defines the companion vector store keyed by entity name,
// decoupled from the entities table so a vector write never participates
// in the entity's bitemporal transaction (see §4.2).
func ddlVectors(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS entity_vectors (
    name        TEXT         PRIMARY KEY,
    embedding   vector(%d)   NOT NULL,
    tags        JSONB        NOT NULL DEFAULT '{}',
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`, dimensions)
}

// ddlVectorIndex creates the HNSW approximate-nearest-neighbour index for
// the configured distance metric. Called separately from [ddlVectors] since
// the operator class depends on runtime configuration, not just the
// embedding dimension.
func ddlVectorIndex(opClass string) string {
	return fmt.Sprintf(`
CREATE INDEX IF NOT EXISTS entity_vectors_hnsw_idx
    ON entity_vectors USING hnsw (embedding %s);
`, opClass)
}

// vectorOpClass maps a [kgraph.DistanceMetric] to the pgvector HNSW operator
// class that implements it.
func vectorOpClass(metric kgraph.DistanceMetric) string {
	switch metric {
	case kgraph.DistanceEuclidean:
		return "vector_l2_ops"
	default:
		return "vector_cosine_ops"
	}
}

// Migrate creates or ensures all required tables, indexes, and extensions
// exist. Idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int, metric kgraph.DistanceMetric) error {
	statements := []string{
		ddlEntities,
		ddlRelations,
		ddlVectors(embeddingDimensions),
		ddlVectorIndex(vectorOpClass(metric)),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("kgraph/postgres: migrate: %w", err)
		}
	}
	return nil
}
