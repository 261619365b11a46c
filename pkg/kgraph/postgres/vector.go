package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// VectorIndexImpl implements [kgraph.VectorIndex] over the entity_vectors
// table, sharing the [Store]'s connection pool rather than opening a second
// one — the vector store is a companion to the graph, not a separate
// service, but its writes never share a transaction with a graph mutation
// (see §4.2).
type VectorIndexImpl struct {
	pool   *pgxpool.Pool
	metric kgraph.DistanceMetric
}

// Initialize ensures the entity_vectors table and its HNSW index exist for
// dimensions/metric. Idempotent.
func (v *VectorIndexImpl) Initialize(ctx context.Context, dimensions int, metric kgraph.DistanceMetric) error {
	v.metric = metric
	if _, err := v.pool.Exec(ctx, ddlVectors(dimensions)); err != nil {
		return fmt.Errorf("kgraph/postgres: initialize vector index: %w", err)
	}
	if _, err := v.pool.Exec(ctx, ddlVectorIndex(vectorOpClass(metric))); err != nil {
		return fmt.Errorf("kgraph/postgres: initialize vector index: %w", err)
	}
	return nil
}

// AddVector implements [kgraph.VectorIndex].
func (v *VectorIndexImpl) AddVector(ctx context.Context, name string, vector []float32, tags map[string]string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO entity_vectors (name, embedding, tags, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET embedding = EXCLUDED.embedding, tags = EXCLUDED.tags, updated_at = now()`
	_, err = v.pool.Exec(ctx, q, name, pgvector.NewVector(vector), tagsJSON)
	if err != nil {
		return kgraph.NewError("add_vector", kgraph.KindBackendUnavailable, name, err)
	}
	return nil
}

// RemoveVector implements [kgraph.VectorIndex].
func (v *VectorIndexImpl) RemoveVector(ctx context.Context, name string) error {
	if _, err := v.pool.Exec(ctx, `DELETE FROM entity_vectors WHERE name = $1`, name); err != nil {
		return kgraph.NewError("remove_vector", kgraph.KindBackendUnavailable, name, err)
	}
	return nil
}

// distanceOperator returns the pgvector distance operator matching metric.
func distanceOperator(metric kgraph.DistanceMetric) string {
	if metric == kgraph.DistanceEuclidean {
		return "<->"
	}
	return "<=>"
}

// Search implements [kgraph.VectorIndex]. Distance is returned as the raw
// pgvector operator output (cosine distance in [0,2], or Euclidean
// distance); the planner converts cosine distance to a [0,1] similarity
// score itself.
func (v *VectorIndexImpl) Search(ctx context.Context, query []float32, opts kgraph.VectorSearchOptions) ([]kgraph.VectorMatch, error) {
	op := distanceOperator(v.metric)

	var (
		whereClauses []string
		args         = []any{pgvector.NewVector(query)}
	)
	argN := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for k, val := range opts.TagFilters {
		whereClauses = append(whereClauses, fmt.Sprintf("tags->>%s = %s", argN(k), argN(val)))
	}

	if opts.MinSimilarity > 0 && v.metric != kgraph.DistanceEuclidean {
		// similarity = 1 - distance/2 for cosine distance in [0,2]; floor the
		// distance so the filter pushes down into the index scan.
		maxDistance := 2 * (1 - opts.MinSimilarity)
		whereClauses = append(whereClauses, fmt.Sprintf("embedding %s $1 <= %s", op, argN(maxDistance)))
	}

	where := ""
	if len(whereClauses) > 0 {
		where = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	q := fmt.Sprintf(`
		SELECT name, embedding %s $1 AS distance, tags
		FROM   entity_vectors
		%s
		ORDER  BY distance ASC, name ASC
		LIMIT  %d`, op, where, limit)

	rows, err := v.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, kgraph.NewError("vector_search", kgraph.KindBackendUnavailable, "", err)
	}
	defer rows.Close()

	var matches []kgraph.VectorMatch
	for rows.Next() {
		var (
			name       string
			distance   float64
			tagsRaw    []byte
		)
		if err := rows.Scan(&name, &distance, &tagsRaw); err != nil {
			return nil, kgraph.NewError("vector_search", kgraph.KindBackendUnavailable, "", err)
		}
		var tags map[string]string
		if len(tagsRaw) > 0 {
			_ = json.Unmarshal(tagsRaw, &tags)
		}
		matches = append(matches, kgraph.VectorMatch{Name: name, Distance: distance, Tags: tags})
	}
	if err := rows.Err(); err != nil {
		return nil, kgraph.NewError("vector_search", kgraph.KindBackendUnavailable, "", err)
	}
	return matches, nil
}
