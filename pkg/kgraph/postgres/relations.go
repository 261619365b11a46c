package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

const relationColumns = `
	r.id, r.from_name, r.to_name, r.relation_type, r.strength, r.confidence,
	r.metadata, r.unparseable_metadata,
	r.version, r.created_at, r.updated_at, r.valid_from, r.valid_to, r.changed_by`

func collectRelations(rows pgx.Rows) ([]kgraph.Relation, error) {
	rels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (kgraph.Relation, error) {
		var (
			r           kgraph.Relation
			metadataRaw []byte
		)
		if err := row.Scan(
			&r.ID, &r.From, &r.To, &r.RelationType, &r.Strength, &r.Confidence,
			&metadataRaw, &r.UnparseableMetadata,
			&r.Version, &r.CreatedAt, &r.UpdatedAt, &r.ValidFrom, &r.ValidTo, &r.ChangedBy,
		); err != nil {
			return kgraph.Relation{}, err
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &r.Metadata); err != nil {
				// Preserve the unparseable blob rather than dropping it or
				// failing the whole query.
				slog.Warn("kgraph/postgres: unparseable relation metadata preserved",
					"id", r.ID, "error", err)
				r.UnparseableMetadata = string(metadataRaw)
				r.Metadata = nil
			}
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if rels == nil {
		rels = []kgraph.Relation{}
	}
	return rels, nil
}

func (s *Store) currentRelations(ctx context.Context, names []string) ([]kgraph.Relation, error) {
	q := "SELECT " + relationColumns + " FROM relations r WHERE r.valid_to IS NULL"
	var args []any
	if len(names) > 0 {
		args = append(args, names)
		q += " AND (r.from_name = ANY($1::text[]) OR r.to_name = ANY($1::text[]))"
	}
	q += " ORDER BY r.from_name, r.to_name, r.relation_type"
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectRelations(rows)
}

// currentRelationsAmong returns current relations whose endpoints are both
// within names — the "induced edge subgraph" required by searchNodes and
// openNodes, never a relation touching a node outside the page.
func (s *Store) currentRelationsAmong(ctx context.Context, names []string) ([]kgraph.Relation, error) {
	if len(names) == 0 {
		return []kgraph.Relation{}, nil
	}
	const q = `
		SELECT ` + relationColumns + `
		FROM   relations r
		WHERE  r.valid_to IS NULL
		  AND  r.from_name = ANY($1::text[])
		  AND  r.to_name   = ANY($1::text[])
		ORDER  BY r.from_name, r.to_name, r.relation_type`
	rows, err := s.pool.Query(ctx, q, names)
	if err != nil {
		return nil, err
	}
	return collectRelations(rows)
}

// incidentRelations returns the current relations where name is either
// endpoint, read within tx for the versioning protocol's step 1.
func incidentRelations(ctx context.Context, tx pgx.Tx, name string) ([]kgraph.Relation, error) {
	const q = `
		SELECT ` + relationColumns + `
		FROM   relations r
		WHERE  r.valid_to IS NULL AND (r.from_name = $1 OR r.to_name = $1)`
	rows, err := tx.Query(ctx, q, name)
	if err != nil {
		return nil, err
	}
	return collectRelations(rows)
}

// recreateIncidentRelations closes each relation in incident and inserts a
// fresh current version with the same fields, per §4.1 step 6: entity
// mutation re-creates every incident relation so its own version history
// stays synchronized with the endpoint it now points at.
func recreateIncidentRelations(ctx context.Context, tx pgx.Tx, incident []kgraph.Relation, now time.Time) error {
	for _, r := range incident {
		if err := closeRelation(ctx, tx, r.ID, now); err != nil {
			return err
		}
		next := r
		next.ID = uuid.NewString()
		next.Version = r.Version + 1
		next.ValidFrom = now
		next.ValidTo = nil
		next.UpdatedAt = now
		if err := insertRelation(ctx, tx, next); err != nil {
			return err
		}
	}
	return nil
}

func closeRelation(ctx context.Context, tx pgx.Tx, id string, validTo time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE relations SET valid_to = $2 WHERE id = $1`, id, validTo)
	return err
}

func insertRelation(ctx context.Context, tx pgx.Tx, r kgraph.Relation) error {
	metadata := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		metadata[k] = v
	}
	metadata["createdAt"] = r.CreatedAt
	metadata["updatedAt"] = r.UpdatedAt
	metadataRaw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO relations
		    (id, from_name, to_name, relation_type, strength, confidence,
		     metadata, unparseable_metadata, version, created_at, updated_at,
		     valid_from, valid_to, changed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err = tx.Exec(ctx, q,
		r.ID, r.From, r.To, r.RelationType, r.Strength, r.Confidence,
		metadataRaw, r.UnparseableMetadata, r.Version, r.CreatedAt, r.UpdatedAt,
		r.ValidFrom, r.ValidTo, r.ChangedBy)
	return err
}

func getCurrentRelation(ctx context.Context, tx pgx.Tx, key kgraph.RelationKey) (kgraph.Relation, bool, error) {
	const q = `
		SELECT ` + relationColumns + `
		FROM   relations r
		WHERE  r.from_name = $1 AND r.to_name = $2 AND r.relation_type = $3 AND r.valid_to IS NULL`
	rows, err := tx.Query(ctx, q, key.From, key.To, key.RelationType)
	if err != nil {
		return kgraph.Relation{}, false, err
	}
	rels, err := collectRelations(rows)
	if err != nil {
		return kgraph.Relation{}, false, err
	}
	if len(rels) == 0 {
		return kgraph.Relation{}, false, nil
	}
	return rels[0], true, nil
}

// CreateRelations implements [kgraph.GraphStore]'s merge-on-create contract
// (§4.1): a triple with no current match is inserted at version 1; a match
// is closed and re-inserted with merged fields and version+1.
func (s *Store) CreateRelations(ctx context.Context, inputs []kgraph.RelationInput) ([]kgraph.Relation, error) {
	var out []kgraph.Relation

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, in := range inputs {
			fromOK, err := currentEntityExists(ctx, tx, in.From)
			if err != nil {
				return err
			}
			toOK, err := currentEntityExists(ctx, tx, in.To)
			if err != nil {
				return err
			}
			if !fromOK || !toOK {
				slog.Warn("kgraph/postgres: create relation skipped, missing endpoint",
					"from", in.From, "to", in.To, "relation_type", in.RelationType)
				continue // missing endpoint: skip with warning, per §4.1
			}

			key := kgraph.RelationKey{From: in.From, To: in.To, RelationType: in.RelationType}
			existing, found, err := getCurrentRelation(ctx, tx, key)
			if err != nil {
				return err
			}
			now := time.Now()

			var next kgraph.Relation
			if found {
				next = mergeRelation(existing, in)
				next.ID = uuid.NewString()
				next.Version = existing.Version + 1
				next.CreatedAt = existing.CreatedAt
				next.UpdatedAt = now
				next.ValidFrom = now
				next.ValidTo = nil
				if err := closeRelation(ctx, tx, existing.ID, now); err != nil {
					return err
				}
			} else {
				next = kgraph.Relation{
					From: in.From, To: in.To, RelationType: in.RelationType,
					Strength: in.Strength, Confidence: in.Confidence, Metadata: in.Metadata,
					Temporal: kgraph.Temporal{
						ID: uuid.NewString(), Version: 1,
						CreatedAt: now, UpdatedAt: now, ValidFrom: now,
					},
				}
			}
			if err := insertRelation(ctx, tx, next); err != nil {
				return err
			}
			out = append(out, next)
		}
		return nil
	})
	if err != nil {
		return nil, newStoreErr("create_relations", kgraph.KindBackendUnavailable, "", err)
	}
	return out, nil
}

// mergeRelation applies in's non-null fields over existing, per §4.1's
// "null-safe coalesce" merge rule: Strength/Confidence are overwritten only
// when supplied, and Metadata is merged key-by-key.
func mergeRelation(existing kgraph.Relation, in kgraph.RelationInput) kgraph.Relation {
	next := existing
	if in.Strength != nil {
		next.Strength = in.Strength
	}
	if in.Confidence != nil {
		next.Confidence = in.Confidence
	}
	if len(in.Metadata) > 0 {
		merged := make(map[string]any, len(existing.Metadata)+len(in.Metadata))
		for k, v := range existing.Metadata {
			merged[k] = v
		}
		for k, v := range in.Metadata {
			merged[k] = v
		}
		next.Metadata = merged
	}
	return next
}

// GetRelation implements [kgraph.GraphStore].
func (s *Store) GetRelation(ctx context.Context, key kgraph.RelationKey) (kgraph.Relation, error) {
	const q = `
		SELECT ` + relationColumns + `
		FROM   relations r
		WHERE  r.from_name = $1 AND r.to_name = $2 AND r.relation_type = $3 AND r.valid_to IS NULL`
	rows, err := s.pool.Query(ctx, q, key.From, key.To, key.RelationType)
	if err != nil {
		return kgraph.Relation{}, newStoreErr("get_relation", kgraph.KindBackendUnavailable, key.From, err)
	}
	rels, err := collectRelations(rows)
	if err != nil {
		return kgraph.Relation{}, newStoreErr("get_relation", kgraph.KindBackendUnavailable, key.From, err)
	}
	if len(rels) == 0 {
		return kgraph.Relation{}, newStoreErr("get_relation", kgraph.KindNotFound, key.From, nil)
	}
	return rels[0], nil
}

// GetRelationHistory implements [kgraph.GraphStore].
func (s *Store) GetRelationHistory(ctx context.Context, key kgraph.RelationKey) ([]kgraph.Relation, error) {
	const q = `
		SELECT ` + relationColumns + `
		FROM   relations r
		WHERE  r.from_name = $1 AND r.to_name = $2 AND r.relation_type = $3
		ORDER  BY r.version ASC`
	rows, err := s.pool.Query(ctx, q, key.From, key.To, key.RelationType)
	if err != nil {
		return nil, newStoreErr("get_relation_history", kgraph.KindBackendUnavailable, key.From, err)
	}
	return collectRelations(rows)
}

// UpdateRelation implements [kgraph.GraphStore].
func (s *Store) UpdateRelation(ctx context.Context, key kgraph.RelationKey, input kgraph.RelationInput) (kgraph.Relation, error) {
	var result kgraph.Relation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		existing, found, err := getCurrentRelation(ctx, tx, key)
		if err != nil {
			return err
		}
		if !found {
			return kgraph.NewError("update_relation", kgraph.KindNotFound, key.From, nil)
		}
		now := time.Now()
		next := mergeRelation(existing, input)
		next.ID = uuid.NewString()
		next.Version = existing.Version + 1
		next.CreatedAt = existing.CreatedAt
		next.UpdatedAt = now
		next.ValidFrom = now
		next.ValidTo = nil

		if err := closeRelation(ctx, tx, existing.ID, now); err != nil {
			return err
		}
		if err := insertRelation(ctx, tx, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return kgraph.Relation{}, wrapStoreErr("update_relation", key.From, err)
	}
	return result, nil
}

// DeleteRelations implements [kgraph.GraphStore]: soft delete, retaining
// history.
func (s *Store) DeleteRelations(ctx context.Context, keys []kgraph.RelationKey) error {
	now := time.Now()
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, k := range keys {
			_, err := tx.Exec(ctx, `
				UPDATE relations SET valid_to = $4
				WHERE from_name = $1 AND to_name = $2 AND relation_type = $3 AND valid_to IS NULL`,
				k.From, k.To, k.RelationType, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return newStoreErr("delete_relations", kgraph.KindBackendUnavailable, "", err)
	}
	return nil
}
