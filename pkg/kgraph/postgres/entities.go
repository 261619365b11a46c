package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

const entityColumns = `
	e.id, e.name, e.entity_type, e.observations,
	e.embedding_provider, e.embedding_model, e.embedding_updated_at,
	e.version, e.created_at, e.updated_at, e.valid_from, e.valid_to, e.changed_by`

// collectEntities scans rows produced by a query selecting entityColumns,
// optionally left-joined against entity_vectors as ev for the embedding
// vector itself.
func collectEntities(rows pgx.Rows, withVector bool) ([]kgraph.Entity, error) {
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (kgraph.Entity, error) {
		var (
			e                                         kgraph.Entity
			embProvider, embModel                     *string
			embUpdatedAt                              *time.Time
			vec                                       pgvecSlice
		)
		scanTargets := []any{
			&e.ID, &e.Name, &e.EntityType, &e.Observations,
			&embProvider, &embModel, &embUpdatedAt,
			&e.Version, &e.CreatedAt, &e.UpdatedAt, &e.ValidFrom, &e.ValidTo, &e.ChangedBy,
		}
		if withVector {
			scanTargets = append(scanTargets, &vec)
		}
		if err := row.Scan(scanTargets...); err != nil {
			return kgraph.Entity{}, err
		}
		if embProvider != nil {
			e.Embedding = &kgraph.EmbeddingRecord{
				Provider: *embProvider,
			}
			if embModel != nil {
				e.Embedding.Model = *embModel
			}
			if embUpdatedAt != nil {
				e.Embedding.LastUpdated = *embUpdatedAt
			}
			if withVector {
				e.Embedding.Vector = vec.slice
			}
		}
		if e.Observations == nil {
			e.Observations = []string{}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []kgraph.Entity{}
	}
	return entities, nil
}

// LoadGraph implements [kgraph.GraphStore].
func (s *Store) LoadGraph(ctx context.Context) (kgraph.Graph, error) {
	entities, err := s.currentEntities(ctx, nil)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("load_graph", kgraph.KindBackendUnavailable, "", err)
	}
	relations, err := s.currentRelations(ctx, nil)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("load_graph", kgraph.KindBackendUnavailable, "", err)
	}
	return kgraph.Graph{Entities: entities, Relations: relations}, nil
}

func (s *Store) currentEntities(ctx context.Context, names []string) ([]kgraph.Entity, error) {
	q := "SELECT " + entityColumns + " FROM entities e WHERE e.valid_to IS NULL"
	var args []any
	if len(names) > 0 {
		args = append(args, names)
		q += " AND e.name = ANY($1::text[])"
	}
	q += " ORDER BY e.name"
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows, false)
}

// CreateEntities implements [kgraph.GraphStore]. Inputs naming an already
// current entity are skipped silently (idempotent under retries).
func (s *Store) CreateEntities(ctx context.Context, inputs []kgraph.EntityInput) ([]kgraph.Entity, error) {
	var created []kgraph.Entity

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, in := range inputs {
			exists, err := currentEntityExists(ctx, tx, in.Name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			now := time.Now()
			e := kgraph.Entity{
				Name:         in.Name,
				EntityType:   in.EntityType,
				Observations: dedupeStrings(in.Observations),
				Temporal: kgraph.Temporal{
					ID:        uuid.NewString(),
					Version:   1,
					CreatedAt: now,
					UpdatedAt: now,
					ValidFrom: now,
				},
			}
			if err := insertEntity(ctx, tx, e); err != nil {
				return err
			}
			created = append(created, e)
		}
		return nil
	})
	if err != nil {
		return nil, newStoreErr("create_entities", kgraph.KindBackendUnavailable, "", err)
	}
	return created, nil
}

func currentEntityExists(ctx context.Context, tx pgx.Tx, name string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM entities WHERE name = $1 AND valid_to IS NULL)`, name).Scan(&exists)
	return exists, err
}

func insertEntity(ctx context.Context, tx pgx.Tx, e kgraph.Entity) error {
	const q = `
		INSERT INTO entities
		    (id, name, entity_type, observations, embedding_provider, embedding_model,
		     embedding_updated_at, version, created_at, updated_at, valid_from, valid_to, changed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	var embProvider, embModel *string
	var embUpdatedAt *time.Time
	if e.Embedding != nil {
		embProvider = &e.Embedding.Provider
		embModel = &e.Embedding.Model
		embUpdatedAt = &e.Embedding.LastUpdated
	}

	_, err := tx.Exec(ctx, q,
		e.ID, e.Name, e.EntityType, e.Observations, embProvider, embModel, embUpdatedAt,
		e.Version, e.CreatedAt, e.UpdatedAt, e.ValidFrom, e.ValidTo, e.ChangedBy)
	return err
}

func closeEntity(ctx context.Context, tx pgx.Tx, id string, validTo time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE entities SET valid_to = $2 WHERE id = $1`, id, validTo)
	return err
}

// getCurrentEntity reads the current row for name within tx, returning a
// [*kgraph.Error] of [kgraph.KindNotFound] if none exists.
func getCurrentEntity(ctx context.Context, tx pgx.Tx, name string) (kgraph.Entity, error) {
	rows, err := tx.Query(ctx, "SELECT "+entityColumns+" FROM entities e WHERE e.name = $1 AND e.valid_to IS NULL", name)
	if err != nil {
		return kgraph.Entity{}, err
	}
	entities, err := collectEntities(rows, false)
	if err != nil {
		return kgraph.Entity{}, err
	}
	if len(entities) == 0 {
		return kgraph.Entity{}, newStoreErr("get_entity", kgraph.KindNotFound, name, nil)
	}
	return entities[0], nil
}

// GetEntity implements [kgraph.GraphStore].
func (s *Store) GetEntity(ctx context.Context, name string) (kgraph.Entity, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+entityColumns+", ev.embedding FROM entities e LEFT JOIN entity_vectors ev ON ev.name = e.name WHERE e.name = $1 AND e.valid_to IS NULL", name)
	if err != nil {
		return kgraph.Entity{}, newStoreErr("get_entity", kgraph.KindBackendUnavailable, name, err)
	}
	entities, err := collectEntities(rows, true)
	if err != nil {
		return kgraph.Entity{}, newStoreErr("get_entity", kgraph.KindBackendUnavailable, name, err)
	}
	if len(entities) == 0 {
		return kgraph.Entity{}, newStoreErr("get_entity", kgraph.KindNotFound, name, nil)
	}
	return entities[0], nil
}

// GetEntityHistory implements [kgraph.GraphStore].
func (s *Store) GetEntityHistory(ctx context.Context, name string) ([]kgraph.Entity, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+entityColumns+" FROM entities e WHERE e.name = $1 ORDER BY e.version ASC", name)
	if err != nil {
		return nil, newStoreErr("get_entity_history", kgraph.KindBackendUnavailable, name, err)
	}
	return collectEntities(rows, false)
}

// versioningMutation runs the shared six-step versioning protocol (§4.1):
// read current row + incident relations, compute the new entity value via
// mutate, and if mutate reports a change, close the old row, insert the new
// one, and re-create every incident current relation pointing at it.
//
// mutate returns the new observation/field state and whether anything
// actually changed; when unchanged the mutation commits as a no-op and
// returns the unmodified current entity.
func (s *Store) versioningMutation(ctx context.Context, op, name string, mutate func(kgraph.Entity) (kgraph.Entity, bool)) (kgraph.Entity, error) {
	var result kgraph.Entity

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := getCurrentEntity(ctx, tx, name)
		if err != nil {
			return err
		}

		next, changed := mutate(current)
		if !changed {
			result = current
			return nil
		}

		incident, err := incidentRelations(ctx, tx, name)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := closeEntity(ctx, tx, current.ID, now); err != nil {
			return err
		}

		next.ID = uuid.NewString()
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = now
		next.ValidFrom = now
		next.ValidTo = nil
		if err := insertEntity(ctx, tx, next); err != nil {
			return err
		}

		if err := recreateIncidentRelations(ctx, tx, incident, now); err != nil {
			return err
		}

		result = next
		return nil
	})
	if err != nil {
		return kgraph.Entity{}, wrapStoreErr(op, name, err)
	}
	return result, nil
}

// AddObservations implements [kgraph.GraphStore].
func (s *Store) AddObservations(ctx context.Context, deltas []kgraph.ObservationDelta) ([]kgraph.AddObservationsResult, error) {
	results := make([]kgraph.AddObservationsResult, 0, len(deltas))
	for _, d := range deltas {
		var added []string
		_, err := s.versioningMutation(ctx, "add_observations", d.Name, func(e kgraph.Entity) (kgraph.Entity, bool) {
			existing := make(map[string]bool, len(e.Observations))
			for _, o := range e.Observations {
				existing[o] = true
			}
			var newOnes []string
			for _, o := range d.Observations {
				if !existing[o] {
					existing[o] = true
					newOnes = append(newOnes, o)
				}
			}
			if len(newOnes) == 0 {
				return e, false
			}
			added = newOnes
			e.Observations = append(append([]string{}, e.Observations...), newOnes...)
			return e, true
		})
		if err != nil {
			return nil, err
		}
		results = append(results, kgraph.AddObservationsResult{Name: d.Name, AddedObservations: added})
	}
	return results, nil
}

// DeleteObservations implements [kgraph.GraphStore].
func (s *Store) DeleteObservations(ctx context.Context, deltas []kgraph.ObservationDelta) error {
	for _, d := range deltas {
		toRemove := make(map[string]bool, len(d.Observations))
		for _, o := range d.Observations {
			toRemove[o] = true
		}
		_, err := s.versioningMutation(ctx, "delete_observations", d.Name, func(e kgraph.Entity) (kgraph.Entity, bool) {
			kept := e.Observations[:0:0]
			changed := false
			for _, o := range e.Observations {
				if toRemove[o] {
					changed = true
					continue
				}
				kept = append(kept, o)
			}
			if !changed {
				return e, false
			}
			e.Observations = kept
			return e, true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateEntity implements [kgraph.GraphStore].
func (s *Store) UpdateEntity(ctx context.Context, patch kgraph.EntityPatch) (kgraph.Entity, error) {
	return s.versioningMutation(ctx, "update_entity", patch.Name, func(e kgraph.Entity) (kgraph.Entity, bool) {
		if patch.EntityType == nil || *patch.EntityType == e.EntityType {
			return e, false
		}
		e.EntityType = *patch.EntityType
		return e, true
	})
}

// UpdateEntityEmbedding implements [kgraph.GraphStore]. It updates the
// current row's embedding metadata columns in place — no version bump,
// since the embedding is a companion property, not a versioned field. The
// vector itself is not written here; it is stored via the vector index's
// AddVector.
func (s *Store) UpdateEntityEmbedding(ctx context.Context, name string, rec kgraph.EmbeddingRecord) error {
	const q = `
		UPDATE entities
		SET    embedding_provider = $2, embedding_model = $3, embedding_updated_at = $4
		WHERE  name = $1 AND valid_to IS NULL`
	tag, err := s.pool.Exec(ctx, q, name, rec.Provider, rec.Model, rec.LastUpdated)
	if err != nil {
		return newStoreErr("update_entity_embedding", kgraph.KindBackendUnavailable, name, err)
	}
	if tag.RowsAffected() == 0 {
		return newStoreErr("update_entity_embedding", kgraph.KindNotFound, name, nil)
	}
	return nil
}

// DeleteEntities implements [kgraph.GraphStore]: closes each name's current
// version (validTo=now) without inserting a replacement, preserving its
// history, and hard-deletes every relation (current and historical)
// referencing the name so no current or historical relation is left
// dangling on a name with no current entity.
func (s *Store) DeleteEntities(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	now := time.Now()
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM relations WHERE from_name = ANY($1::text[]) OR to_name = ANY($1::text[])`, names); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE entities SET valid_to = $2 WHERE name = ANY($1::text[]) AND valid_to IS NULL`, names, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return newStoreErr("delete_entities", kgraph.KindBackendUnavailable, "", err)
	}
	return nil
}

// OpenNodes implements [kgraph.GraphStore].
func (s *Store) OpenNodes(ctx context.Context, names []string) (kgraph.Graph, error) {
	if len(names) == 0 {
		return kgraph.Graph{}, nil
	}
	entities, err := s.currentEntities(ctx, names)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("open_nodes", kgraph.KindBackendUnavailable, "", err)
	}
	relations, err := s.currentRelationsAmong(ctx, names)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("open_nodes", kgraph.KindBackendUnavailable, "", err)
	}
	return kgraph.Graph{Entities: entities, Relations: relations}, nil
}

// dedupeStrings removes duplicates from in, preserving first-seen order —
// enforces the observation-set invariant at insertion time.
func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func newStoreErr(op string, kind kgraph.Kind, name string, cause error) error {
	return kgraph.NewError(op, kind, name, cause)
}

// wrapStoreErr passes through an already-typed [*kgraph.Error] (e.g. from
// getCurrentEntity's NotFound) and otherwise wraps cause as
// BackendUnavailable.
func wrapStoreErr(op, name string, cause error) error {
	if kgraph.IsKind(cause, kgraph.KindNotFound) {
		return cause
	}
	return newStoreErr(op, kgraph.KindBackendUnavailable, name, cause)
}
