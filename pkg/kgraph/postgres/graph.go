package postgres

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// GetGraphAtTime implements [kgraph.GraphStore]: reconstructs the graph as
// it was valid at t, selecting the row (per entity, per relation) whose
// [ValidFrom, ValidTo) interval contains t.
func (s *Store) GetGraphAtTime(ctx context.Context, t time.Time) (kgraph.Graph, error) {
	const entityQ = `
		SELECT ` + entityColumns + `
		FROM   entities e
		WHERE  e.valid_from <= $1 AND (e.valid_to IS NULL OR e.valid_to > $1)
		ORDER  BY e.name`
	entityRows, err := s.pool.Query(ctx, entityQ, t)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("get_graph_at_time", kgraph.KindBackendUnavailable, "", err)
	}
	entities, err := collectEntities(entityRows, false)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("get_graph_at_time", kgraph.KindBackendUnavailable, "", err)
	}

	const relQ = `
		SELECT ` + relationColumns + `
		FROM   relations r
		WHERE  r.valid_from <= $1 AND (r.valid_to IS NULL OR r.valid_to > $1)
		ORDER  BY r.from_name, r.to_name, r.relation_type`
	relRows, err := s.pool.Query(ctx, relQ, t)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("get_graph_at_time", kgraph.KindBackendUnavailable, "", err)
	}
	relations, err := collectRelations(relRows)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("get_graph_at_time", kgraph.KindBackendUnavailable, "", err)
	}

	return kgraph.Graph{Entities: entities, Relations: relations}, nil
}

// decayRate is ln(0.5) per millisecond of half-life, used by
// [Store.GetDecayedGraph].
func decayRate(halfLife time.Duration) float64 {
	return math.Log(0.5) / float64(halfLife.Milliseconds())
}

// decayConfidence applies §4.1's exponential decay formula to c as of now,
// given validFrom and decay parameters. A non-positive half-life disables
// decay and returns c unchanged.
func decayConfidence(c float64, validFrom, now time.Time, decay kgraph.DecayParams) float64 {
	if decay.HalfLife <= 0 {
		return c
	}
	ageMs := float64(now.Sub(validFrom).Milliseconds())
	decayed := c * math.Exp(decayRate(decay.HalfLife)*ageMs)
	if decayed < decay.Floor {
		return decay.Floor
	}
	return decayed
}

// GetDecayedGraph implements [kgraph.GraphStore]: the current graph with
// every relation's Confidence replaced by its decayed value. Entities are
// untouched.
func (s *Store) GetDecayedGraph(ctx context.Context, decay kgraph.DecayParams) (kgraph.Graph, error) {
	entities, err := s.currentEntities(ctx, nil)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("get_decayed_graph", kgraph.KindBackendUnavailable, "", err)
	}
	relations, err := s.currentRelations(ctx, nil)
	if err != nil {
		return kgraph.Graph{}, newStoreErr("get_decayed_graph", kgraph.KindBackendUnavailable, "", err)
	}

	now := time.Now()
	decayedRelations := make([]kgraph.Relation, len(relations))
	for i, r := range relations {
		decayedRelations[i] = r
		if r.Confidence == nil {
			continue
		}
		c := decayConfidence(*r.Confidence, r.ValidFrom, now, decay)
		decayedRelations[i].Confidence = &c
	}

	return kgraph.Graph{Entities: entities, Relations: decayedRelations}, nil
}

// matchesQuery reports whether an entity's name, type, or any observation
// matches query: a case-insensitive substring by default, or a compiled
// regular expression when regex is true. Matching is case-insensitive
// unless caseSensitive opts out, in either mode.
func matchesQuery(e kgraph.Entity, query string, regex, caseSensitive bool) (bool, error) {
	if query == "" {
		return true, nil
	}
	if regex {
		pattern := query
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, kgraph.NewError("search_nodes", kgraph.KindInvalidArgument, "", err)
		}
		if re.MatchString(e.Name) || re.MatchString(e.EntityType) {
			return true, nil
		}
		for _, o := range e.Observations {
			if re.MatchString(o) {
				return true, nil
			}
		}
		return false, nil
	}

	name, entityType, q := e.Name, e.EntityType, query
	if !caseSensitive {
		name, entityType, q = strings.ToLower(name), strings.ToLower(entityType), strings.ToLower(q)
	}
	if strings.Contains(name, q) || strings.Contains(entityType, q) {
		return true, nil
	}
	for _, o := range e.Observations {
		if !caseSensitive {
			o = strings.ToLower(o)
		}
		if strings.Contains(o, q) {
			return true, nil
		}
	}
	return false, nil
}

// SearchNodes implements [kgraph.GraphStore]. Matching is performed
// entity-by-entity in Go rather than pushed into SQL, so substring and
// regular-expression queries share one matching path and one set of
// semantics (case-insensitive substring unless Regex is set).
func (s *Store) SearchNodes(ctx context.Context, opts kgraph.TextSearchOptions) (kgraph.PaginatedGraph, error) {
	start := time.Now()

	all, err := s.currentEntities(ctx, nil)
	if err != nil {
		return kgraph.PaginatedGraph{}, newStoreErr("search_nodes", kgraph.KindBackendUnavailable, "", err)
	}

	var matched []kgraph.Entity
	for _, e := range all {
		if len(opts.EntityTypes) > 0 && !slices.Contains(opts.EntityTypes, e.EntityType) {
			continue
		}
		ok, err := matchesQuery(e, opts.Query, opts.Regex, opts.CaseSensitive)
		if err != nil {
			return kgraph.PaginatedGraph{}, err
		}
		if ok {
			matched = append(matched, e)
		}
	}

	offset, limit, pageStyle, err := kgraph.NormalizePageRequest(opts.Page, defaultLimits)
	if err != nil {
		return kgraph.PaginatedGraph{}, err
	}

	page := pageSlice(matched, offset, limit)

	names := make([]string, len(page))
	for i, e := range page {
		names[i] = e.Name
	}
	relations, err := s.currentRelationsAmong(ctx, names)
	if err != nil {
		return kgraph.PaginatedGraph{}, newStoreErr("search_nodes", kgraph.KindBackendUnavailable, "", err)
	}

	// Per §4.6, the total count is only computed when requested — counting
	// the full match set is wasted work for callers that just page forward.
	var total *int
	if opts.Page.WithTotal {
		n := len(matched)
		total = &n
	}

	return kgraph.PaginatedGraph{
		Graph: kgraph.Graph{Entities: page, Relations: relations},
		Page:  kgraph.BuildPage(offset, limit, len(page), total, pageStyle, time.Since(start)),
	}, nil
}

func pageSlice(entities []kgraph.Entity, offset, limit int) []kgraph.Entity {
	if offset >= len(entities) {
		return []kgraph.Entity{}
	}
	end := offset + limit
	if end > len(entities) {
		end = len(entities)
	}
	return entities[offset:end]
}

// defaultLimits bounds searchNodes pagination when the caller doesn't
// override it.
var defaultLimits = kgraph.Limits{DefaultLimit: 20, MaxLimit: 200}

// SaveGraph replaces the entire current graph in one transaction: every
// current entity and relation is closed, then g's entities and relations
// are inserted fresh at version 1. Intended for bootstrap and test fixtures,
// mirroring the loadGraph/saveGraph pairing used by the original in-memory
// implementation this store replaces.
func (s *Store) SaveGraph(ctx context.Context, g kgraph.Graph) error {
	now := time.Now()
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE relations SET valid_to = $1 WHERE valid_to IS NULL`, now); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE entities SET valid_to = $1 WHERE valid_to IS NULL`, now); err != nil {
			return err
		}
		for _, e := range g.Entities {
			e.ID = uuidOrFresh(e.ID)
			e.Version = 1
			e.CreatedAt, e.UpdatedAt, e.ValidFrom = now, now, now
			e.ValidTo = nil
			if err := insertEntity(ctx, tx, e); err != nil {
				return fmt.Errorf("save graph: insert entity %q: %w", e.Name, err)
			}
		}
		for _, r := range g.Relations {
			r.ID = uuidOrFresh(r.ID)
			r.Version = 1
			r.CreatedAt, r.UpdatedAt, r.ValidFrom = now, now, now
			r.ValidTo = nil
			if err := insertRelation(ctx, tx, r); err != nil {
				return fmt.Errorf("save graph: insert relation %s->%s: %w", r.From, r.To, err)
			}
		}
		return nil
	})
	if err != nil {
		return newStoreErr("save_graph", kgraph.KindBackendUnavailable, "", err)
	}
	return nil
}

// uuidOrFresh returns id if non-empty, otherwise a freshly generated one —
// callers of SaveGraph may supply fixture IDs or leave them blank.
func uuidOrFresh(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
