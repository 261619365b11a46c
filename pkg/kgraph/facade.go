package kgraph

import (
	"context"
	"time"

	"github.com/anthropic-labs/kgmemory/internal/observe"
)

// Scheduler is the narrow embedding-job-manager surface the façade depends
// on; satisfied by [github.com/anthropic-labs/kgmemory/pkg/kgraph/embed.Manager].
type Scheduler interface {
	Schedule(name string, priority int)
}

// FacadeOptions configures a [Facade].
type FacadeOptions struct {
	Planner    PlannerOptions
	Cache      CacheOptions
	Decay      DecayParams
	Metrics    *observe.Metrics

	// EnableCache turns on the C8 result cache for SearchNodes/Search reads.
	// Disabled by default since a cache entry can go stale the instant a
	// concurrent mutation lands.
	EnableCache bool
}

// Facade is C9: it composes the graph store (C3), vector index (C4),
// embedding job manager (C5), search planner (C6), and
// pagination/cache layer (C8) behind a single entry point, and owns the
// process-wide init/shutdown sequence.
//
// Every mutating method schedules a post-commit embedding job rather than
// embedding inline, per §4.3's "no coupling to graph transaction" contract:
// a failed or slow embedding never rolls back, retries, or blocks the
// caller's mutation.
type Facade struct {
	store     GraphStore
	scheduler Scheduler
	planner   *Planner
	cache     *ResultCache
	opts      FacadeOptions
}

// NewFacade constructs a [Facade] over store. scheduler may be nil, in which
// case mutations succeed without any embedding being scheduled (useful for
// backends or tests with no embedding provider configured).
func NewFacade(store GraphStore, embedder EmbeddingProvider, scheduler Scheduler, opts FacadeOptions) *Facade {
	f := &Facade{
		store:     store,
		scheduler: scheduler,
		planner:   NewPlanner(store, embedder, opts.Planner),
		opts:      opts,
	}
	if opts.EnableCache {
		f.cache = NewResultCache(opts.Cache)
	}
	return f
}

// Init prepares the backend for use: schema bootstrap (via the store's own
// migration path, outside this package's scope) and vector index
// initialisation when the backend is [VectorCapable].
func (f *Facade) Init(ctx context.Context, dimensions int, metric DistanceMetric) error {
	vc, ok := f.store.(VectorCapable)
	if !ok {
		return nil
	}
	return vc.VectorIndex().Initialize(ctx, dimensions, metric)
}

// LoadGraph returns the current graph.
func (f *Facade) LoadGraph(ctx context.Context) (Graph, error) {
	return f.store.LoadGraph(ctx)
}

// CreateEntities creates new entities and schedules an embedding job for
// each one actually created.
func (f *Facade) CreateEntities(ctx context.Context, inputs []EntityInput) ([]Entity, error) {
	created, err := f.store.CreateEntities(ctx, inputs)
	if err != nil {
		return nil, err
	}
	f.invalidateCache()
	for _, e := range created {
		f.schedule(e.Name, 1)
	}
	return created, nil
}

// CreateRelations creates or merges relations. Relation creation does not
// itself trigger embedding — only entity text changes do.
func (f *Facade) CreateRelations(ctx context.Context, inputs []RelationInput) ([]Relation, error) {
	rels, err := f.store.CreateRelations(ctx, inputs)
	if err != nil {
		return nil, err
	}
	f.invalidateCache()
	return rels, nil
}

// AddObservations appends observations and schedules a re-embedding job for
// every entity that actually gained new content.
func (f *Facade) AddObservations(ctx context.Context, deltas []ObservationDelta) ([]AddObservationsResult, error) {
	results, err := f.store.AddObservations(ctx, deltas)
	if err != nil {
		return nil, err
	}
	f.invalidateCache()
	for _, r := range results {
		if len(r.AddedObservations) > 0 {
			f.schedule(r.Name, 1)
		}
	}
	return results, nil
}

// DeleteObservations removes observations and schedules re-embedding for the
// affected entities (their embedding no longer matches the current text).
func (f *Facade) DeleteObservations(ctx context.Context, deltas []ObservationDelta) error {
	if err := f.store.DeleteObservations(ctx, deltas); err != nil {
		return err
	}
	f.invalidateCache()
	for _, d := range deltas {
		f.schedule(d.Name, 1)
	}
	return nil
}

// UpdateEntity applies a partial patch.
func (f *Facade) UpdateEntity(ctx context.Context, patch EntityPatch) (Entity, error) {
	e, err := f.store.UpdateEntity(ctx, patch)
	if err != nil {
		return Entity{}, err
	}
	f.invalidateCache()
	return e, nil
}

// UpdateRelation applies a partial patch by key.
func (f *Facade) UpdateRelation(ctx context.Context, key RelationKey, input RelationInput) (Relation, error) {
	r, err := f.store.UpdateRelation(ctx, key, input)
	if err != nil {
		return Relation{}, err
	}
	f.invalidateCache()
	return r, nil
}

// DeleteEntities closes the named entities' current versions and fans the
// deletion out to the vector index, per §9's cascade-delete invariant.
func (f *Facade) DeleteEntities(ctx context.Context, names []string) error {
	if err := f.store.DeleteEntities(ctx, names); err != nil {
		return err
	}
	f.invalidateCache()
	if vc, ok := f.store.(VectorCapable); ok {
		idx := vc.VectorIndex()
		for _, name := range names {
			if err := idx.RemoveVector(ctx, name); err != nil {
				observe.Logger(ctx).Warn("kgraph: vector removal failed", "name", name, "error", err)
			}
		}
	}
	return nil
}

// DeleteRelations closes the matching relations' current versions.
func (f *Facade) DeleteRelations(ctx context.Context, keys []RelationKey) error {
	if err := f.store.DeleteRelations(ctx, keys); err != nil {
		return err
	}
	f.invalidateCache()
	return nil
}

// GetEntity returns the current version of the named entity.
func (f *Facade) GetEntity(ctx context.Context, name string) (Entity, error) {
	return f.store.GetEntity(ctx, name)
}

// GetRelation returns the current version of the relation identified by key.
func (f *Facade) GetRelation(ctx context.Context, key RelationKey) (Relation, error) {
	return f.store.GetRelation(ctx, key)
}

// GetEntityHistory returns every version of the named entity.
func (f *Facade) GetEntityHistory(ctx context.Context, name string) ([]Entity, error) {
	return f.store.GetEntityHistory(ctx, name)
}

// GetRelationHistory returns every version of the relation identified by key.
func (f *Facade) GetRelationHistory(ctx context.Context, key RelationKey) ([]Relation, error) {
	return f.store.GetRelationHistory(ctx, key)
}

// GetGraphAtTime reconstructs the graph as it was valid at instant t.
func (f *Facade) GetGraphAtTime(ctx context.Context, t time.Time) (Graph, error) {
	return f.store.GetGraphAtTime(ctx, t)
}

// GetDecayedGraph returns the current graph with relation confidence decayed
// per the façade's configured [DecayParams].
func (f *Facade) GetDecayedGraph(ctx context.Context) (Graph, error) {
	return f.store.GetDecayedGraph(ctx, f.opts.Decay)
}

// Search dispatches a query through the C6 planner, consulting and
// populating the C8 result cache when enabled.
func (f *Facade) Search(ctx context.Context, opts SearchOptions) (PaginatedGraph, error) {
	start := time.Now()

	if f.cache != nil {
		if key := cacheKey(opts); key != "" {
			if cached, ok := f.cache.Get(key); ok {
				f.recordCacheLookup(ctx, true)
				return cached, nil
			}
			f.recordCacheLookup(ctx, false)
			result, err := f.planner.Search(ctx, opts)
			if err == nil {
				result.Page.QueryTime = time.Since(start)
				f.cache.Put(key, result, estimateSize(result))
			}
			return result, err
		}
	}

	result, err := f.planner.Search(ctx, opts)
	if err == nil {
		result.Page.QueryTime = time.Since(start)
	}
	return result, err
}

// AvailableStrategies reports which search strategies the façade can
// currently serve.
func (f *Facade) AvailableStrategies() []Strategy {
	return f.planner.AvailableStrategies()
}

func (f *Facade) schedule(name string, priority int) {
	if f.scheduler == nil {
		return
	}
	f.scheduler.Schedule(name, priority)
}

func (f *Facade) invalidateCache() {
	if f.cache != nil {
		f.cache.Invalidate()
	}
}

func (f *Facade) recordCacheLookup(ctx context.Context, hit bool) {
	if f.opts.Metrics != nil {
		f.opts.Metrics.RecordCacheLookup(ctx, hit)
	}
}

// cacheKey derives a cache key from the query-relevant fields of opts.
// Returns "" for an empty query, whatever the strategy: such a search is
// effectively "list everything" and churns too fast to be worth caching.
func cacheKey(opts SearchOptions) string {
	if opts.Query == "" {
		return ""
	}
	key := string(opts.Strategy) + "|" + opts.Query
	for _, t := range opts.EntityTypes {
		key += "|" + t
	}
	return key
}

// estimateSize approximates a [PaginatedGraph]'s weight in bytes for the
// result cache's size bound: a fixed per-entity/per-relation overhead plus
// observation and embedding payload sizes.
func estimateSize(g PaginatedGraph) int64 {
	var size int64
	for _, e := range g.Graph.Entities {
		size += 128
		for _, o := range e.Observations {
			size += int64(len(o))
		}
		if e.Embedding != nil {
			size += int64(len(e.Embedding.Vector)) * 4
		}
	}
	size += int64(len(g.Graph.Relations)) * 96
	return size
}
