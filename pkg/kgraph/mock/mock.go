// Package mock provides in-memory test doubles for the kgraph interfaces.
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := mock.NewGraphStore()
//	store.GetEntityErr = errors.New("boom")
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("GetEntity"); got != 1 {
//	    t.Errorf("expected 1 GetEntity call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// ─────────────────────────────────────────────────────────────────────────────
// GraphStore mock
// ─────────────────────────────────────────────────────────────────────────────

// GraphStore is a configurable, in-memory test double for [kgraph.GraphStore].
// Unlike a pure call-recorder, it keeps current entities/relations in maps so
// planner and façade tests can exercise realistic read-after-write behavior
// without a database.
type GraphStore struct {
	mu    sync.Mutex
	calls []Call

	entities  map[string]kgraph.Entity
	relations map[kgraph.RelationKey]kgraph.Relation

	// GetEntityErr, when non-nil, is returned by GetEntity regardless of
	// whether name is present.
	GetEntityErr error

	// SearchNodesResult overrides SearchNodes's computed response when set.
	SearchNodesResult *kgraph.PaginatedGraph
	SearchNodesErr    error
}

// NewGraphStore returns an empty [GraphStore].
func NewGraphStore() *GraphStore {
	return &GraphStore{
		entities:  make(map[string]kgraph.Entity),
		relations: make(map[kgraph.RelationKey]kgraph.Relation),
	}
}

// Calls returns a copy of all recorded method invocations.
func (m *GraphStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *GraphStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *GraphStore) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// SeedEntity inserts or overwrites an entity directly, bypassing versioning —
// for test setup only.
func (m *GraphStore) SeedEntity(e kgraph.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.Name] = e
}

// SeedRelation inserts or overwrites a relation directly, bypassing
// versioning — for test setup only.
func (m *GraphStore) SeedRelation(r kgraph.Relation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relations[kgraph.RelationKey{From: r.From, To: r.To, RelationType: r.RelationType}] = r
}

func (m *GraphStore) LoadGraph(_ context.Context) (kgraph.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("LoadGraph")
	return m.snapshotLocked(), nil
}

func (m *GraphStore) snapshotLocked() kgraph.Graph {
	g := kgraph.Graph{}
	for _, e := range m.entities {
		g.Entities = append(g.Entities, e)
	}
	for _, r := range m.relations {
		g.Relations = append(g.Relations, r)
	}
	return g
}

func (m *GraphStore) CreateEntities(_ context.Context, inputs []kgraph.EntityInput) ([]kgraph.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateEntities", inputs)
	now := time.Now()
	var created []kgraph.Entity
	for _, in := range inputs {
		if _, exists := m.entities[in.Name]; exists {
			continue
		}
		e := kgraph.Entity{
			Name: in.Name, EntityType: in.EntityType, Observations: in.Observations,
			Temporal: kgraph.Temporal{ID: in.Name + "-v1", Version: 1, CreatedAt: now, UpdatedAt: now, ValidFrom: now},
		}
		m.entities[in.Name] = e
		created = append(created, e)
	}
	return created, nil
}

func (m *GraphStore) CreateRelations(_ context.Context, inputs []kgraph.RelationInput) ([]kgraph.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateRelations", inputs)
	now := time.Now()
	var out []kgraph.Relation
	for _, in := range inputs {
		key := kgraph.RelationKey{From: in.From, To: in.To, RelationType: in.RelationType}
		r := kgraph.Relation{
			From: in.From, To: in.To, RelationType: in.RelationType,
			Strength: in.Strength, Confidence: in.Confidence, Metadata: in.Metadata,
			Temporal: kgraph.Temporal{Version: 1, CreatedAt: now, UpdatedAt: now, ValidFrom: now},
		}
		if existing, ok := m.relations[key]; ok {
			r.Version = existing.Version + 1
			r.CreatedAt = existing.CreatedAt
		}
		m.relations[key] = r
		out = append(out, r)
	}
	return out, nil
}

func (m *GraphStore) AddObservations(_ context.Context, deltas []kgraph.ObservationDelta) ([]kgraph.AddObservationsResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AddObservations", deltas)
	var results []kgraph.AddObservationsResult
	for _, d := range deltas {
		e, ok := m.entities[d.Name]
		if !ok {
			continue
		}
		existing := make(map[string]bool, len(e.Observations))
		for _, o := range e.Observations {
			existing[o] = true
		}
		var added []string
		for _, o := range d.Observations {
			if !existing[o] {
				existing[o] = true
				added = append(added, o)
				e.Observations = append(e.Observations, o)
			}
		}
		e.Version++
		m.entities[d.Name] = e
		results = append(results, kgraph.AddObservationsResult{Name: d.Name, AddedObservations: added})
	}
	return results, nil
}

func (m *GraphStore) DeleteObservations(_ context.Context, deltas []kgraph.ObservationDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteObservations", deltas)
	for _, d := range deltas {
		e, ok := m.entities[d.Name]
		if !ok {
			continue
		}
		remove := make(map[string]bool, len(d.Observations))
		for _, o := range d.Observations {
			remove[o] = true
		}
		kept := e.Observations[:0:0]
		for _, o := range e.Observations {
			if !remove[o] {
				kept = append(kept, o)
			}
		}
		e.Observations = kept
		e.Version++
		m.entities[d.Name] = e
	}
	return nil
}

func (m *GraphStore) UpdateEntity(_ context.Context, patch kgraph.EntityPatch) (kgraph.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateEntity", patch)
	e, ok := m.entities[patch.Name]
	if !ok {
		return kgraph.Entity{}, kgraph.NewError("update_entity", kgraph.KindNotFound, patch.Name, nil)
	}
	if patch.EntityType != nil {
		e.EntityType = *patch.EntityType
	}
	e.Version++
	m.entities[patch.Name] = e
	return e, nil
}

func (m *GraphStore) UpdateRelation(_ context.Context, key kgraph.RelationKey, input kgraph.RelationInput) (kgraph.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateRelation", key, input)
	r, ok := m.relations[key]
	if !ok {
		return kgraph.Relation{}, kgraph.NewError("update_relation", kgraph.KindNotFound, key.From, nil)
	}
	if input.Strength != nil {
		r.Strength = input.Strength
	}
	if input.Confidence != nil {
		r.Confidence = input.Confidence
	}
	r.Version++
	m.relations[key] = r
	return r, nil
}

func (m *GraphStore) UpdateEntityEmbedding(_ context.Context, name string, rec kgraph.EmbeddingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateEntityEmbedding", name, rec)
	e, ok := m.entities[name]
	if !ok {
		return kgraph.NewError("update_entity_embedding", kgraph.KindNotFound, name, nil)
	}
	e.Embedding = &rec
	m.entities[name] = e
	return nil
}

func (m *GraphStore) DeleteEntities(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteEntities", names)
	for _, n := range names {
		delete(m.entities, n)
	}
	for k, r := range m.relations {
		if r.From == "" {
			continue
		}
		for _, n := range names {
			if r.From == n || r.To == n {
				delete(m.relations, k)
			}
		}
	}
	return nil
}

func (m *GraphStore) DeleteRelations(_ context.Context, keys []kgraph.RelationKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteRelations", keys)
	for _, k := range keys {
		delete(m.relations, k)
	}
	return nil
}

func (m *GraphStore) GetEntity(_ context.Context, name string) (kgraph.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetEntity", name)
	if m.GetEntityErr != nil {
		return kgraph.Entity{}, m.GetEntityErr
	}
	e, ok := m.entities[name]
	if !ok {
		return kgraph.Entity{}, kgraph.NewError("get_entity", kgraph.KindNotFound, name, nil)
	}
	return e, nil
}

func (m *GraphStore) GetRelation(_ context.Context, key kgraph.RelationKey) (kgraph.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetRelation", key)
	r, ok := m.relations[key]
	if !ok {
		return kgraph.Relation{}, kgraph.NewError("get_relation", kgraph.KindNotFound, key.From, nil)
	}
	return r, nil
}

func (m *GraphStore) GetEntityHistory(_ context.Context, name string) ([]kgraph.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetEntityHistory", name)
	if e, ok := m.entities[name]; ok {
		return []kgraph.Entity{e}, nil
	}
	return nil, kgraph.NewError("get_entity_history", kgraph.KindNotFound, name, nil)
}

func (m *GraphStore) GetRelationHistory(_ context.Context, key kgraph.RelationKey) ([]kgraph.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetRelationHistory", key)
	if r, ok := m.relations[key]; ok {
		return []kgraph.Relation{r}, nil
	}
	return nil, nil
}

func (m *GraphStore) GetGraphAtTime(_ context.Context, t time.Time) (kgraph.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetGraphAtTime", t)
	return m.snapshotLocked(), nil
}

func (m *GraphStore) GetDecayedGraph(_ context.Context, decay kgraph.DecayParams) (kgraph.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetDecayedGraph", decay)
	return m.snapshotLocked(), nil
}

func (m *GraphStore) SearchNodes(_ context.Context, opts kgraph.TextSearchOptions) (kgraph.PaginatedGraph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SearchNodes", opts)
	if m.SearchNodesErr != nil {
		return kgraph.PaginatedGraph{}, m.SearchNodesErr
	}
	if m.SearchNodesResult != nil {
		return *m.SearchNodesResult, nil
	}
	g := m.snapshotLocked()
	total := len(g.Entities)
	return kgraph.PaginatedGraph{Graph: g, Page: kgraph.BuildPage(0, total, total, &total, false, 0)}, nil
}

func (m *GraphStore) OpenNodes(_ context.Context, names []string) (kgraph.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("OpenNodes", names)
	g := kgraph.Graph{}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
		if e, ok := m.entities[n]; ok {
			g.Entities = append(g.Entities, e)
		}
	}
	for _, r := range m.relations {
		if set[r.From] && set[r.To] {
			g.Relations = append(g.Relations, r)
		}
	}
	return g, nil
}

var _ kgraph.GraphStore = (*GraphStore)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// VectorIndex mock
// ─────────────────────────────────────────────────────────────────────────────

// VectorIndex is a configurable in-memory test double for [kgraph.VectorIndex].
type VectorIndex struct {
	mu      sync.Mutex
	calls   []Call
	vectors map[string][]float32
	tags    map[string]map[string]string

	SearchResult []kgraph.VectorMatch
	SearchErr    error
}

// NewVectorIndex returns an empty [VectorIndex].
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		vectors: make(map[string][]float32),
		tags:    make(map[string]map[string]string),
	}
}

func (m *VectorIndex) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *VectorIndex) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *VectorIndex) Initialize(_ context.Context, _ int, _ kgraph.DistanceMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Initialize"})
	return nil
}

func (m *VectorIndex) AddVector(_ context.Context, name string, vector []float32, tags map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "AddVector", Args: []any{name, vector, tags}})
	m.vectors[name] = vector
	m.tags[name] = tags
	return nil
}

func (m *VectorIndex) RemoveVector(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "RemoveVector", Args: []any{name}})
	delete(m.vectors, name)
	delete(m.tags, name)
	return nil
}

func (m *VectorIndex) Search(_ context.Context, _ []float32, opts kgraph.VectorSearchOptions) ([]kgraph.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Search", Args: []any{opts}})
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return m.SearchResult, nil
}

var _ kgraph.VectorIndex = (*VectorIndex)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// EmbeddingProvider mock
// ─────────────────────────────────────────────────────────────────────────────

// EmbeddingProvider is a configurable test double matching the structural
// embedding-provider contract used by [kgraph.Planner] and the embedding job
// manager.
type EmbeddingProvider struct {
	mu    sync.Mutex
	calls []Call

	EmbedResult []float32
	EmbedErr    error
	Dims        int
	Model       string
}

func (m *EmbeddingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Embed", Args: []any{text}})
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return m.EmbedResult, nil
}

func (m *EmbeddingProvider) Dimensions() int { return m.Dims }
func (m *EmbeddingProvider) ModelID() string { return m.Model }

func (m *EmbeddingProvider) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
