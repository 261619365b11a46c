package kgraph

import (
	"context"
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// TestFuseWeightedScores_SpecScenario exercises the literal arithmetic from
// the weighted-fusion worked example: graph ranks x=0.9, y=0.3; vector ranks
// y=0.95, x=0.10; weights (0.4 graph, 0.6 vector) should put y ahead of x
// with scores x=0.42, y=0.69.
func TestFuseWeightedScores_SpecScenario(t *testing.T) {
	t.Parallel()

	graph := map[string]float64{"x": 0.9, "y": 0.3}
	vector := map[string]float64{"x": 0.10, "y": 0.95}
	weights := HybridWeights{Graph: 0.4, Vector: 0.6}

	fused := fuseWeightedScores(graph, vector, weights)
	if len(fused) != 2 {
		t.Fatalf("got %d entries, want 2", len(fused))
	}

	byName := map[string]float64{}
	for _, f := range fused {
		byName[f.name] = f.score
	}
	if !almostEqual(byName["x"], 0.42) {
		t.Errorf("x score = %v, want 0.42", byName["x"])
	}
	if !almostEqual(byName["y"], 0.69) {
		t.Errorf("y score = %v, want 0.69", byName["y"])
	}

	if fused[0].name != "y" {
		t.Errorf("expected y ranked first, got %q", fused[0].name)
	}
}

func TestFuseWeightedScores_MissingFromOneSourceContributesZero(t *testing.T) {
	t.Parallel()

	graph := map[string]float64{"only-graph": 1.0}
	vector := map[string]float64{"only-vector": 1.0}
	weights := HybridWeights{Graph: 0.4, Vector: 0.6}

	fused := fuseWeightedScores(graph, vector, weights)
	byName := map[string]float64{}
	for _, f := range fused {
		byName[f.name] = f.score
	}
	if !almostEqual(byName["only-graph"], 0.4) {
		t.Errorf("only-graph score = %v, want 0.4 (vector term 0)", byName["only-graph"])
	}
	if !almostEqual(byName["only-vector"], 0.6) {
		t.Errorf("only-vector score = %v, want 0.6 (graph term 0)", byName["only-vector"])
	}
}

func TestNormalizeByRank(t *testing.T) {
	t.Parallel()

	ranked := []scoredEntity{{name: "a"}, {name: "b"}, {name: "c"}, {name: "d"}}
	norm := normalizeByRank(ranked)
	if !almostEqual(norm["a"], 1.0) {
		t.Errorf("rank 0 score = %v, want 1.0", norm["a"])
	}
	if !almostEqual(norm["d"], 0.25) {
		t.Errorf("rank 3 of 4 score = %v, want 0.25", norm["d"])
	}
}

func TestNormalizeByRank_Empty(t *testing.T) {
	t.Parallel()
	if got := normalizeByRank(nil); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestFuseRRF_UnionAndOrdering(t *testing.T) {
	t.Parallel()

	graph := []scoredEntity{{name: "a"}, {name: "b"}}
	vector := []scoredEntity{{name: "b"}, {name: "c"}}

	fused := fuseRRF(graph, vector)
	if len(fused) != 3 {
		t.Fatalf("got %d entries, want 3 (union of a,b,c)", len(fused))
	}
	// "b" appears at rank 2 in graph and rank 1 in vector — it accumulates
	// the largest RRF score and should rank first.
	if fused[0].name != "b" {
		t.Errorf("expected \"b\" ranked first, got %q", fused[0].name)
	}
}

// stubPlannerStore is a minimal GraphStore for Planner dispatch tests; only
// SearchNodes and OpenNodes are exercised by the graph-strategy path.
type stubPlannerStore struct {
	searchResult PaginatedGraph
	searchErr    error
	openResult   Graph
	openErr      error
}

func (s *stubPlannerStore) LoadGraph(context.Context) (Graph, error) { return Graph{}, nil }
func (s *stubPlannerStore) CreateEntities(context.Context, []EntityInput) ([]Entity, error) {
	return nil, nil
}
func (s *stubPlannerStore) CreateRelations(context.Context, []RelationInput) ([]Relation, error) {
	return nil, nil
}
func (s *stubPlannerStore) AddObservations(context.Context, []ObservationDelta) ([]AddObservationsResult, error) {
	return nil, nil
}
func (s *stubPlannerStore) DeleteObservations(context.Context, []ObservationDelta) error { return nil }
func (s *stubPlannerStore) UpdateEntity(context.Context, EntityPatch) (Entity, error)    { return Entity{}, nil }
func (s *stubPlannerStore) UpdateRelation(context.Context, RelationKey, RelationInput) (Relation, error) {
	return Relation{}, nil
}
func (s *stubPlannerStore) UpdateEntityEmbedding(context.Context, string, EmbeddingRecord) error {
	return nil
}
func (s *stubPlannerStore) DeleteEntities(context.Context, []string) error      { return nil }
func (s *stubPlannerStore) DeleteRelations(context.Context, []RelationKey) error { return nil }
func (s *stubPlannerStore) GetEntity(context.Context, string) (Entity, error)   { return Entity{}, nil }
func (s *stubPlannerStore) GetRelation(context.Context, RelationKey) (Relation, error) {
	return Relation{}, nil
}
func (s *stubPlannerStore) GetEntityHistory(context.Context, string) ([]Entity, error) { return nil, nil }
func (s *stubPlannerStore) GetRelationHistory(context.Context, RelationKey) ([]Relation, error) {
	return nil, nil
}
func (s *stubPlannerStore) GetGraphAtTime(context.Context, time.Time) (Graph, error) {
	return Graph{}, nil
}
func (s *stubPlannerStore) GetDecayedGraph(context.Context, DecayParams) (Graph, error) {
	return Graph{}, nil
}
func (s *stubPlannerStore) SearchNodes(context.Context, TextSearchOptions) (PaginatedGraph, error) {
	return s.searchResult, s.searchErr
}
func (s *stubPlannerStore) OpenNodes(context.Context, []string) (Graph, error) {
	return s.openResult, s.openErr
}

func TestPlanner_AvailableStrategies_GraphOnlyWithoutEmbedder(t *testing.T) {
	t.Parallel()

	p := NewPlanner(&stubPlannerStore{}, nil, PlannerOptions{})
	got := p.AvailableStrategies()
	if len(got) != 1 || got[0] != StrategyGraph {
		t.Errorf("AvailableStrategies() = %v, want [graph]", got)
	}
}

func TestPlanner_Search_GraphStrategy(t *testing.T) {
	t.Parallel()

	want := PaginatedGraph{Graph: Graph{Entities: []Entity{{Name: "alice"}}}}
	p := NewPlanner(&stubPlannerStore{searchResult: want}, nil, PlannerOptions{})

	got, err := p.Search(context.Background(), SearchOptions{Query: "alice", Strategy: StrategyGraph})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Entities) != 1 || got.Entities[0].Name != "alice" {
		t.Errorf("got %+v", got)
	}
}

func TestPlanner_Search_VectorStrategyWithoutEmbedderFails(t *testing.T) {
	t.Parallel()

	p := NewPlanner(&stubPlannerStore{}, nil, PlannerOptions{})
	_, err := p.Search(context.Background(), SearchOptions{Query: "x", Strategy: StrategyVector})
	if !IsKind(err, KindInvalidArgument) {
		t.Errorf("expected KindInvalidArgument, got %v", err)
	}
}

func TestPlanner_Search_UnknownStrategy(t *testing.T) {
	t.Parallel()

	p := NewPlanner(&stubPlannerStore{}, nil, PlannerOptions{})
	_, err := p.Search(context.Background(), SearchOptions{Strategy: "bogus"})
	if !IsKind(err, KindInvalidArgument) {
		t.Errorf("expected KindInvalidArgument, got %v", err)
	}
}
