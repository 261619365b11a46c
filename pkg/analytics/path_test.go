package analytics

import (
	"testing"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

func TestFindPaths_NotFound(t *testing.T) {
	t.Parallel()

	_, err := FindPaths(chainGraph("a", "b"), "ghost", "b", PathOptions{})
	if !kgraph.IsKind(err, kgraph.KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}
}

// TestFindPaths_BFSVsBidirectional reproduces spec scenario E: a linear
// chain A->B->C->D->E. Both unidirectional BFS and bidirectional BFS must
// find the unique length-4 path, and the bidirectional search must not
// explore more nodes than the unidirectional one.
func TestFindPaths_BFSVsBidirectional(t *testing.T) {
	t.Parallel()

	g := chainGraph("A", "B", "C", "D", "E")

	uni, err := FindPaths(g, "A", "E", PathOptions{MaxDepth: 6, Bidirectional: false})
	if err != nil {
		t.Fatalf("unidirectional: unexpected error: %v", err)
	}
	if len(uni.Paths) != 1 || len(uni.Paths[0]) != 5 {
		t.Fatalf("unidirectional paths = %v, want one path of 5 nodes (4 hops)", uni.Paths)
	}

	bidir, err := FindPaths(g, "A", "E", PathOptions{MaxDepth: 6, Bidirectional: true})
	if err != nil {
		t.Fatalf("bidirectional: unexpected error: %v", err)
	}
	if len(bidir.Paths) != 1 || len(bidir.Paths[0]) != 5 {
		t.Fatalf("bidirectional paths = %v, want one path of 5 nodes (4 hops)", bidir.Paths)
	}

	if bidir.NodesExplored > uni.NodesExplored {
		t.Errorf("bidirectional explored %d nodes, unidirectional explored %d; want bidir <= uni",
			bidir.NodesExplored, uni.NodesExplored)
	}
}

func TestFindPaths_BidirectionalIgnoredForShallowDepth(t *testing.T) {
	t.Parallel()

	// maxDepth <= 2 falls back to plain BFS per the strategy-selection rule.
	g := chainGraph("A", "B", "C")
	result, err := FindPaths(g, "A", "C", PathOptions{MaxDepth: 2, Bidirectional: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != "bfs" {
		t.Errorf("Strategy = %q, want bfs (bidirectional should not engage at maxDepth<=2)", result.Strategy)
	}
}

func TestFindPaths_DFS(t *testing.T) {
	t.Parallel()

	g := chainGraph("A", "B", "C", "D")
	result, err := FindPaths(g, "A", "D", PathOptions{DepthFirst: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != "dfs" {
		t.Errorf("Strategy = %q, want dfs", result.Strategy)
	}
	if len(result.Paths) != 1 || len(result.Paths[0]) != 4 {
		t.Fatalf("paths = %v, want one path of 4 nodes", result.Paths)
	}
}

func TestFindPaths_MaxDepthBoundsResults(t *testing.T) {
	t.Parallel()

	g := chainGraph("A", "B", "C", "D", "E")
	result, err := FindPaths(g, "A", "E", PathOptions{MaxDepth: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Paths) != 0 {
		t.Errorf("expected no paths within maxDepth=2 for a 4-hop target, got %v", result.Paths)
	}
}

func TestFindPaths_WeightedDijkstra(t *testing.T) {
	t.Parallel()

	strongDirect := 0.1
	strongDetour := 1.0
	g := kgraph.Graph{
		Entities: []kgraph.Entity{entity("a", "N"), entity("b", "N"), entity("c", "N")},
		Relations: []kgraph.Relation{
			{From: "a", To: "c", RelationType: "r", Strength: &strongDirect}, // weight = 1/0.1 = 10
			{From: "a", To: "b", RelationType: "r", Strength: &strongDetour}, // weight = 1
			{From: "b", To: "c", RelationType: "r", Strength: &strongDetour}, // weight = 1
		},
	}

	result, err := FindPaths(g, "a", "c", PathOptions{IncludeWeights: true, MaxDepth: 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != "dijkstra" {
		t.Errorf("Strategy = %q, want dijkstra", result.Strategy)
	}
	if len(result.Paths) != 1 {
		t.Fatalf("expected exactly one path, got %v", result.Paths)
	}
	want := []string{"a", "b", "c"}
	got := result.Paths[0]
	if len(got) != len(want) {
		t.Fatalf("path = %v, want %v (lower total weight via detour)", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path = %v, want %v", got, want)
			break
		}
	}
}

func TestFindPaths_NoPathExists(t *testing.T) {
	t.Parallel()

	g := kgraph.Graph{Entities: []kgraph.Entity{entity("a", "N"), entity("b", "N")}}
	result, err := FindPaths(g, "a", "b", PathOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Paths) != 0 {
		t.Errorf("expected no paths between disconnected nodes, got %v", result.Paths)
	}
}
