package analytics

import (
	"testing"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

func TestAnalyzeNode_NotFound(t *testing.T) {
	t.Parallel()

	_, err := AnalyzeNode(starGraph("hub", "a"), "ghost", NodeOptions{})
	if !kgraph.IsKind(err, kgraph.KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}
}

func TestAnalyzeNode_DegreeAndDepth(t *testing.T) {
	t.Parallel()

	g := starGraph("hub", "a", "b", "c")
	report, err := AnalyzeNode(g, "hub", NodeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OutDegree != 3 || report.InDegree != 0 || report.TotalDegree != 3 {
		t.Errorf("degrees = in=%d out=%d total=%d, want in=0 out=3 total=3", report.InDegree, report.OutDegree, report.TotalDegree)
	}
	if len(report.Depth1) != 3 {
		t.Errorf("Depth1 = %v, want 3 spokes", report.Depth1)
	}
	// The spokes have no edges among themselves, so depth2 from hub is empty.
	if len(report.Depth2) != 0 {
		t.Errorf("Depth2 = %v, want empty", report.Depth2)
	}
	if report.Influence.Radius != 1 {
		t.Errorf("Radius = %d, want 1", report.Influence.Radius)
	}
}

func TestAnalyzeNode_Depth2Reaches(t *testing.T) {
	t.Parallel()

	g := chainGraph("a", "b", "c", "d")
	report, err := AnalyzeNode(g, "a", NodeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Depth1) != 1 || report.Depth1[0] != "b" {
		t.Errorf("Depth1 = %v, want [b]", report.Depth1)
	}
	if len(report.Depth2) != 1 || report.Depth2[0] != "c" {
		t.Errorf("Depth2 = %v, want [c]", report.Depth2)
	}
	if report.Influence.Radius != 2 {
		t.Errorf("Radius = %d, want 2", report.Influence.Radius)
	}
}

func TestAnalyzeNode_MaxNeighborsBound(t *testing.T) {
	t.Parallel()

	g := starGraph("hub", "a", "b", "c", "d", "e")
	report, err := AnalyzeNode(g, "hub", NodeOptions{MaxNeighbors: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Depth1) != 2 {
		t.Errorf("Depth1 length = %d, want 2 (bounded)", len(report.Depth1))
	}
}

func TestAnalyzeNode_ClosenessCentralityOfIsolatedNode(t *testing.T) {
	t.Parallel()

	g := starGraph("hub", "a")
	g.Entities = append(g.Entities, entity("loner", "Node"))

	report, err := AnalyzeNode(g, "loner", NodeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ClosenessCentrality != nil {
		t.Errorf("expected nil closeness for an unreachable node, got %v", *report.ClosenessCentrality)
	}
}

func TestAnalyzeNode_ClosenessCentralityOfConnectedNode(t *testing.T) {
	t.Parallel()

	g := chainGraph("a", "b", "c")
	report, err := AnalyzeNode(g, "a", NodeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ClosenessCentrality == nil {
		t.Fatal("expected non-nil closeness centrality")
	}
	// Distances from a: b=1, c=2. Average = 1.5, closeness = 1/1.5.
	want := 1.0 / 1.5
	if diff := *report.ClosenessCentrality - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ClosenessCentrality = %v, want %v", *report.ClosenessCentrality, want)
	}
}

// TestBFSDistances_ExpandsDequeuedNode guards against the indexing bug where
// each BFS step re-expands the origin's neighbours instead of the node just
// popped from the queue — that bug would report every reachable node at
// distance 1 regardless of its true hop count.
func TestBFSDistances_ExpandsDequeuedNode(t *testing.T) {
	t.Parallel()

	g := chainGraph("a", "b", "c", "d")
	a := buildAdjacency(g)
	dist := bfsDistances(a, "a")

	want := map[string]int{"a": 0, "b": 1, "c": 2, "d": 3}
	for name, d := range want {
		if got := dist[name]; got != d {
			t.Errorf("dist[%q] = %d, want %d", name, got, d)
		}
	}
}
