package analytics

import "testing"

func TestBuildAdjacency_DegreeAndNeighbors(t *testing.T) {
	t.Parallel()

	g := starGraph("hub", "a", "b")
	a := buildAdjacency(g)

	in, out := a.degree("hub")
	if in != 0 || out != 2 {
		t.Errorf("hub degree = in=%d out=%d, want in=0 out=2", in, out)
	}

	in, out = a.degree("a")
	if in != 1 || out != 0 {
		t.Errorf("spoke degree = in=%d out=%d, want in=1 out=0", in, out)
	}

	neighbors := a.neighbors("hub")
	if len(neighbors) != 2 || neighbors[0] != "a" || neighbors[1] != "b" {
		t.Errorf("neighbors(hub) = %v, want sorted [a b]", neighbors)
	}
}

func TestBuildAdjacency_NamesSorted(t *testing.T) {
	t.Parallel()

	g := starGraph("hub", "z", "a", "m")
	a := buildAdjacency(g)
	names := a.names()
	want := []string{"a", "hub", "m", "z"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
