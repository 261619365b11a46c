// Package analytics computes graph statistics, per-node metrics, and
// shortest-path families over an in-memory snapshot of the knowledge graph.
// Every function here is a pure, deterministic computation over a
// [kgraph.Graph] value; nothing in this package talks to a backend.
package analytics

import (
	"sort"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// adjacency indexes a [kgraph.Graph] for repeated traversal: directed
// out/in edges plus an undirected projection used by component and
// clustering computations.
type adjacency struct {
	entities map[string]kgraph.Entity
	out      map[string][]edge
	in       map[string][]edge
	undir    map[string]map[string]bool
}

type edge struct {
	to       string
	relation kgraph.Relation
}

func buildAdjacency(g kgraph.Graph) *adjacency {
	a := &adjacency{
		entities: make(map[string]kgraph.Entity, len(g.Entities)),
		out:      make(map[string][]edge),
		in:       make(map[string][]edge),
		undir:    make(map[string]map[string]bool),
	}
	for _, e := range g.Entities {
		a.entities[e.Name] = e
		if a.undir[e.Name] == nil {
			a.undir[e.Name] = make(map[string]bool)
		}
	}
	for _, r := range g.Relations {
		a.out[r.From] = append(a.out[r.From], edge{to: r.To, relation: r})
		a.in[r.To] = append(a.in[r.To], edge{to: r.From, relation: r})
		if a.undir[r.From] == nil {
			a.undir[r.From] = make(map[string]bool)
		}
		if a.undir[r.To] == nil {
			a.undir[r.To] = make(map[string]bool)
		}
		a.undir[r.From][r.To] = true
		a.undir[r.To][r.From] = true
	}
	return a
}

// names returns every entity name in the snapshot, sorted for deterministic
// iteration order (tie-breaking in top-N lists and output ordering).
func (a *adjacency) names() []string {
	out := make([]string, 0, len(a.entities))
	for n := range a.entities {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (a *adjacency) degree(name string) (in, out int) {
	return len(a.in[name]), len(a.out[name])
}

func (a *adjacency) neighbors(name string) []string {
	seen := make(map[string]bool)
	var out []string
	for n := range a.undir[name] {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
