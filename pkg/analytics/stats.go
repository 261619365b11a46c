package analytics

import (
	"time"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// StatsOptions controls which optional, more expensive statistics
// [ComputeStats] includes.
type StatsOptions struct {
	IncludeComponents bool
	IncludeClustering bool
}

// DegreeStats summarises the total-degree distribution across all entities.
type DegreeStats struct {
	Min  int
	Max  int
	Mean float64
}

// NodeDegree pairs an entity name with its total degree, used for top-N
// lists.
type NodeDegree struct {
	Name   string
	Degree int
}

// GraphStats is the result of [ComputeStats].
type GraphStats struct {
	EntityCount      int
	RelationCount    int
	TypeDistribution map[string]int
	Density          float64
	Degree           DegreeStats
	TopConnected     []NodeDegree
	IsolatedNodes    []string

	// WeaklyConnected is always computed.
	WeaklyConnected int

	// StronglyConnected is nil unless opts.IncludeComponents is set — per
	// §9, this core never conflates a skipped SCC computation with the WCC
	// count.
	StronglyConnected *int

	// ClusteringCoefficient is nil unless opts.IncludeClustering is set.
	ClusteringCoefficient *float64

	NodesExplored int
	Elapsed       time.Duration
}

// ComputeStats summarises g: counts, per-type distribution, density, degree
// distribution, the 10 most connected entities, isolated entities, and
// (when requested) connected-component and clustering metrics.
func ComputeStats(g kgraph.Graph, opts StatsOptions) GraphStats {
	start := time.Now()
	a := buildAdjacency(g)
	names := a.names()

	stats := GraphStats{
		EntityCount:      len(g.Entities),
		RelationCount:    len(g.Relations),
		TypeDistribution: make(map[string]int),
		NodesExplored:    len(names),
	}

	for _, e := range g.Entities {
		stats.TypeDistribution[e.EntityType]++
	}

	n := len(names)
	if n > 1 {
		stats.Density = float64(len(g.Relations)) / float64(n*(n-1))
	}

	degrees := make([]NodeDegree, 0, n)
	var sum, min, max int
	for i, name := range names {
		in, out := a.degree(name)
		d := in + out
		degrees = append(degrees, NodeDegree{Name: name, Degree: d})
		sum += d
		if i == 0 || d < min {
			min = d
		}
		if i == 0 || d > max {
			max = d
		}
		if d == 0 {
			stats.IsolatedNodes = append(stats.IsolatedNodes, name)
		}
	}
	if n > 0 {
		stats.Degree = DegreeStats{Min: min, Max: max, Mean: float64(sum) / float64(n)}
	}

	sortDegreesDesc(degrees)
	top := degrees
	if len(top) > 10 {
		top = top[:10]
	}
	stats.TopConnected = top

	uf := newUnionFind(names)
	for _, r := range g.Relations {
		uf.union(r.From, r.To)
	}
	stats.WeaklyConnected = uf.componentCount(names)

	if opts.IncludeComponents {
		scc := tarjanSCC(a)
		stats.StronglyConnected = &scc
	}

	if opts.IncludeClustering {
		gcc := globalClusteringCoefficient(a, names)
		stats.ClusteringCoefficient = &gcc
	}

	stats.Elapsed = time.Since(start)
	return stats
}

func sortDegreesDesc(d []NodeDegree) {
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && (d[j].Degree > d[j-1].Degree ||
			(d[j].Degree == d[j-1].Degree && d[j].Name < d[j-1].Name)); j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}

// localClusteringCoefficient computes name's local clustering coefficient:
// the fraction of pairs among its neighbours that are themselves connected.
func localClusteringCoefficient(a *adjacency, name string) float64 {
	neighbors := a.neighbors(name)
	k := len(neighbors)
	if k < 2 {
		return 0
	}
	triangles := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if a.undir[neighbors[i]][neighbors[j]] {
				triangles++
			}
		}
	}
	possible := k * (k - 1) / 2
	return float64(triangles) / float64(possible)
}

// globalClusteringCoefficient is sum-of-triangles over sum-of-possible
// across every node, per §4.5 ("global = sum-triangles / sum-possible").
func globalClusteringCoefficient(a *adjacency, names []string) float64 {
	var triangleSum, possibleSum float64
	for _, name := range names {
		neighbors := a.neighbors(name)
		k := len(neighbors)
		if k < 2 {
			continue
		}
		possible := float64(k * (k - 1) / 2)
		triangles := possible * localClusteringCoefficient(a, name)
		triangleSum += triangles
		possibleSum += possible
	}
	if possibleSum == 0 {
		return 0
	}
	return triangleSum / possibleSum
}
