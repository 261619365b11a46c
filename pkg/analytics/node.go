package analytics

import (
	"math/rand"
	"time"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// NodeOptions controls [AnalyzeNode]'s bounds.
type NodeOptions struct {
	// MaxNeighbors bounds the depth-1/depth-2 neighbour lists. Default 100.
	MaxNeighbors int

	// ClosenessSampleSize bounds how many other nodes sampled-closeness
	// centrality measures distance to. Default 20.
	ClosenessSampleSize int

	IncludeClustering bool
}

func (o NodeOptions) withDefaults() NodeOptions {
	if o.MaxNeighbors <= 0 {
		o.MaxNeighbors = 100
	}
	if o.ClosenessSampleSize <= 0 {
		o.ClosenessSampleSize = 20
	}
	return o
}

// Influence reports how many entities name can reach directly versus within
// two hops.
type Influence struct {
	Direct          int
	ReachableDepth2 int
	Radius          int
}

// NodeReport is the result of [AnalyzeNode].
type NodeReport struct {
	Name         string
	InDegree     int
	OutDegree    int
	TotalDegree  int
	Depth1       []string
	Depth2       []string
	DegreeCentralityRaw        float64
	DegreeCentralityNormalized float64

	// ClosenessCentrality is the reciprocal of the average BFS distance to a
	// random sample of up to opts.ClosenessSampleSize other nodes; nil when
	// the node has no reachable neighbours in the sample.
	ClosenessCentrality *float64

	ClusteringCoefficient *float64
	Influence             Influence

	NodesExplored int
	Elapsed       time.Duration
}

// AnalyzeNode computes degree, bounded neighbour lists, degree and sampled
// closeness centrality, optional clustering, and influence for name.
// Returns a [*kgraph.Error] of [kgraph.KindNotFound] if name isn't in g.
func AnalyzeNode(g kgraph.Graph, name string, opts NodeOptions) (NodeReport, error) {
	start := time.Now()
	opts = opts.withDefaults()
	a := buildAdjacency(g)

	if _, ok := a.entities[name]; !ok {
		return NodeReport{}, kgraph.NewError("analyze_node", kgraph.KindNotFound, name, nil)
	}

	in, out := a.degree(name)
	report := NodeReport{
		Name: name, InDegree: in, OutDegree: out, TotalDegree: in + out,
	}

	depth1 := boundedList(a.neighbors(name), opts.MaxNeighbors)
	report.Depth1 = depth1

	depth1Set := make(map[string]bool, len(depth1)+1)
	depth1Set[name] = true
	for _, n := range depth1 {
		depth1Set[n] = true
	}
	var depth2 []string
	for _, n1 := range depth1 {
		for _, n2 := range a.neighbors(n1) {
			if !depth1Set[n2] {
				depth1Set[n2] = true
				depth2 = append(depth2, n2)
			}
		}
	}
	report.Depth2 = boundedList(depth2, opts.MaxNeighbors)

	n := len(a.names())
	report.DegreeCentralityRaw = float64(report.TotalDegree)
	if n > 1 {
		report.DegreeCentralityNormalized = float64(report.TotalDegree) / float64(n-1)
	}

	report.ClosenessCentrality = sampledClosenessCentrality(a, name, opts.ClosenessSampleSize)

	if opts.IncludeClustering {
		c := localClusteringCoefficient(a, name)
		report.ClusteringCoefficient = &c
	}

	radius := 0
	if len(report.Depth2) > 0 {
		radius = 2
	} else if len(report.Depth1) > 0 {
		radius = 1
	}
	report.Influence = Influence{
		Direct:          len(report.Depth1),
		ReachableDepth2: len(report.Depth2),
		Radius:          radius,
	}

	report.NodesExplored = 1 + len(depth1Set)
	report.Elapsed = time.Since(start)
	return report, nil
}

func boundedList(in []string, max int) []string {
	if len(in) > max {
		return in[:max]
	}
	return in
}

// sampledClosenessCentrality runs BFS from name to a random sample of up to
// sampleSize other nodes and returns the reciprocal of the average distance,
// or nil if none were reachable.
func sampledClosenessCentrality(a *adjacency, name string, sampleSize int) *float64 {
	candidates := make([]string, 0, len(a.entities))
	for n := range a.entities {
		if n != name {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > sampleSize {
		candidates = candidates[:sampleSize]
	}
	sample := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		sample[c] = true
	}

	dist := bfsDistances(a, name)

	var sum float64
	var count int
	for target := range sample {
		if d, ok := dist[target]; ok {
			sum += float64(d)
			count++
		}
	}
	if count == 0 || sum == 0 {
		return nil
	}
	avg := sum / float64(count)
	closeness := 1 / avg
	return &closeness
}

// bfsDistances returns the shortest hop-count from start to every reachable
// node in the undirected projection. Expands the dequeued node's own
// neighbours at each step, not start's.
func bfsDistances(a *adjacency, start string) map[string]int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for neighbor := range a.undir[cur] {
			if _, seen := dist[neighbor]; !seen {
				dist[neighbor] = dist[cur] + 1
				queue = append(queue, neighbor)
			}
		}
	}
	return dist
}
