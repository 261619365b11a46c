package analytics

import (
	"container/heap"
	"time"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

// PathOptions configures [FindPaths].
type PathOptions struct {
	// MaxDepth bounds path length in hops. Default 6.
	MaxDepth int

	// MaxPaths bounds how many simple paths BFS/DFS return. Default 10.
	MaxPaths int

	// Bidirectional selects bidirectional BFS instead of single-direction
	// BFS. Only takes effect when MaxDepth > 2, per §4.5 — below that
	// there's no meaningful frontier split.
	Bidirectional bool

	// DepthFirst selects DFS traversal instead of BFS. Ignored when
	// IncludeWeights is set.
	DepthFirst bool

	// IncludeWeights selects weighted Dijkstra; edge weight is
	// 1/(Strength or 1) unless WeightProperty names a numeric metadata
	// field to use instead.
	IncludeWeights bool
	WeightProperty string
}

func (o PathOptions) withDefaults() PathOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 6
	}
	if o.MaxPaths <= 0 {
		o.MaxPaths = 10
	}
	return o
}

// PathResult is the outcome of a [FindPaths] call.
type PathResult struct {
	Paths         [][]string
	Strategy      string
	NodesExplored int
	Elapsed       time.Duration
}

// FindPaths finds paths between from and to in g's directed relation graph,
// dispatching to BFS (default), bidirectional BFS, DFS, or weighted
// Dijkstra depending on opts.
func FindPaths(g kgraph.Graph, from, to string, opts PathOptions) (PathResult, error) {
	start := time.Now()
	opts = opts.withDefaults()
	a := buildAdjacency(g)

	if _, ok := a.entities[from]; !ok {
		return PathResult{}, kgraph.NewError("find_paths", kgraph.KindNotFound, from, nil)
	}
	if _, ok := a.entities[to]; !ok {
		return PathResult{}, kgraph.NewError("find_paths", kgraph.KindNotFound, to, nil)
	}

	var result PathResult
	switch {
	case opts.IncludeWeights:
		result = dijkstraPath(a, from, to, opts)
	case opts.Bidirectional && opts.MaxDepth > 2:
		result = bidirectionalBFS(a, from, to, opts)
	case opts.DepthFirst:
		result = dfsPaths(a, from, to, opts)
	default:
		result = bfsPaths(a, from, to, opts)
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// bfsPaths enumerates up to opts.MaxPaths simple paths of at most
// opts.MaxDepth hops, using breadth-first frontier expansion so shorter
// paths are discovered first.
func bfsPaths(a *adjacency, from, to string, opts PathOptions) PathResult {
	type partial struct {
		path []string
		seen map[string]bool
	}
	initial := partial{path: []string{from}, seen: map[string]bool{from: true}}
	queue := []partial{initial}

	var paths [][]string
	explored := 0

	for len(queue) > 0 && len(paths) < opts.MaxPaths {
		cur := queue[0]
		queue = queue[1:]
		explored++

		last := cur.path[len(cur.path)-1]
		if last == to {
			paths = append(paths, cur.path)
			continue
		}
		if len(cur.path)-1 >= opts.MaxDepth {
			continue
		}
		for _, e := range a.out[last] {
			if cur.seen[e.to] {
				continue
			}
			nextSeen := make(map[string]bool, len(cur.seen)+1)
			for k := range cur.seen {
				nextSeen[k] = true
			}
			nextSeen[e.to] = true
			queue = append(queue, partial{path: append(append([]string{}, cur.path...), e.to), seen: nextSeen})
		}
	}

	return PathResult{Paths: paths, Strategy: "bfs", NodesExplored: explored}
}

// dfsPaths is bfsPaths' recursive counterpart, sharing the same cycle-freedom
// (via a per-branch visited set) and depth bound.
func dfsPaths(a *adjacency, from, to string, opts PathOptions) PathResult {
	var paths [][]string
	explored := 0
	visited := map[string]bool{from: true}
	path := []string{from}

	var visit func(cur string)
	visit = func(cur string) {
		explored++
		if len(paths) >= opts.MaxPaths {
			return
		}
		if cur == to {
			paths = append(paths, append([]string{}, path...))
			return
		}
		if len(path)-1 >= opts.MaxDepth {
			return
		}
		for _, e := range a.out[cur] {
			if visited[e.to] || len(paths) >= opts.MaxPaths {
				continue
			}
			visited[e.to] = true
			path = append(path, e.to)
			visit(e.to)
			path = path[:len(path)-1]
			visited[e.to] = false
		}
	}
	visit(from)

	return PathResult{Paths: paths, Strategy: "dfs", NodesExplored: explored}
}

// bidirectionalBFS advances a forward frontier from from and a backward
// frontier (over reverse edges) from to, each to depth ceil(maxDepth/2),
// stitching the two half-paths together at a meeting node. Falls back to
// reporting no path if the frontiers never meet within budget.
func bidirectionalBFS(a *adjacency, from, to string, opts PathOptions) PathResult {
	half := (opts.MaxDepth + 1) / 2

	fwdParent := map[string]string{from: ""}
	bwdParent := map[string]string{to: ""}
	fwdFrontier := []string{from}
	bwdFrontier := []string{to}
	explored := 2

	meet := ""
	for depth := 0; depth < half && meet == ""; depth++ {
		var nextFwd []string
		for _, node := range fwdFrontier {
			for _, e := range a.out[node] {
				if _, ok := fwdParent[e.to]; ok {
					continue
				}
				fwdParent[e.to] = node
				nextFwd = append(nextFwd, e.to)
				if _, ok := bwdParent[e.to]; ok {
					meet = e.to
					break
				}
				explored++
			}
			if meet != "" {
				break
			}
		}
		fwdFrontier = nextFwd
		if meet != "" || len(fwdFrontier) == 0 {
			break
		}

		var nextBwd []string
		for _, node := range bwdFrontier {
			for _, e := range a.in[node] {
				if _, ok := bwdParent[e.to]; ok {
					continue
				}
				bwdParent[e.to] = node
				nextBwd = append(nextBwd, e.to)
				if _, ok := fwdParent[e.to]; ok {
					meet = e.to
					break
				}
				explored++
			}
			if meet != "" {
				break
			}
		}
		bwdFrontier = nextBwd
	}

	if meet == "" {
		return PathResult{Strategy: "bidirectional_bfs", NodesExplored: explored}
	}

	var forwardHalf []string
	for n := meet; n != ""; n = fwdParent[n] {
		forwardHalf = append([]string{n}, forwardHalf...)
	}
	var backwardHalf []string
	for n := bwdParent[meet]; n != ""; n = bwdParent[n] {
		backwardHalf = append(backwardHalf, n)
	}
	full := append(forwardHalf, backwardHalf...)

	return PathResult{Paths: [][]string{full}, Strategy: "bidirectional_bfs", NodesExplored: explored}
}

// weightOf returns r's traversal weight: 1/(Strength or 1), or the numeric
// value of metadata[property] when property is non-empty and present.
func weightOf(r kgraph.Relation, property string) float64 {
	if property != "" && r.Metadata != nil {
		if v, ok := r.Metadata[property]; ok {
			if f, ok := v.(float64); ok && f > 0 {
				return f
			}
		}
	}
	if r.Strength != nil && *r.Strength > 0 {
		return 1 / *r.Strength
	}
	return 1
}

type pqItem struct {
	name string
	dist float64
	path []string
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)         { *pq = append(*pq, x.(*pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// dijkstraPath finds the minimum-cumulative-weight path from from to to
// using a standard binary-heap priority queue.
func dijkstraPath(a *adjacency, from, to string, opts PathOptions) PathResult {
	dist := map[string]float64{from: 0}
	pq := &priorityQueue{{name: from, dist: 0, path: []string{from}}}
	heap.Init(pq)
	explored := 0

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		explored++
		if d, ok := dist[cur.name]; ok && cur.dist > d {
			continue
		}
		if cur.name == to {
			return PathResult{Paths: [][]string{cur.path}, Strategy: "dijkstra", NodesExplored: explored}
		}
		if len(cur.path)-1 >= opts.MaxDepth {
			continue
		}
		for _, e := range a.out[cur.name] {
			next := cur.dist + weightOf(e.relation, opts.WeightProperty)
			if existing, ok := dist[e.to]; ok && existing <= next {
				continue
			}
			dist[e.to] = next
			heap.Push(pq, &pqItem{name: e.to, dist: next, path: append(append([]string{}, cur.path...), e.to)})
		}
	}

	return PathResult{Strategy: "dijkstra", NodesExplored: explored}
}
