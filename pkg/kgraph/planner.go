package kgraph

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Strategy names a search strategy a [Planner] can dispatch to.
type Strategy string

// Recognised strategies.
const (
	// StrategyGraph delegates to the backend's text/substring search.
	StrategyGraph Strategy = "graph"

	// StrategyVector embeds the query and searches the vector index.
	StrategyVector Strategy = "vector"

	// StrategyHybrid runs graph and vector in parallel and fuses the
	// results.
	StrategyHybrid Strategy = "hybrid"
)

// MergeMethod names a hybrid-search fusion method.
type MergeMethod string

// Recognised merge methods.
const (
	MergeWeighted MergeMethod = "weighted"
	MergeRRF      MergeMethod = "rrf"
)

// DefaultMinSimilarity is applied to vector-strategy searches when
// [SearchOptions.MinSimilarity] is zero.
const DefaultMinSimilarity = 0.6

// rrfK is the reciprocal-rank-fusion constant from spec scenario D / §4.4.
const rrfK = 60

// SearchOptions configures a [Planner.Search] call.
type SearchOptions struct {
	// Query is the text or semantic query, depending on Strategy.
	Query string

	// Strategy pins the search strategy. The zero value selects the
	// planner's configured default.
	Strategy Strategy

	// EntityTypes, when non-empty, restricts vector results to these types.
	EntityTypes []string

	// MinSimilarity floors vector-strategy matches (default
	// [DefaultMinSimilarity]).
	MinSimilarity float64

	// Regex treats Query as a regular expression for the graph strategy.
	Regex bool

	Page PageRequest
}

// HybridWeights configures the weighted fusion method. Weights should sum
// to 1; the planner does not renormalise if they don't.
type HybridWeights struct {
	Graph  float64
	Vector float64
}

// PlannerOptions configures a [Planner].
type PlannerOptions struct {
	DefaultStrategy Strategy
	MergeMethod     MergeMethod
	Weights         HybridWeights
	Dedup           bool
	Limits          Limits
}

// Planner is the C6 search planner: it routes a [SearchOptions] query to the
// graph/text store, the vector index, or both (fused), depending on which
// capabilities the backend and embedding provider expose.
type Planner struct {
	store    GraphStore
	embedder EmbeddingProvider // nil when no embedding provider is configured
	opts     PlannerOptions
}

// EmbeddingProvider is the embedding backend the vector and hybrid
// strategies embed queries against.
type EmbeddingProvider = interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelID() string
}

// NewPlanner constructs a [Planner] over store, optionally wiring embedder
// for the vector and hybrid strategies. A nil embedder disables those
// strategies; [Planner.AvailableStrategies] reflects this.
func NewPlanner(store GraphStore, embedder EmbeddingProvider, opts PlannerOptions) *Planner {
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = StrategyGraph
	}
	if opts.MergeMethod == "" {
		opts.MergeMethod = MergeRRF
	}
	if opts.Weights.Graph == 0 && opts.Weights.Vector == 0 {
		opts.Weights = HybridWeights{Graph: 0.4, Vector: 0.6}
	}
	return &Planner{store: store, embedder: embedder, opts: opts}
}

// AvailableStrategies reports which strategies can currently be served,
// given the backend's declared capabilities and whether an embedding
// provider is configured.
func (p *Planner) AvailableStrategies() []Strategy {
	strategies := []Strategy{StrategyGraph}
	if p.vectorCapable() && p.embedder != nil {
		strategies = append(strategies, StrategyVector, StrategyHybrid)
	}
	return strategies
}

func (p *Planner) vectorCapable() bool {
	_, ok := p.store.(VectorCapable)
	return ok
}

// scoredEntity pairs an entity name with a relevance score for ranking.
type scoredEntity struct {
	name  string
	score float64
}

// Search dispatches opts to the appropriate strategy and returns a fused,
// paginated result.
func (p *Planner) Search(ctx context.Context, opts SearchOptions) (PaginatedGraph, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = p.opts.DefaultStrategy
	}

	switch strategy {
	case StrategyGraph:
		return p.store.SearchNodes(ctx, TextSearchOptions{Query: opts.Query, Regex: opts.Regex, EntityTypes: opts.EntityTypes, Page: opts.Page})

	case StrategyVector:
		if p.embedder == nil || !p.vectorCapable() {
			return PaginatedGraph{}, newErr("search", KindInvalidArgument, "", errNoVectorStrategy)
		}
		ranked, err := p.vectorRank(ctx, opts)
		if err != nil {
			return PaginatedGraph{}, err
		}
		return p.materialize(ctx, ranked, opts.Page)

	case StrategyHybrid:
		return p.hybridSearch(ctx, opts)

	default:
		return PaginatedGraph{}, newErr("search", KindInvalidArgument, "", fmt.Errorf("unknown strategy %q", strategy))
	}
}

// vectorRank embeds opts.Query, searches the vector index, and returns
// matches passing the similarity floor and entity-type filter, sorted by
// descending similarity (ascending distance).
func (p *Planner) vectorRank(ctx context.Context, opts SearchOptions) ([]scoredEntity, error) {
	vec, err := p.embedder.Embed(ctx, opts.Query)
	if err != nil {
		return nil, newErr("search_vector", KindExternalUnavailable, "", err)
	}

	index := p.store.(VectorCapable).VectorIndex()
	limit := opts.Page.effectiveLimit(p.opts.Limits)
	minSim := opts.MinSimilarity
	if minSim == 0 {
		minSim = DefaultMinSimilarity
	}

	searchOpts := VectorSearchOptions{Limit: limit, MinSimilarity: minSim}
	if len(opts.EntityTypes) > 0 {
		// The vector index contract supports equality tag filters; a single
		// entityType is the filter dimension spec'd for C4 so only the
		// first requested type is applied here.
		searchOpts.TagFilters = map[string]string{"entityType": opts.EntityTypes[0]}
	}

	matches, err := index.Search(ctx, vec, searchOpts)
	if err != nil {
		return nil, newErr("search_vector", KindBackendUnavailable, "", err)
	}

	ranked := make([]scoredEntity, len(matches))
	for i, m := range matches {
		ranked[i] = scoredEntity{name: m.Name, score: 1 - m.Distance/2}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked, nil
}

// hybridSearch runs graph/text and vector search concurrently, each bounded
// by the requested limit, then fuses by the configured merge method.
// Per §7 propagation policy, a failing vector side downgrades to graph-only
// rather than failing the whole call.
func (p *Planner) hybridSearch(ctx context.Context, opts SearchOptions) (PaginatedGraph, error) {
	var (
		graphResult PaginatedGraph
		graphErr    error
		vectorRanked []scoredEntity
		vectorErr    error
	)

	g, egCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		graphResult, graphErr = p.store.SearchNodes(egCtx, TextSearchOptions{Query: opts.Query, Regex: opts.Regex, EntityTypes: opts.EntityTypes, Page: opts.Page})
		return nil // graph failure is fatal to the overall call; checked below
	})
	if p.embedder != nil && p.vectorCapable() {
		g.Go(func() error {
			vectorRanked, vectorErr = p.vectorRank(egCtx, opts)
			return nil // vector failure only degrades, per propagation policy
		})
	}
	_ = g.Wait()

	if graphErr != nil {
		return PaginatedGraph{}, graphErr
	}

	if vectorErr != nil {
		// Vector side failed: downgrade to graph-only, still reporting the
		// caller's requested page shape.
		return graphResult, nil
	}

	graphRanked := make([]scoredEntity, len(graphResult.Entities))
	for i, e := range graphResult.Entities {
		graphRanked[i] = scoredEntity{name: e.Name}
	}

	fused := p.fuse(graphRanked, vectorRanked)
	return p.materialize(ctx, fused, opts.Page)
}

// fuse combines two ranked lists (graph, vector — both best-first, vector
// scores being the native similarity) into a single ranked list per the
// configured merge method.
func (p *Planner) fuse(graph, vector []scoredEntity) []scoredEntity {
	switch p.opts.MergeMethod {
	case MergeWeighted:
		// Graph/text search carries no native relevance score; rank
		// position stands in, normalised to [0,1] (best = 1.0).
		return fuseWeightedScores(normalizeByRank(graph), scoresByName(vector), p.opts.Weights)
	default:
		return fuseRRF(graph, vector)
	}
}

func scoresByName(ranked []scoredEntity) map[string]float64 {
	out := make(map[string]float64, len(ranked))
	for _, r := range ranked {
		out[r.name] = r.score
	}
	return out
}

// fuseWeightedScores combines two already-normalised per-entity score maps
// by configured weight: final = w_graph*graphScore + w_vector*vectorScore.
// An entity absent from one source contributes 0 for that source's term —
// the §4.4 "penalised by the missing weight term" behaviour.
func fuseWeightedScores(graph, vector map[string]float64, weights HybridWeights) []scoredEntity {
	seen := make(map[string]bool, len(graph)+len(vector))
	var fused []scoredEntity
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		score := weights.Graph*graph[name] + weights.Vector*vector[name]
		fused = append(fused, scoredEntity{name: name, score: score})
	}
	for name := range graph {
		add(name)
	}
	for name := range vector {
		add(name)
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].score > fused[j].score })
	return fused
}

// normalizeByRank assigns scores linearly from 1.0 (rank 0) down to a
// non-zero floor, so rank position stands in for a source's relevance when
// the source (e.g. text search) has no native score.
func normalizeByRank(ranked []scoredEntity) map[string]float64 {
	out := make(map[string]float64, len(ranked))
	n := len(ranked)
	if n == 0 {
		return out
	}
	for i, r := range ranked {
		out[r.name] = 1 - float64(i)/float64(n)
	}
	return out
}

// fuseRRF combines two best-first ranked lists by reciprocal-rank fusion:
// score = Σ 1/(k + rank_i) over the sources in which the entity appears
// (1-indexed rank).
func fuseRRF(graph, vector []scoredEntity) []scoredEntity {
	scores := make(map[string]float64)
	accumulate := func(ranked []scoredEntity) {
		for i, r := range ranked {
			rank := i + 1
			scores[r.name] += 1.0 / float64(rrfK+rank)
		}
	}
	accumulate(graph)
	accumulate(vector)

	fused := make([]scoredEntity, 0, len(scores))
	for name, score := range scores {
		fused = append(fused, scoredEntity{name: name, score: score})
	}
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].score > fused[j].score })
	return fused
}

// materialize pages ranked down to the requested window and loads full
// entities (plus relations among them) via OpenNodes.
func (p *Planner) materialize(ctx context.Context, ranked []scoredEntity, page PageRequest) (PaginatedGraph, error) {
	offset, limit, pageStyle, err := NormalizePageRequest(page, p.opts.Limits)
	if err != nil {
		return PaginatedGraph{}, err
	}

	total := len(ranked)
	end := offset + limit
	if end > total {
		end = total
	}
	var window []scoredEntity
	if offset < total {
		window = ranked[offset:end]
	}

	names := make([]string, len(window))
	for i, w := range window {
		names[i] = w.name
	}
	g, err := p.store.OpenNodes(ctx, names)
	if err != nil {
		return PaginatedGraph{}, newErr("search", KindBackendUnavailable, "", err)
	}

	// OpenNodes does not guarantee order; re-sort entities to match the
	// fused ranking.
	order := make(map[string]int, len(names))
	for i, n := range names {
		order[n] = i
	}
	sort.SliceStable(g.Entities, func(i, j int) bool { return order[g.Entities[i].Name] < order[g.Entities[j].Name] })

	totalCount := &total
	return PaginatedGraph{
		Graph: g,
		Page:  BuildPage(offset, limit, len(window), totalCount, pageStyle, 0),
	}, nil
}

func (req PageRequest) effectiveLimit(lim Limits) int {
	if req.Limit != nil {
		return *req.Limit
	}
	if req.PageSize != nil {
		return *req.PageSize
	}
	if lim.DefaultLimit > 0 {
		return lim.DefaultLimit
	}
	return 20
}

var errNoVectorStrategy = fmt.Errorf("vector strategy unavailable: no embedding provider or vector-capable backend configured")
