package kgraph

import (
	"context"
	"time"
)

// GraphStore is the bitemporal persistence layer: full CRUD on entities and
// relations, history retrieval, point-in-time reconstruction, and
// confidence-decayed projection.
//
// Every mutating method follows the versioning protocol: the current row (if
// any) is closed by setting validTo=now, and a new row is inserted with
// version = previous version + 1, validFrom = now, validTo = nil. Both steps
// happen in a single transaction.
//
// Implementations must be safe for concurrent use.
type GraphStore interface {
	// LoadGraph returns every currently-valid entity and relation.
	LoadGraph(ctx context.Context) (Graph, error)

	// CreateEntities inserts new entities. An input whose Name already names
	// a current entity is skipped rather than erroring; the skipped names are
	// reported via the returned slice's omission (only newly created entities
	// are returned).
	CreateEntities(ctx context.Context, inputs []EntityInput) ([]Entity, error)

	// CreateRelations inserts new relations, merging into an existing current
	// relation with the same (From, To, RelationType) triple instead of
	// duplicating it: Strength and Confidence are overwritten when provided,
	// and Metadata is merged key-by-key. The merge is idempotent — creating
	// the same relation twice produces one version bump, not two.
	CreateRelations(ctx context.Context, inputs []RelationInput) ([]Relation, error)

	// AddObservations appends new, non-duplicate observation strings to the
	// named entities and returns, per entity, which observations were
	// actually added.
	AddObservations(ctx context.Context, deltas []ObservationDelta) ([]AddObservationsResult, error)

	// DeleteObservations removes matching observation strings from the named
	// entities. Removing an observation that is not present is not an error.
	DeleteObservations(ctx context.Context, deltas []ObservationDelta) error

	// UpdateEntity applies a partial patch to an entity, running it through
	// the versioning protocol like any other mutation.
	UpdateEntity(ctx context.Context, patch EntityPatch) (Entity, error)

	// UpdateRelation applies a partial patch (by key) to the current relation
	// identified by key, merging Metadata and overwriting Strength/Confidence
	// when provided.
	UpdateRelation(ctx context.Context, key RelationKey, input RelationInput) (Relation, error)

	// UpdateEntityEmbedding attaches rec as the named entity's current
	// embedding. Called by the embedding job manager (C5) after a
	// successful provider call; does not bump the entity's bitemporal
	// version since the embedding is a companion property, not a versioned
	// field.
	UpdateEntityEmbedding(ctx context.Context, name string, rec EmbeddingRecord) error

	// DeleteEntities closes the current version of each named entity (setting
	// validTo=now) without inserting a replacement, keeping the entity's own
	// history, and physically deletes every relation, current or historical,
	// that has it as an endpoint.
	DeleteEntities(ctx context.Context, names []string) error

	// DeleteRelations closes the current version of each matching relation.
	DeleteRelations(ctx context.Context, keys []RelationKey) error

	// GetEntity returns the current version of the named entity.
	// Returns a [*Error] of [KindNotFound] when no current version exists.
	GetEntity(ctx context.Context, name string) (Entity, error)

	// GetRelation returns the current version of the relation identified by
	// key. Returns a [*Error] of [KindNotFound] when no current version
	// exists.
	GetRelation(ctx context.Context, key RelationKey) (Relation, error)

	// GetEntityHistory returns every version of the named entity, in
	// ascending Version order, including superseded and closed rows.
	GetEntityHistory(ctx context.Context, name string) ([]Entity, error)

	// GetRelationHistory returns every version of the relation identified by
	// key, in ascending Version order.
	GetRelationHistory(ctx context.Context, key RelationKey) ([]Relation, error)

	// GetGraphAtTime reconstructs the graph as it was valid at instant t:
	// the row whose [ValidFrom, ValidTo) interval contains t, per entity and
	// per relation.
	GetGraphAtTime(ctx context.Context, t time.Time) (Graph, error)

	// GetDecayedGraph returns the current graph with every relation's
	// Confidence replaced by its time-decayed value as of now, computed per
	// the configured half-life and floor.
	GetDecayedGraph(ctx context.Context, decay DecayParams) (Graph, error)

	// SearchNodes performs a substring or regular-expression match against
	// entity names, types, and observation text (and, when query is empty,
	// returns all current entities), returning a page of matches together
	// with the relations between them.
	SearchNodes(ctx context.Context, opts TextSearchOptions) (PaginatedGraph, error)

	// OpenNodes returns the current versions of the named entities, together
	// with the relations among them. Names with no current entity are
	// silently omitted.
	OpenNodes(ctx context.Context, names []string) (Graph, error)
}

// DecayParams configures confidence decay: c' = max(floor, c * exp(ln(0.5) *
// ageMillis / (halfLife.Milliseconds()))).
type DecayParams struct {
	HalfLife time.Duration
	Floor    float64
}

// TextSearchOptions configures [GraphStore.SearchNodes].
type TextSearchOptions struct {
	// Query is matched as a substring, or compiled and matched as a regular
	// expression when Regex is set; either way case-insensitively unless
	// CaseSensitive is set. An empty Query matches every current entity.
	Query string

	// Regex, when true, treats Query as a regular expression instead of a
	// literal substring.
	Regex bool

	// CaseSensitive opts out of the default case-insensitive matching, for
	// both substring and regex queries.
	CaseSensitive bool

	// EntityTypes, when non-empty, restricts results to entities whose
	// EntityType is one of the given values.
	EntityTypes []string

	Page PageRequest
}

// VectorIndex is the vector similarity search contract. A [GraphStore]
// backend may additionally implement [VectorCapable] to expose one.
//
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Initialize prepares the index for vectors of the given dimensionality
	// and distance metric (idempotent; safe to call on every startup).
	Initialize(ctx context.Context, dimensions int, metric DistanceMetric) error

	// AddVector upserts the embedding for the named entity, tagged with tags
	// (at minimum "entityType") for later tag-filtered search. Re-adding a
	// name overwrites its prior vector and tags.
	AddVector(ctx context.Context, name string, vector []float32, tags map[string]string) error

	// RemoveVector deletes the embedding for the named entity, if present.
	// Removing an absent name is not an error.
	RemoveVector(ctx context.Context, name string) error

	// Search returns up to opts.Limit names closest to query, ordered by
	// descending similarity with ties broken by name order.
	Search(ctx context.Context, query []float32, opts VectorSearchOptions) ([]VectorMatch, error)
}

// VectorSearchOptions configures a [VectorIndex.Search] call.
type VectorSearchOptions struct {
	Limit int

	// MinSimilarity floors returned matches; zero disables the floor.
	MinSimilarity float64

	// TagFilters restricts matches to vectors whose tags equal every
	// key/value pair given here (e.g. {"entityType": "Person"}).
	TagFilters map[string]string
}

// VectorMatch pairs an entity name with its vector-space distance from a
// query embedding.
type VectorMatch struct {
	Name     string
	Distance float64
	Tags     map[string]string
}

// DistanceMetric names a vector similarity metric.
type DistanceMetric string

// Supported distance metrics.
const (
	DistanceCosine    DistanceMetric = "cosine"
	DistanceEuclidean DistanceMetric = "euclidean"
)

// VectorCapable is implemented by a [GraphStore] backend that also exposes a
// [VectorIndex]. The planner type-asserts for this capability rather than
// relying on runtime method probing, so a backend either has vector search
// or it plainly doesn't.
type VectorCapable interface {
	VectorIndex() VectorIndex
}

// FullTextCapable is implemented by a [GraphStore] backend that exposes a
// separate FullTextSearch entry point. The planner does not type-assert for
// it; "text" and "graph" strategy searches always go through
// [GraphStore.SearchNodes].
type FullTextCapable interface {
	FullTextSearch(ctx context.Context, opts TextSearchOptions) (PaginatedGraph, error)
}
