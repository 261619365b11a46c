// Package kgraph implements the bitemporal knowledge-graph memory store:
// entity/relation CRUD with versioning, a vector index contract, an
// embedding job manager, a hybrid search planner, and the façade that
// coordinates them.
//
// Types in this package are backend-agnostic; concrete storage lives in
// [github.com/anthropic-labs/kgmemory/pkg/kgraph/postgres].
package kgraph

import "time"

// Entity is a named node in the knowledge graph. Entities are bitemporally
// versioned: every mutation closes the current row (validTo=now) and
// inserts a new one, preserving history.
type Entity struct {
	// Name is the caller-assigned unique identifier, unique among
	// currently-valid entities.
	Name string `json:"name"`

	// EntityType is a short classification label (e.g. "Person",
	// "Project").
	EntityType string `json:"entityType"`

	// Observations is an ordered collection of distinct strings. Order is
	// preserved; duplicates are rejected at insertion time.
	Observations []string `json:"observations"`

	// Embedding holds the entity's current dense-vector embedding, if one
	// has been computed.
	Embedding *EmbeddingRecord `json:"embedding,omitempty"`

	Temporal
}

// EmbeddingRecord tags a vector with the provider/model that produced it
// and when.
type EmbeddingRecord struct {
	Vector      []float32 `json:"vector"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Relation is a directed, typed edge between two entity names.
type Relation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`

	// Strength and Confidence are optional scores in [0,1].
	Strength   *float64 `json:"strength,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`

	// Metadata is an open map; it always includes createdAt/updatedAt once
	// persisted and may carry arbitrary fields such as "source" or
	// "inferredFrom". A metadata blob that failed to parse is preserved
	// verbatim under UnparseableMetadata rather than dropped.
	Metadata             map[string]any `json:"metadata,omitempty"`
	UnparseableMetadata   string         `json:"_unparseable_metadata,omitempty"`

	Temporal
}

// Temporal holds the bitemporal versioning fields shared by entities and
// relations.
type Temporal struct {
	// ID is an opaque version identifier, unique per row.
	ID string `json:"id"`

	// Version is monotonically increasing per (name) or per
	// (from,to,relationType) triple, starting at 1.
	Version int `json:"version"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ValidFrom time.Time  `json:"validFrom"`
	ValidTo   *time.Time `json:"validTo,omitempty"` // nil means current

	// ChangedBy is a free-form audit tag (user, job name, migration id).
	ChangedBy string `json:"changedBy,omitempty"`
}

// IsCurrent reports whether t represents the current (non-superseded) row.
func (t Temporal) IsCurrent() bool { return t.ValidTo == nil }

// Graph is a snapshot of current entities and the relations among them.
type Graph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// PaginatedGraph is a [Graph] subset alongside pagination metadata, as
// returned by searchNodes.
type PaginatedGraph struct {
	Graph
	Page Page `json:"page"`
}

// RelationKey uniquely identifies a current relation by its merge triple.
type RelationKey struct {
	From         string
	To           string
	RelationType string
}

// EntityInput is the caller-supplied payload for createEntities.
type EntityInput struct {
	Name         string
	EntityType   string
	Observations []string
}

// RelationInput is the caller-supplied payload for createRelations.
type RelationInput struct {
	From         string
	To           string
	RelationType string
	Strength     *float64
	Confidence   *float64
	Metadata     map[string]any
}

// ObservationDelta names the observations to add or remove for an entity.
type ObservationDelta struct {
	Name         string
	Observations []string
}

// EntityPatch is a partial update applied by updateEntity; nil fields are
// left unchanged.
type EntityPatch struct {
	Name       string
	EntityType *string
}

// AddObservationsResult reports, per entity, which observations were
// actually appended (duplicates against the current set are excluded).
type AddObservationsResult struct {
	Name                string
	AddedObservations   []string
}
