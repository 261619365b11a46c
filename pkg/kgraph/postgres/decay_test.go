package postgres

import (
	"math"
	"testing"
	"time"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
)

func almostEqual(a, b, tolerance float64) bool { return math.Abs(a-b) <= tolerance }

// TestDecayConfidence_SpecScenario exercises the worked example: a relation
// with confidence=1.0, 60 days old, 30-day half-life, 0.1 floor decays to
// approximately 0.25; the same relation 365 days old hits the floor.
func TestDecayConfidence_SpecScenario(t *testing.T) {
	t.Parallel()

	now := time.Now()
	decay := kgraph.DecayParams{HalfLife: 30 * 24 * time.Hour, Floor: 0.1}

	got60 := decayConfidence(1.0, now.Add(-60*24*time.Hour), now, decay)
	if !almostEqual(got60, 0.25, 0.01) {
		t.Errorf("60-day decay = %v, want ≈0.25", got60)
	}

	got365 := decayConfidence(1.0, now.Add(-365*24*time.Hour), now, decay)
	if !almostEqual(got365, 0.1, 1e-9) {
		t.Errorf("365-day decay = %v, want floor 0.1", got365)
	}
}

func TestDecayConfidence_ZeroAgeIsUnchanged(t *testing.T) {
	t.Parallel()

	now := time.Now()
	decay := kgraph.DecayParams{HalfLife: 30 * 24 * time.Hour, Floor: 0.05}

	got := decayConfidence(0.8, now, now, decay)
	if !almostEqual(got, 0.8, 1e-9) {
		t.Errorf("zero-age decay = %v, want 0.8 (unchanged)", got)
	}
}

func TestDecayConfidence_NeverGoesBelowFloor(t *testing.T) {
	t.Parallel()

	now := time.Now()
	decay := kgraph.DecayParams{HalfLife: time.Hour, Floor: 0.2}

	got := decayConfidence(1.0, now.Add(-1000*24*time.Hour), now, decay)
	if got != 0.2 {
		t.Errorf("decay = %v, want exactly the floor 0.2", got)
	}
}

func TestVectorOpClass(t *testing.T) {
	t.Parallel()

	if got := vectorOpClass(kgraph.DistanceEuclidean); got != "vector_l2_ops" {
		t.Errorf("vectorOpClass(euclidean) = %q, want vector_l2_ops", got)
	}
	if got := vectorOpClass(kgraph.DistanceCosine); got != "vector_cosine_ops" {
		t.Errorf("vectorOpClass(cosine) = %q, want vector_cosine_ops", got)
	}
}

func TestDistanceOperator(t *testing.T) {
	t.Parallel()

	if got := distanceOperator(kgraph.DistanceEuclidean); got != "<->" {
		t.Errorf("distanceOperator(euclidean) = %q, want <->", got)
	}
	if got := distanceOperator(kgraph.DistanceCosine); got != "<=>" {
		t.Errorf("distanceOperator(cosine) = %q, want <=>", got)
	}
}

func TestMatchesQuery_SubstringCaseInsensitive(t *testing.T) {
	t.Parallel()

	e := kgraph.Entity{Name: "Alice", EntityType: "Person", Observations: []string{"Loves Go"}}

	ok, err := matchesQuery(e, "alice", false, false)
	if err != nil || !ok {
		t.Errorf("matchesQuery(name substring) = %v, %v", ok, err)
	}

	ok, err = matchesQuery(e, "loves go", false, false)
	if err != nil || !ok {
		t.Errorf("matchesQuery(observation substring) = %v, %v", ok, err)
	}

	ok, err = matchesQuery(e, "bob", false, false)
	if err != nil || ok {
		t.Errorf("matchesQuery(no match) = %v, %v", ok, err)
	}
}

func TestMatchesQuery_EmptyMatchesAll(t *testing.T) {
	t.Parallel()

	ok, err := matchesQuery(kgraph.Entity{Name: "anything"}, "", false, false)
	if err != nil || !ok {
		t.Errorf("empty query should match everything, got %v, %v", ok, err)
	}
}

func TestMatchesQuery_Regex(t *testing.T) {
	t.Parallel()

	e := kgraph.Entity{Name: "entity-42"}
	ok, err := matchesQuery(e, `^entity-\d+$`, true, false)
	if err != nil || !ok {
		t.Errorf("regex match = %v, %v", ok, err)
	}

	_, err = matchesQuery(e, `(unterminated`, true, false)
	if err == nil {
		t.Error("expected error for invalid regex")
	}
}

func TestMatchesQuery_CaseSensitiveOptOut(t *testing.T) {
	t.Parallel()

	e := kgraph.Entity{Name: "Alice"}

	ok, err := matchesQuery(e, "alice", false, true)
	if err != nil || ok {
		t.Errorf("case-sensitive substring should not match differing case, got %v, %v", ok, err)
	}

	ok, err = matchesQuery(e, "Alice", false, true)
	if err != nil || !ok {
		t.Errorf("case-sensitive substring should match exact case, got %v, %v", ok, err)
	}
}
