package embed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
	kgmock "github.com/anthropic-labs/kgmemory/pkg/kgraph/mock"
	embedmock "github.com/anthropic-labs/kgmemory/pkg/provider/embeddings/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func newTestManager(store *kgmock.GraphStore, index *kgmock.VectorIndex, provider *embedmock.Provider) *Manager {
	return NewManager(store, index, provider, Config{
		RequestsPerSecond: 1000,
		Burst:             1000,
		MaxRetries:        2,
		BackoffBase:       time.Millisecond,
		BackoffMax:        10 * time.Millisecond,
		ShutdownGrace:     time.Second,
		Logger:            discardLogger(),
	})
}

func TestManager_ScheduleAndProcess_PersistsEmbedding(t *testing.T) {
	t.Parallel()

	store := kgmock.NewGraphStore()
	store.SeedEntity(kgraph.Entity{Name: "alice", EntityType: "Person", Observations: []string{"likes go"}})
	index := kgmock.NewVectorIndex()
	provider := &embedmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}, ModelIDValue: "test-model"}

	m := newTestManager(store, index, provider)
	m.Schedule("alice", PriorityNormal)
	m.processJobs(context.Background(), 10)

	deadline := time.After(time.Second)
	for store.CallCount("UpdateEntityEmbedding") == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for embedding to persist")
		case <-time.After(time.Millisecond):
		}
	}

	if len(provider.EmbedCalls) != 1 {
		t.Fatalf("Embed called %d times, want 1", len(provider.EmbedCalls))
	}
	if provider.EmbedCalls[0].Text != "likes go" {
		t.Errorf("Embed text = %q, want observation text", provider.EmbedCalls[0].Text)
	}
}

func TestManager_Schedule_CoalescesDuplicateNames(t *testing.T) {
	t.Parallel()

	store := kgmock.NewGraphStore()
	index := kgmock.NewVectorIndex()
	provider := &embedmock.Provider{}
	m := newTestManager(store, index, provider)

	m.Schedule("alice", PriorityLow)
	m.Schedule("alice", PriorityHigh)

	m.mu.Lock()
	n := len(m.queued)
	prio := m.queued["alice"].priority
	m.mu.Unlock()

	if n != 1 {
		t.Errorf("queued entries = %d, want 1 (coalesced)", n)
	}
	if prio != PriorityHigh {
		t.Errorf("priority = %d, want upgraded to PriorityHigh", prio)
	}
}

func TestManager_Execute_SkipsDeletedEntity(t *testing.T) {
	t.Parallel()

	store := kgmock.NewGraphStore() // "ghost" was never seeded
	index := kgmock.NewVectorIndex()
	provider := &embedmock.Provider{EmbedResult: []float32{1, 2}}
	m := newTestManager(store, index, provider)

	m.Schedule("ghost", PriorityNormal)
	m.processJobs(context.Background(), 10)

	deadline := time.After(200 * time.Millisecond)
	for {
		m.mu.Lock()
		inFlight := m.inFlight["ghost"]
		m.mu.Unlock()
		if !inFlight {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never completed")
		case <-time.After(time.Millisecond):
		}
	}

	if len(provider.EmbedCalls) != 0 {
		t.Errorf("Embed should not be called for a missing entity, got %d calls", len(provider.EmbedCalls))
	}
}

func TestManager_Backoff_ExponentialCappedAtMax(t *testing.T) {
	t.Parallel()

	m := newTestManager(kgmock.NewGraphStore(), kgmock.NewVectorIndex(), &embedmock.Provider{})
	if got := m.backoff(0); got != time.Millisecond {
		t.Errorf("backoff(0) = %v, want base (1ms)", got)
	}
	if got := m.backoff(10); got != 10*time.Millisecond {
		t.Errorf("backoff(10) = %v, want capped at max (10ms)", got)
	}
}

func TestDefaultConfig_Values(t *testing.T) {
	t.Parallel()

	c := DefaultConfig()
	if c.Burst != 20 {
		t.Errorf("Burst = %d, want 20", c.Burst)
	}
	if c.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", c.MaxRetries)
	}
}
