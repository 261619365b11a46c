// Package embed implements C5, the embedding job manager: it turns
// "entity needs an embedding" signals into rate-limited provider calls and
// persists the results through the graph store and vector index.
//
// A [Manager] owns a persistent worker loop. Callers enqueue work with
// [Manager.Schedule] and the loop drains it, respecting a token-bucket rate
// limit, exponential backoff on provider error, and an at-most-one-in-flight
// coalescing rule per entity name.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
	"github.com/anthropic-labs/kgmemory/pkg/provider/embeddings"
)

// Priority orders jobs competing for the same rate-limited worker loop.
// Higher values drain first. Declared as an alias to plain int so a
// [Manager] satisfies [github.com/anthropic-labs/kgmemory/pkg/kgraph.Scheduler]
// without kgraph needing to import this package.
type Priority = int

// Recognised priorities.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Config tunes the [Manager]'s rate limiting, retry, and shutdown behaviour.
type Config struct {
	// RequestsPerSecond and Burst configure the token-bucket limiter.
	// Defaults: 20 tokens per 60s, expressed as RequestsPerSecond =
	// 20.0/60.0, Burst = 20 (see [DefaultConfig]).
	RequestsPerSecond float64
	Burst             int

	// MaxRetries bounds the backoff schedule before a job is surfaced as
	// failed and dropped.
	MaxRetries int

	// BackoffBase and BackoffMax bound the exponential backoff applied
	// between retries of the same job.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// ShutdownGrace bounds how long [Manager.Shutdown] waits for in-flight
	// jobs to finish before abandoning them.
	ShutdownGrace time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the spec-default tuning: 20 tokens per 60 seconds,
// 5 retries, 1s base / 30s max backoff, 10s shutdown grace.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 20.0 / 60.0,
		Burst:             20,
		MaxRetries:        5,
		BackoffBase:       time.Second,
		BackoffMax:        30 * time.Second,
		ShutdownGrace:     10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// job is a single queued embedding request. Jobs for the same name coalesce
// in the queue, keeping the highest priority seen.
type job struct {
	name     string
	priority Priority
	attempt  int
	enqueued time.Time
}

// Manager schedules and executes entity embedding jobs against a
// [kgraph.GraphStore] and [kgraph.VectorIndex], rate-limited through a
// configured [embeddings.Provider].
//
// Safe for concurrent use.
type Manager struct {
	store    entityReaderWriter
	index    kgraph.VectorIndex
	provider embeddings.Provider
	cfg      Config
	limiter  *rate.Limiter

	mu        sync.Mutex
	queued    map[string]*job // name -> coalesced job
	order     []string        // insertion order, for FIFO among equal priority
	inFlight  map[string]bool
	wake      chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// entityReaderWriter is the narrow slice of [kgraph.GraphStore] the manager
// needs: read the current entity text and write back its embedding.
type entityReaderWriter interface {
	GetEntity(ctx context.Context, name string) (kgraph.Entity, error)
	UpdateEntityEmbedding(ctx context.Context, name string, rec kgraph.EmbeddingRecord) error
}

// NewManager constructs a [Manager]. Call [Manager.Run] to start the worker
// loop and [Manager.Shutdown] to stop it.
func NewManager(store entityReaderWriter, index kgraph.VectorIndex, provider embeddings.Provider, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		store:    store,
		index:    index,
		provider: provider,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		queued:   make(map[string]*job),
		inFlight: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
}

// Schedule enqueues an embedding job for name at the given priority. If a
// job for name is already queued, its priority is upgraded to the higher of
// the two rather than duplicating the entry. A name already in flight is
// re-queued so it is picked up again once the in-flight call completes.
//
// Scheduling never returns an error to the caller: per §4.3's "no coupling
// to graph transaction" contract, failures here are logged, not propagated.
func (m *Manager) Schedule(name string, priority Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.queued[name]; ok {
		if priority > existing.priority {
			existing.priority = priority
		}
	} else {
		m.queued[name] = &job{name: name, priority: priority, enqueued: time.Now()}
		m.order = append(m.order, name)
	}

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run starts the worker loop in a background goroutine and returns
// immediately. Call [Manager.Shutdown] to stop it.
func (m *Manager) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(m.done)
		m.loop(ctx)
	}()
}

// Shutdown signals the worker loop to stop, waiting up to
// [Config.ShutdownGrace] for in-flight jobs to finish before returning.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()

	grace, cancel := context.WithTimeout(ctx, m.cfg.ShutdownGrace)
	defer cancel()

	// m.done only marks the loop's exit; job goroutines are tracked by m.wg.
	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-grace.Done():
		return fmt.Errorf("embed: shutdown grace period elapsed with jobs still in flight")
	}
}

func (m *Manager) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		m.processJobs(ctx, m.cfg.Burst)
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-ticker.C:
		}
	}
}

// processJobs drains up to maxN queued jobs, subject to the rate limiter.
// Tests call it directly to pump the queue synchronously instead of running
// the background loop.
func (m *Manager) processJobs(ctx context.Context, maxN int) {
	for i := 0; i < maxN; i++ {
		j := m.dequeue()
		if j == nil {
			return
		}
		if !m.limiter.Allow() {
			m.requeue(j)
			return
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.execute(ctx, j)
		}()
	}
}

// dequeue pops the highest-priority, oldest-enqueued queued job not already
// in flight, marking it in flight.
func (m *Manager) dequeue() *job {
	m.mu.Lock()
	defer m.mu.Unlock()

	bestIdx := -1
	for i, name := range m.order {
		j, ok := m.queued[name]
		if !ok || m.inFlight[name] {
			continue
		}
		if bestIdx == -1 || j.priority > m.queued[m.order[bestIdx]].priority {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return nil
	}

	name := m.order[bestIdx]
	j := m.queued[name]
	delete(m.queued, name)
	m.order = append(m.order[:bestIdx], m.order[bestIdx+1:]...)
	m.inFlight[name] = true
	return j
}

func (m *Manager) requeue(j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queued[j.name]; !ok {
		m.queued[j.name] = j
		m.order = append(m.order, j.name)
	}
}

func (m *Manager) clearInFlight(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, name)
}

// execute reads the current entity, embeds its concatenated observations,
// and writes the result back via the graph store and vector index. On
// provider failure it retries with exponential backoff up to
// Config.MaxRetries before surfacing a log warning and dropping the job.
func (m *Manager) execute(ctx context.Context, j *job) {
	defer m.clearInFlight(j.name)

	entity, err := m.store.GetEntity(ctx, j.name)
	if err != nil {
		if kgraph.IsKind(err, kgraph.KindNotFound) {
			return // entity deleted before its embedding job ran
		}
		m.cfg.Logger.Warn("embed: read entity failed", "name", j.name, "error", err)
		return
	}

	input := strings.Join(entity.Observations, "\n")

	var vector []float32
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		vector, err = m.provider.Embed(ctx, input)
		if err == nil {
			break
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		if attempt == m.cfg.MaxRetries {
			m.cfg.Logger.Warn("embed: provider failed, retry budget exhausted",
				"name", j.name, "attempts", attempt+1, "error", err)
			return
		}
		select {
		case <-time.After(m.backoff(attempt)):
		case <-ctx.Done():
			return
		}
	}

	rec := kgraph.EmbeddingRecord{
		Vector:      vector,
		Provider:    providerName(m.provider),
		Model:       m.provider.ModelID(),
		LastUpdated: time.Now(),
	}

	if err := m.store.UpdateEntityEmbedding(ctx, j.name, rec); err != nil {
		m.cfg.Logger.Warn("embed: persist embedding failed", "name", j.name, "error", err)
		return
	}
	if err := m.index.AddVector(ctx, j.name, vector, map[string]string{"entityType": entity.EntityType}); err != nil {
		m.cfg.Logger.Warn("embed: vector index write failed", "name", j.name, "error", err)
	}
}

// backoff returns an exponential delay capped at BackoffMax.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BackoffBase << attempt
	if d <= 0 || d > m.cfg.BackoffMax {
		return m.cfg.BackoffMax
	}
	return d
}

func providerName(p embeddings.Provider) string {
	type named interface{ Name() string }
	if n, ok := p.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
