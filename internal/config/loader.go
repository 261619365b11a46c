package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"embeddings": {"openai", "ollama"},
}

// ValidBackendKinds lists known storage backend kinds.
var ValidBackendKinds = []string{"postgres"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued fields with sensible defaults so a
// minimal config file is usable as-is.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogLevelInfo
	}
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = "postgres"
	}
	if cfg.Vector.DistanceMetric == "" {
		cfg.Vector.DistanceMetric = DistanceCosine
	}
	if cfg.Vector.EfSearch == 0 {
		cfg.Vector.EfSearch = 40
	}
	if cfg.Decay.MinWeight == 0 {
		cfg.Decay.MinWeight = 0.05
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 10
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 5
	}
	if cfg.Pagination.DefaultPageSize == 0 {
		cfg.Pagination.DefaultPageSize = 20
	}
	if cfg.Pagination.MaxPageSize == 0 {
		cfg.Pagination.MaxPageSize = 200
	}
	if cfg.Hybrid.Strategy == "" {
		cfg.Hybrid.Strategy = FusionRRF
	}
	if cfg.Hybrid.RRFK == 0 {
		cfg.Hybrid.RRFK = 60
	}
	if cfg.Cache.MaxSizeBytes == 0 {
		cfg.Cache.MaxSizeBytes = 100 * 1024 * 1024
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !slices.Contains(ValidBackendKinds, cfg.Backend.Kind) {
		errs = append(errs, fmt.Errorf("backend.kind %q is invalid; valid values: %v", cfg.Backend.Kind, ValidBackendKinds))
	}
	if cfg.Backend.Kind == "postgres" && cfg.Backend.PostgresDSN == "" {
		errs = append(errs, errors.New("backend.postgres_dsn is required when backend.kind is \"postgres\""))
	}

	if cfg.Vector.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("vector.dimensions must be positive, got %d", cfg.Vector.Dimensions))
	}
	if !cfg.Vector.DistanceMetric.IsValid() {
		errs = append(errs, fmt.Errorf("vector.distance_metric %q is invalid; valid values: cosine, euclidean", cfg.Vector.DistanceMetric))
	}

	if cfg.Decay.HalfLife < 0 {
		errs = append(errs, errors.New("decay.half_life must not be negative"))
	}
	if cfg.Decay.MinWeight < 0 || cfg.Decay.MinWeight > 1 {
		errs = append(errs, fmt.Errorf("decay.min_weight %.3f is out of range [0, 1]", cfg.Decay.MinWeight))
	}

	if cfg.Embedding.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("embedding.requests_per_second must be positive, got %.2f", cfg.Embedding.RequestsPerSecond))
	}
	if cfg.Embedding.Burst <= 0 {
		errs = append(errs, fmt.Errorf("embedding.burst must be positive, got %d", cfg.Embedding.Burst))
	}

	if cfg.Pagination.DefaultPageSize <= 0 {
		errs = append(errs, fmt.Errorf("pagination.default_page_size must be positive, got %d", cfg.Pagination.DefaultPageSize))
	}
	if cfg.Pagination.MaxPageSize < cfg.Pagination.DefaultPageSize {
		errs = append(errs, fmt.Errorf("pagination.max_page_size (%d) must be >= default_page_size (%d)", cfg.Pagination.MaxPageSize, cfg.Pagination.DefaultPageSize))
	}

	if !cfg.Hybrid.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("hybrid.strategy %q is invalid; valid values: weighted, rrf", cfg.Hybrid.Strategy))
	}
	if cfg.Hybrid.Strategy == FusionWeighted && cfg.Hybrid.GraphWeight == 0 && cfg.Hybrid.VectorWeight == 0 {
		slog.Warn("hybrid.strategy is \"weighted\" but both graph_weight and vector_weight are zero; results will be unranked")
	}
	if cfg.Hybrid.Strategy == FusionRRF && cfg.Hybrid.RRFK <= 0 {
		errs = append(errs, fmt.Errorf("hybrid.rrf_k must be positive when strategy is \"rrf\", got %d", cfg.Hybrid.RRFK))
	}

	if cfg.Cache.Enabled && cfg.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive when cache.enabled is true"))
	}

	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; embedding jobs will fail until a provider is set")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
