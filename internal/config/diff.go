package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded without restarting the
// process are tracked — backend/vector settings require a restart since
// they affect schema and connection pooling.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DecayChanged bool
	NewDecay     DecayConfig

	EmbeddingRateChanged bool
	NewEmbedding         EmbeddingConfig

	HybridChanged bool
	NewHybrid     HybridConfig

	CacheChanged bool
	NewCache     CacheConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Decay != new.Decay {
		d.DecayChanged = true
		d.NewDecay = new.Decay
	}

	if old.Embedding.RequestsPerSecond != new.Embedding.RequestsPerSecond ||
		old.Embedding.Burst != new.Embedding.Burst ||
		old.Embedding.MaxRetries != new.Embedding.MaxRetries ||
		old.Embedding.BackoffBase != new.Embedding.BackoffBase ||
		old.Embedding.BackoffMax != new.Embedding.BackoffMax {
		d.EmbeddingRateChanged = true
		d.NewEmbedding = new.Embedding
	}

	if old.Hybrid != new.Hybrid {
		d.HybridChanged = true
		d.NewHybrid = new.Hybrid
	}

	if old.Cache != new.Cache {
		d.CacheChanged = true
		d.NewCache = new.Cache
	}

	return d
}
