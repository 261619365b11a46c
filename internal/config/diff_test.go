package config_test

import (
	"testing"
	"time"

	"github.com/anthropic-labs/kgmemory/internal/config"
)

func baseConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
		Decay:  config.DecayConfig{HalfLife: 24 * time.Hour, MinWeight: 0.1},
		Embedding: config.EmbeddingConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Hybrid: config.HybridConfig{Strategy: config.FusionRRF, RRFK: 60},
		Cache:  config.CacheConfig{Enabled: true, TTL: time.Minute, MaxSizeBytes: 100 * 1024 * 1024},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	d := config.Diff(&old, &new)
	if d.LogLevelChanged || d.DecayChanged || d.EmbeddingRateChanged || d.HybridChanged || d.CacheChanged {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogLevelDebug

	d := config.Diff(&old, &new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("NewLogLevel: got %q", d.NewLogLevel)
	}
}

func TestDiff_DecayChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Decay.HalfLife = 48 * time.Hour

	d := config.Diff(&old, &new)
	if !d.DecayChanged {
		t.Error("expected DecayChanged=true")
	}
}

func TestDiff_EmbeddingRateChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Embedding.RequestsPerSecond = 20

	d := config.Diff(&old, &new)
	if !d.EmbeddingRateChanged {
		t.Error("expected EmbeddingRateChanged=true")
	}
}

func TestDiff_HybridChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Hybrid.Strategy = config.FusionWeighted

	d := config.Diff(&old, &new)
	if !d.HybridChanged {
		t.Error("expected HybridChanged=true")
	}
}

func TestDiff_CacheChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Cache.MaxSizeBytes = 500 * 1024 * 1024

	d := config.Diff(&old, &new)
	if !d.CacheChanged {
		t.Error("expected CacheChanged=true")
	}
}
