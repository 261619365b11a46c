// Command kgmemctl bootstraps and operates a kgmemory knowledge-graph store:
// running schema migrations, checking backend health, and starting the
// embedding job manager against a live configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropic-labs/kgmemory/internal/config"
	"github.com/anthropic-labs/kgmemory/internal/observe"
	"github.com/anthropic-labs/kgmemory/pkg/kgraph"
	"github.com/anthropic-labs/kgmemory/pkg/kgraph/embed"
	"github.com/anthropic-labs/kgmemory/pkg/kgraph/postgres"
	"github.com/anthropic-labs/kgmemory/pkg/provider/embeddings"
	"github.com/anthropic-labs/kgmemory/pkg/provider/embeddings/ollama"
	"github.com/anthropic-labs/kgmemory/pkg/provider/embeddings/openai"

	"go.opentelemetry.io/otel"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: kgmemctl <migrate|healthcheck|serve> [-config path]")
		return 2
	}

	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	fs.Parse(args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kgmemctl: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kgmemctl: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	switch cmd {
	case "migrate":
		return cmdMigrate(cfg)
	case "healthcheck":
		return cmdHealthcheck(cfg)
	case "serve":
		return cmdServe(cfg)
	default:
		fmt.Fprintf(os.Stderr, "kgmemctl: unknown command %q\n", cmd)
		return 2
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func cmdMigrate(cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	metric := kgraph.DistanceCosine
	if cfg.Vector.DistanceMetric == config.DistanceEuclidean {
		metric = kgraph.DistanceEuclidean
	}

	store, err := postgres.NewStore(ctx, cfg.Backend.PostgresDSN, cfg.Backend.MaxConns, cfg.Vector.Dimensions, metric)
	if err != nil {
		slog.Error("migration failed", "err", err)
		return 1
	}
	defer store.Close()

	slog.Info("migration complete")
	return 0
}

func cmdHealthcheck(cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	metric := kgraph.DistanceCosine
	if cfg.Vector.DistanceMetric == config.DistanceEuclidean {
		metric = kgraph.DistanceEuclidean
	}

	store, err := postgres.NewStore(ctx, cfg.Backend.PostgresDSN, cfg.Backend.MaxConns, cfg.Vector.Dimensions, metric)
	if err != nil {
		slog.Error("unhealthy", "err", err)
		return 1
	}
	defer store.Close()

	if _, err := store.LoadGraph(ctx); err != nil {
		slog.Error("unhealthy", "err", err)
		return 1
	}

	slog.Info("healthy")
	return 0
}

func cmdServe(cfg *config.Config) int {
	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceName: "kgmemory"})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to init metrics", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metric := kgraph.DistanceCosine
	if cfg.Vector.DistanceMetric == config.DistanceEuclidean {
		metric = kgraph.DistanceEuclidean
	}

	store, err := postgres.NewStore(ctx, cfg.Backend.PostgresDSN, cfg.Backend.MaxConns, cfg.Vector.Dimensions, metric)
	if err != nil {
		slog.Error("failed to connect to backend", "err", err)
		return 1
	}
	defer store.Close()

	reg := config.NewRegistry()
	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return openai.New(e.APIKey, e.Model)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return ollama.New(e.BaseURL, e.Model)
	})

	provider, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider", "err", err)
		return 1
	}

	jobManager := embed.NewManager(store, store.VectorIndex(), provider, embed.Config{
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
		MaxRetries:        cfg.Embedding.MaxRetries,
		BackoffBase:       cfg.Embedding.BackoffBase,
		BackoffMax:        cfg.Embedding.BackoffMax,
		ShutdownGrace:     cfg.Embedding.ShutdownGrace,
		Logger:            slog.Default(),
	})
	jobManager.Run(ctx)

	facade := kgraph.NewFacade(store, provider, jobManager, kgraph.FacadeOptions{
		Planner: kgraph.PlannerOptions{
			MergeMethod: mergeMethod(cfg.Hybrid.Strategy),
			Weights:     kgraph.HybridWeights{Graph: cfg.Hybrid.GraphWeight, Vector: cfg.Hybrid.VectorWeight},
			Limits:      kgraph.Limits{DefaultLimit: cfg.Pagination.DefaultPageSize, MaxLimit: cfg.Pagination.MaxPageSize},
		},
		Cache: kgraph.CacheOptions{
			MaxBytes: cfg.Cache.MaxSizeBytes,
			TTL:      cfg.Cache.TTL,
		},
		Decay: kgraph.DecayParams{
			HalfLife: cfg.Decay.HalfLife,
			Floor:    cfg.Decay.MinWeight,
		},
		Metrics:     metrics,
		EnableCache: cfg.Cache.Enabled,
	})

	slog.Info("kgmemory ready", "strategies", facade.AvailableStrategies())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := jobManager.Shutdown(shutdownCtx); err != nil {
		slog.Error("job manager shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

func mergeMethod(s config.FusionStrategy) kgraph.MergeMethod {
	if s == config.FusionWeighted {
		return kgraph.MergeWeighted
	}
	return kgraph.MergeRRF
}
