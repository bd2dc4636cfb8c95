// Package app wires the Roadwise engine from a config.Config: catalog,
// embedder, chat model, similarity index, resolver and the question
// pipeline, plus the optional Neo4j mirror and NATS connection.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/WessleyAI/roadwise/engine/catalog"
	"github.com/WessleyAI/roadwise/engine/embedcache"
	"github.com/WessleyAI/roadwise/engine/geojson"
	"github.com/WessleyAI/roadwise/engine/graph"
	"github.com/WessleyAI/roadwise/engine/rag"
	"github.com/WessleyAI/roadwise/engine/resolve"
	"github.com/WessleyAI/roadwise/engine/roadctx"
	"github.com/WessleyAI/roadwise/engine/semantic"
	"github.com/WessleyAI/roadwise/engine/vecindex"
	"github.com/WessleyAI/roadwise/pkg/config"
	"github.com/WessleyAI/roadwise/pkg/fn"
	"github.com/WessleyAI/roadwise/pkg/llm"
	"github.com/WessleyAI/roadwise/pkg/metrics"
	"github.com/WessleyAI/roadwise/pkg/natsutil"
	"github.com/WessleyAI/roadwise/pkg/ollama"
	"github.com/WessleyAI/roadwise/pkg/openai"
	"github.com/WessleyAI/roadwise/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// App holds the wired components. Graph and NATS are nil unless enabled.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *metrics.Registry
	Metrics  *metrics.Roadwise

	Catalog  *catalog.Guarded
	Embedder vecindex.Embedder
	Chat     llm.Chatter
	Resolver resolve.Resolver
	Builder  *roadctx.Builder
	RAG      *rag.Service

	Graph *graph.RoadGraph
	NATS  *nats.Conn

	holder *vecindex.Holder
	qdrant *semantic.RoadIndex
	cache  *embedcache.Store
	built  atomic.Bool

	closers []func() error
}

// Options selects the optional parts New connects.
type Options struct {
	// Services enables Neo4j and NATS when the config turns them on.
	Services bool
	// Chat creates the chat client. Commands that never ask questions
	// leave it off.
	Chat bool
}

// New wires the engine. The similarity index is not built; call BuildIndex.
func New(ctx context.Context, cfg config.Config, opts Options, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := metrics.New()
	a := &App{Config: cfg, Logger: logger, Registry: reg, Metrics: metrics.NewRoadwise(reg)}

	if err := a.init(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	cat, err := catalog.New(cfg.DataDir, catalog.WithExtension(cfg.Extension))
	if err != nil {
		return fmt.Errorf("app: catalog: %w", err)
	}
	a.Catalog = catalog.NewGuarded(cat)
	a.Metrics.Catalog(cat.Len(), len(cat.RoadNames()))
	if !catalog.Exists(cfg.DataDir) {
		a.Logger.Warn("data directory not found, catalog is empty", "dir", cfg.DataDir)
	}

	emb, err := a.newEmbedder()
	if err != nil {
		return err
	}
	a.Embedder = emb

	if opts.Chat {
		a.Chat = NewChatter(cfg.Chat)
	}

	var index resolve.Searcher
	switch cfg.Index.Backend {
	case "qdrant":
		ri, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection, a.Logger)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.qdrant = ri
		a.closers = append(a.closers, ri.Close)
		index = ri
	default:
		a.holder = &vecindex.Holder{}
		index = a.holder
	}

	a.Resolver, err = resolve.New(resolve.Kind(cfg.Resolver.Kind), resolve.Deps{
		Catalog:     a.Catalog,
		Index:       index,
		Embedder:    a.Embedder,
		TopK:        cfg.Resolver.TopK,
		Threshold:   cfg.Resolver.Threshold,
		FuzzyCutoff: cfg.Resolver.FuzzyCutoff,
		Logger:      a.Logger,
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	a.Builder = &roadctx.Builder{Finder: a.Catalog, Loader: geojson.Loader{}, Logger: a.Logger}
	if a.Chat != nil {
		a.RAG = rag.New(a.Resolver, a.Builder, a.Chat, rag.DefaultOptions(), a.Metrics, a.Logger)
	}

	if !opts.Services {
		return nil
	}
	if cfg.Neo4j.Enabled {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
		if err != nil {
			return fmt.Errorf("app: neo4j driver: %w", err)
		}
		a.closers = append(a.closers, func() error { return driver.Close(context.Background()) })
		if err := driver.VerifyConnectivity(ctx); err != nil {
			return fmt.Errorf("app: neo4j verify: %w", err)
		}
		a.Graph = graph.New(driver)
		if err := a.Graph.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.Logger.Info("connected to Neo4j", "url", cfg.Neo4j.URL)
	}
	if cfg.NATS.Enabled {
		nc, err := natsutil.Connect(cfg.NATS.URL, "roadwise", a.Logger)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.NATS = nc
		a.closers = append(a.closers, func() error { nc.Close(); return nil })
		a.Logger.Info("connected to NATS", "url", cfg.NATS.URL)
	}
	return nil
}

// newEmbedder builds provider client → cache → guard → timing.
func (a *App) newEmbedder() (vecindex.Embedder, error) {
	cfg := a.Config.Embed
	base, model := NewEmbedClient(cfg)

	var emb vecindex.Embedder = base
	if path := a.Config.Cache.Path; path != "" {
		store, err := embedcache.Open(path, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.cache = store
		a.closers = append(a.closers, store.Close)
		emb = &embedcache.Embedder{Next: emb, Store: store, Model: cfg.Provider + ":" + model, Logger: a.Logger}
	}

	breakerOpts := resilience.DefaultBreakerOpts
	breakerOpts.Name = "embed"
	breakerOpts.OnStateChange = func(name string, from, to resilience.State) {
		a.Logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
	}
	emb = &vecindex.Guard{
		Next:    emb,
		Limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.RatePerSec, Burst: cfg.Burst}),
		Breaker: resilience.NewBreaker(breakerOpts),
		Retry:   fn.DefaultRetry,
	}
	return timedEmbedder{next: emb, m: a.Metrics}, nil
}

// NewEmbedClient returns the provider embedding client and its model name.
func NewEmbedClient(cfg config.EmbedConfig) (vecindex.Embedder, string) {
	if cfg.Provider == "openai" {
		opts := []openai.Option{}
		if cfg.URL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.URL))
		}
		c := openai.NewClient(cfg.APIKey, append(opts, openai.WithEmbedModel(cfg.Model))...)
		return c, c.EmbedModel()
	}
	c := ollama.NewEmbedClient(cfg.URL, cfg.Model)
	return c, c.Model()
}

// NewChatter returns the chat client for cfg behind a circuit breaker.
func NewChatter(cfg config.ChatConfig) llm.Chatter {
	var next llm.Chatter
	if cfg.Provider == "openai" {
		opts := []openai.Option{openai.WithTemperature(cfg.Temperature), openai.WithChatModel(cfg.Model)}
		if cfg.URL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.URL))
		}
		next = openai.NewClient(cfg.APIKey, opts...)
	} else {
		next = ollama.NewChatClient(cfg.URL, cfg.Model, cfg.Temperature)
	}
	breakerOpts := resilience.DefaultBreakerOpts
	breakerOpts.Name = "chat"
	return &llm.Guarded{Next: next, Breaker: resilience.NewBreaker(breakerOpts)}
}

type timedEmbedder struct {
	next vecindex.Embedder
	m    *metrics.Roadwise
}

func (t timedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	out, err := t.next.Embed(ctx, texts)
	t.m.Embed(start, err)
	return out, err
}

// IndexEnabled reports whether the configured resolver needs the index.
func (a *App) IndexEnabled() bool {
	return resolve.Kind(a.Config.Resolver.Kind) == resolve.KindEmbedding
}

// BuildIndex embeds every catalog road name. With the qdrant backend an
// existing collection is attached first so a failed rebuild still leaves a
// searchable index.
func (a *App) BuildIndex(ctx context.Context) error {
	if !a.IndexEnabled() {
		return nil
	}
	if a.qdrant != nil {
		if ok, err := a.qdrant.Attach(ctx); err != nil {
			a.Logger.Warn("qdrant attach failed", "err", err)
		} else if ok {
			a.built.Store(true)
			a.Logger.Info("attached existing qdrant collection", "collection", a.Config.Qdrant.Collection)
		}
	}
	return a.Rebuild(ctx, a.Catalog.RoadNames())
}

// Rebuild replaces the index contents with roads. It satisfies
// refresh.Syncer.Rebuild.
func (a *App) Rebuild(ctx context.Context, roads []string) error {
	if !a.IndexEnabled() {
		return nil
	}
	opts := vecindex.Options{
		BatchSize:   a.Config.Index.BatchSize,
		Parallelism: a.Config.Index.Parallelism,
		Logger:      a.Logger,
	}
	start := time.Now()
	if a.qdrant != nil {
		if err := a.qdrant.Build(ctx, roads, a.Embedder, opts); err != nil {
			return fmt.Errorf("app: build index: %w", err)
		}
	} else {
		idx, err := vecindex.Build(ctx, roads, a.Embedder, opts)
		if err != nil {
			return fmt.Errorf("app: build index: %w", err)
		}
		a.holder.Store(idx)
	}
	a.built.Store(true)
	a.Metrics.Index(len(roads))
	a.Metrics.Catalog(a.Catalog.Len(), len(roads))
	a.Logger.Info("similarity index built", "roads", len(roads), "backend", a.Config.Index.Backend, "duration", time.Since(start))
	return nil
}

// Indexed reports whether a similarity index has been built or attached.
func (a *App) Indexed() bool { return a.built.Load() }

// Close releases every connection New opened, last first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
