// Package app wires the learner-model engine to its store, graph, workflow
// engine, scheduler and HTTP server.
package app

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	temporalsdkclient "go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-mastery/internal/data/graph"
	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	httpserver "github.com/yungbote/neurobridge-mastery/internal/http"
	httpH "github.com/yungbote/neurobridge-mastery/internal/http/handlers"
	"github.com/yungbote/neurobridge-mastery/internal/jobs"
	"github.com/yungbote/neurobridge-mastery/internal/learning/engine"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
	"github.com/yungbote/neurobridge-mastery/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-mastery/internal/temporalx"
	"github.com/yungbote/neurobridge-mastery/internal/temporalx/outcome"
	"github.com/yungbote/neurobridge-mastery/internal/temporalx/worker"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Metrics  *observability.Metrics
	Store    kv.Store
	Engine   *engine.Engine
	Catalog  *skills.Catalog
	Graph    *neo4jdb.Client
	Temporal temporalsdkclient.Client
	// Recorder is the engine itself, or the Temporal dispatcher when a
	// Temporal address is configured.
	Recorder  outcome.Recorder
	Scheduler *jobs.Scheduler
	Server    *httpserver.Server

	worker       *worker.Runner
	backing      backing
	otelShutdown func(context.Context) error
}

// New builds the app. The HTTP server, Temporal worker and scheduler are
// wired here but only started by Run, so CLI commands can reuse New for
// one-off work.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg}
	a.Metrics = observability.Init(log)
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)

	store, b, err := openStore(log, cfg, a.Metrics)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store, a.backing = store, b

	provider, err := a.wireProvider(log, &cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Cfg = cfg
	a.Engine = engine.New(store, provider, log, cfg.Engine, engine.WithMetrics(a.Metrics))
	a.Recorder = a.Engine

	tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if tc != nil {
		a.Temporal = tc
		a.Recorder = outcome.NewDispatcher(tc, cfg.Temporal.TaskQueue, cfg.Temporal.OutcomeTimeout, log)
		a.worker, err = worker.NewRunner(log, tc, cfg.Temporal, a.Engine, a.Metrics)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	var schedule []jobs.Job
	if cfg.JobsEnabled {
		schedule = append(schedule,
			jobs.ReestimateJob(a.Engine.Mastery, cfg.ReestimateEvery, log, a.Metrics),
			jobs.TrimHistoryJob(a.Engine.Feedback, cfg.TrimHistoryEvery),
		)
	}
	a.Scheduler = jobs.NewScheduler(log, a.Metrics, schedule...)

	deps := map[string]httpH.Pinger{"store": a.backing}
	if a.Graph != nil {
		deps["neo4j"] = graphPinger{a.Graph.Driver}
	}
	handlers := wireHandlers(log, a.Engine, a.Recorder, deps)
	a.Server = wireServer(log, cfg, a.Metrics, handlers, wireMiddleware(log, cfg))
	return a, nil
}

// wireProvider chains the YAML catalog before the Neo4j graph. Catalog
// categories become the engine's category defaults unless already set.
func (a *App) wireProvider(log *logger.Logger, cfg *Config) (skills.Provider, error) {
	var chain skills.ChainProvider
	if cfg.CatalogPath != "" {
		cat, err := skills.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		a.Catalog = cat
		if len(cfg.Engine.CategoryDefaults) == 0 {
			cfg.Engine.CategoryDefaults = cat.CategoryDefaults()
		}
		log.Info("skill catalog loaded", "path", cfg.CatalogPath, "skills", len(cat.Skills))
		chain = append(chain, cat)
	}
	gc, err := neo4jdb.New(log, cfg.Neo4j)
	if err != nil {
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	if gc != nil {
		a.Graph = gc
		chain = append(chain, graph.NewNeo4jProvider(gc, log))
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

// SyncGraph registers every catalog skill and pushes the registry to Neo4j.
// It returns the number of skills written.
func (a *App) SyncGraph(ctx context.Context) (int, error) {
	if a.Graph == nil {
		return 0, fmt.Errorf("NEO4J_URI not set")
	}
	if a.Catalog != nil && len(a.Catalog.Skills) > 0 {
		ids := make([]string, 0, len(a.Catalog.Skills))
		for _, s := range a.Catalog.Skills {
			ids = append(ids, s.ID)
		}
		if _, err := a.Engine.Skills.GetMany(ctx, ids); err != nil {
			return 0, fmt.Errorf("register catalog skills: %w", err)
		}
	}
	all, err := a.Engine.Skills.All(ctx)
	if err != nil {
		return 0, err
	}
	if err := graph.SyncCatalog(ctx, a.Graph, a.Log, all); err != nil {
		return 0, err
	}
	return len(all), nil
}

// Run serves HTTP and runs the scheduler and Temporal worker until ctx is
// done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a.Cfg.SyncGraphOnBoot && a.Graph != nil {
		if n, err := a.SyncGraph(ctx); err != nil {
			a.Log.Warn("neo4j sync on start failed", "error", err)
		} else {
			a.Log.Info("neo4j skill graph synced", "skills", n)
		}
	}
	a.Metrics.StartPostgresCollector(ctx, a.Log, a.backing.gorm)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.backing.redis)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Server.Run(ctx, a.Cfg.Address) })
	g.Go(func() error { return a.Scheduler.Run(ctx) })
	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(ctx) })
	}
	return g.Wait()
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			a.Log.Warn("neo4j close failed", "error", err)
		}
	}
	if err := a.backing.Close(); err != nil {
		a.Log.Warn("store close failed", "error", err)
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}

type graphPinger struct {
	driver neo4j.DriverWithContext
}

func (p graphPinger) Ping(ctx context.Context) error {
	return p.driver.VerifyConnectivity(ctx)
}
