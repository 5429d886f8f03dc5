package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/config"
	"github.com/five82/scrapedeck/internal/debugserver"
	"github.com/five82/scrapedeck/internal/logging"
	"github.com/five82/scrapedeck/internal/metrics"
	"github.com/five82/scrapedeck/internal/mutation"
	"github.com/five82/scrapedeck/internal/prefs"
	"github.com/five82/scrapedeck/internal/queries"
	"github.com/five82/scrapedeck/internal/query"
	"github.com/five82/scrapedeck/internal/state"
	"github.com/five82/scrapedeck/internal/ui"
)

const shutdownTimeout = 2 * time.Second

// Options configure the scrapedeck application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/scrapedeck/prefs.toml
	PollEvery  int    // seconds; overrides the job list interval when set
}

// Runtime is the wired engine shared by the UI and the debug server.
type Runtime struct {
	Config    config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Store     *state.Store
	Sync      *query.Synchronizer
	Catalog   *queries.Catalog
	Mutations *mutation.Coordinator
	Debug     *debugserver.Server
}

// Run boots the scrapedeck TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.JobsPoll = time.Duration(opts.PollEvery) * time.Second
	}

	logger, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	userPrefs := prefs.Load(opts.PrefsPath)

	// Do initial refresh to populate the cache before the UI starts
	if err := Prime(ctx, rt.Sync, rt.Catalog, ui.FirstPage(userPrefs, cfg.PageSize)); err != nil {
		logger.Warn("initial refresh incomplete", zap.Error(err))
	}

	return ui.Run(ui.Options{
		Context:   ctx,
		Sync:      rt.Sync,
		Catalog:   rt.Catalog,
		Mutations: rt.Mutations,
		Logger:    logger.Named("ui"),
		Prefs:     userPrefs,
		PrefsPath: opts.PrefsPath,
		PageSize:  cfg.PageSize,
		Overscan:  cfg.Overscan,
		LogFile:   cfg.LogFile,
	})
}

// Build wires the client, cache, synchronizer and coordinator from cfg and
// starts the debug server when an address is configured.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := api.NewClient(cfg.APIURL,
		api.WithAPIKey(cfg.APIKey),
		api.WithTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	m := metrics.New()
	store := state.NewStore(
		state.WithGCWindow(cfg.GCWindow),
		state.WithEvictHook(func(key state.Key) {
			m.ObserveEviction(key.Kind())
		}),
	)
	m.TrackEntries(store.Len)

	sync := query.New(ctx, store,
		query.WithLogger(logger.Named("query")),
		query.WithMetrics(m),
	)
	catalog := queries.New(client, queries.Intervals{
		Health:    cfg.HealthPoll,
		Jobs:      cfg.JobsPoll,
		Job:       cfg.JobPoll,
		StaleTime: cfg.StaleTime,
		Retries:   cfg.RetryCount,
		RetryBase: cfg.RetryBase,
		RetryMax:  cfg.RetryMax,
	})
	coord := mutation.New(sync, client,
		mutation.WithLogger(logger.Named("mutation")),
		mutation.WithMetrics(m),
	)

	rt := &Runtime{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Store:     store,
		Sync:      sync,
		Catalog:   catalog,
		Mutations: coord,
	}

	if cfg.MetricsAddr != "" {
		srv := debugserver.New(store, m, logger.Named("debug"))
		if err := srv.Start(cfg.MetricsAddr); err != nil {
			sync.Close()
			return nil, err
		}
		rt.Debug = srv
	}

	logger.Info("engine ready",
		zap.String("api_url", client.BaseURL()),
		zap.Duration("jobs_poll", cfg.JobsPoll),
		zap.Duration("health_poll", cfg.HealthPoll))
	return rt, nil
}

// Close stops polling and the debug server.
func (rt *Runtime) Close() {
	rt.Sync.Close()
	if rt.Debug == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.Debug.Shutdown(ctx); err != nil {
		rt.Logger.Warn("debug server shutdown failed", zap.Error(err))
	}
}
