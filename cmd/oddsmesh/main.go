package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/vkorchagin/oddsmesh/internal/canon"
	"github.com/vkorchagin/oddsmesh/internal/catalog"
	"github.com/vkorchagin/oddsmesh/internal/feed"
	"github.com/vkorchagin/oddsmesh/internal/lifecycle"
	"github.com/vkorchagin/oddsmesh/internal/merge"
	"github.com/vkorchagin/oddsmesh/internal/notify"
	"github.com/vkorchagin/oddsmesh/internal/pkg/config"
	"github.com/vkorchagin/oddsmesh/internal/pkg/logging"
	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
	"github.com/vkorchagin/oddsmesh/internal/pkg/ops"
	"github.com/vkorchagin/oddsmesh/internal/scheduler"
	"github.com/vkorchagin/oddsmesh/internal/supervisor"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/local.yaml", "Path to config file")
	flag.Parse()

	// .env is optional; real deployments use the config file.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if _, err := logging.SetupLogger(&cfg.Logging, "oddsmesh"); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Canonicalization cache, optionally persisted in Redis.
	var aliasStore canon.AliasStore
	if cfg.Redis.Addr != "" && cfg.Canon.PersistAliases {
		store, err := canon.NewRedisAliasStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("Redis unavailable, canonicalization cache runs memory-only", "error", err)
		} else {
			aliasStore = store
			defer store.Close()
		}
	}
	cache := canon.NewCache(cfg.Canon.SimilarityThreshold, aliasStore)
	cache.WarmStart(ctx)

	// History partition: Postgres when configured, embedded otherwise.
	var history catalog.HistoryStore
	if cfg.History.PostgresDSN != "" {
		pg, err := catalog.NewPostgresHistory(&cfg.History)
		if err != nil {
			log.Fatalf("Failed to connect history store: %v", err)
		}
		history = pg
	} else {
		slog.Info("No postgres DSN configured, using in-memory history")
		history = catalog.NewMemoryHistory()
	}

	store := catalog.NewStore(history)
	defer store.Close()

	registry := prometheus.NewRegistry()
	metrics := ops.NewMetrics(registry)
	store.Subscribe(func(snap *catalog.Snapshot) {
		metrics.ActiveRecords.Set(float64(len(snap.Active)))
	})

	// Watched feed documents.
	sources := make([]feed.Source, 0, len(cfg.Feeds.Sources))
	for _, s := range cfg.Feeds.Sources {
		sources = append(sources, feed.Source{ID: s.ID, Path: cfg.FeedPath(s)})
	}
	watcher := feed.NewWatcher(sources)

	engine := merge.NewEngine(cache, store, cfg.Merge.StartTimeTolerance)

	pass := func(ctx context.Context) error {
		start := time.Now()
		docs := watcher.ReadAll()
		snap, err := engine.Merge(ctx, docs)
		if err == nil {
			err = store.Publish(ctx, snap)
		}
		metrics.PassDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PassFailures.Inc()
			return err
		}
		metrics.PassesTotal.Inc()
		return nil
	}
	sched := scheduler.New(watcher, pass, cfg.Scheduler.PollInterval, cfg.Scheduler.Debounce)

	sweeper := lifecycle.NewManager(store, cfg.Lifecycle.SweepInterval, cfg.Lifecycle.FinishedGrace, cfg.Lifecycle.LiveStaleAfter)
	sweeper.OnRetired(func(count int) {
		metrics.RetiredTotal.Add(float64(count))
	})

	// Alert delivery: Telegram when configured, log otherwise; always behind
	// the suppressor.
	var transport notify.Notifier = notify.LogNotifier{}
	if cfg.Alerts.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID)
		if err != nil {
			slog.Error("Telegram notifier unavailable, falling back to log alerts", "error", err)
		} else {
			transport = tg
			defer tg.Stop()
		}
	}
	counted := notify.NotifierFunc(func(ctx context.Context, alert models.AlertEvent) error {
		metrics.AlertsRaised.Inc()
		return transport.Notify(ctx, alert)
	})
	notifier := notify.NewSuppressor(counted, cfg.Alerts.Cooldown)

	sup := supervisor.New(cfg.Supervisor, cfg.Feeds.Sources, watcher, notifier)
	sup.OnRestart(func(sourceID string) {
		metrics.AdapterRestarts.WithLabelValues(sourceID).Inc()
	})

	server := ops.NewServer(store, cache, sched, sup, registry)

	slog.Info("Starting oddsmesh engine",
		"sources", len(sources),
		"poll_interval", cfg.Scheduler.PollInterval,
		"ops_port", cfg.Ops.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error { return server.Run(gctx, ops.AddrFor(cfg.Ops.Port), cfg.Ops.ReadHeaderTimeout) })
	g.Go(func() error {
		// Keep source-health gauges current between scrapes.
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				for _, h := range sup.Health() {
					v := 0.0
					if h.State == supervisor.StateHealthy {
						v = 1.0
					}
					metrics.SourceHealth.WithLabelValues(h.SourceID).Set(v)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("Engine failed: %v", err)
	}
	slog.Info("Engine stopped")
}
