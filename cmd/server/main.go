// Package main is the entrypoint for the import engine's headless host
// process: it wires the resolve/stage/download/post-process pipeline
// to an HTTP transport, an optional Postgres/Neo4j mirror pair, and an
// optional NATS event bus, then serves until signaled to stop.
// Grounded on the teacher's cmd/server/main.go: load config, dial
// optional stores, build the API server, ListenAndServe with graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaultbridge/importengine/internal/api"
	"github.com/vaultbridge/importengine/internal/cache"
	"github.com/vaultbridge/importengine/internal/config"
	"github.com/vaultbridge/importengine/internal/download"
	"github.com/vaultbridge/importengine/internal/events"
	"github.com/vaultbridge/importengine/internal/httpcatalog"
	"github.com/vaultbridge/importengine/internal/importpipeline"
	"github.com/vaultbridge/importengine/internal/index"
	"github.com/vaultbridge/importengine/internal/ioport"
	"github.com/vaultbridge/importengine/internal/localworkspace"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/notifier"
	"github.com/vaultbridge/importengine/internal/persist"
	"github.com/vaultbridge/importengine/internal/persist/graphmirror"
	"github.com/vaultbridge/importengine/internal/persist/pgmirror"
	"github.com/vaultbridge/importengine/internal/reconciler"
	"github.com/vaultbridge/importengine/internal/resolver"
	"github.com/vaultbridge/importengine/internal/scheduler"
	"go.uber.org/zap"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

// persistIndexChange mirrors an in-memory index mutation back to the
// on-disk primary store (internal/persist), keeping it in sync with
// internal/index the way the teacher's reconciler kept its secondary
// stores in sync with the in-memory collector registry.
func persistIndexChange(store *persist.Store, logger *zap.Logger, ev model.IndexChangeEvent, lookup func(model.TrackedID) (model.ImportedAssetInfo, bool)) {
	for _, id := range ev.Removed {
		if err := store.Delete(id); err != nil {
			logger.Warn("persisting index removal", zap.String("asset", id.String()), zap.Error(err))
		}
	}
	for _, id := range append(append([]model.TrackedID{}, ev.Added...), ev.Updated...) {
		entry, ok := lookup(id)
		if !ok {
			continue
		}
		if err := store.Save(entry); err != nil {
			logger.Warn("persisting index entry", zap.String("asset", id.String()), zap.Error(err))
		}
	}
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	fs := ioport.NewOSFileIO(os.TempDir())

	store := persist.New(cfg.Settings.ImportPath(), logger)
	entries, err := store.Load()
	if err != nil {
		logger.Fatal("loading persisted index", zap.Error(err))
	}

	var mirrors []persist.Mirror
	var pg *pgmirror.Store
	var graph *graphmirror.Store
	if cfg.Postgres.Enabled {
		pg, err = pgmirror.Connect(ctx, cfg.Postgres.DSN())
		if err != nil {
			logger.Fatal("connecting to postgres", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("ensuring postgres schema", zap.Error(err))
		}
		mirrors = append(mirrors, pg)
		logger.Info("postgres mirror enabled")
	}
	if cfg.Neo4j.Enabled {
		graph, err = graphmirror.Connect(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
		if err != nil {
			logger.Warn("connecting to neo4j, graph mirror disabled", zap.Error(err))
			graph = nil
		} else {
			defer graph.Close(ctx)
			mirrors = append(mirrors, graph)
			logger.Info("neo4j mirror enabled")
		}
	}
	recon := reconciler.New(logger, mirrors...)

	var notif *notifier.Notifier
	if cfg.Notifier.Enabled {
		notif = notifier.New(logger, cfg.Notifier.WebhookURL)
		notif.AddRule(notifier.AlertRule{Name: "default", Channels: []string{"webhook"}})
		logger.Info("webhook notifier enabled")
	}

	idx := index.New(logger)
	idx.SetAll(entries)
	idx.Subscribe(func(ev model.IndexChangeEvent) {
		persistIndexChange(store, logger, ev, idx.GetByTracked)
		recon.Sync(ctx, ev, idx.GetByTracked)
		if notif != nil {
			notif.NotifyIndexChange(ctx, ev)
		}
	})

	var bus *events.Bus
	if cfg.NATS.Enabled {
		conn, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Warn("connecting to nats, event bus disabled", zap.Error(err))
		} else {
			defer conn.Close()
			bus = events.New(conn, logger)
			defer bus.SubscribeToIndex(idx.Subscribe)()
			logger.Info("nats event bus enabled")
		}
	}

	assetCache := cache.New(fs, cfg.Settings.ThumbnailsCacheLocation, cfg.Settings.MaxCacheSizeMB, cfg.Settings.MaxCacheSizeMB/2, logger)

	ws, err := localworkspace.New(cfg.Settings.ImportPath()+"/.workspace-guids.json", logger)
	if err != nil {
		logger.Fatal("opening local workspace guid index", zap.Error(err))
	}

	cat := httpcatalog.New(os.Getenv("IMPORT_ENGINE_CATALOG_URL"), os.Getenv("IMPORT_ENGINE_CATALOG_TOKEN"), nil)

	res := resolver.New(cat, fs, ws, idx, cfg.Settings.DefaultSearchPageSize, logger)

	transport := download.NewHTTPTransport(nil)
	downloads := download.New(transport, 0, 0, logger)
	if bus != nil {
		defer bus.SubscribeToDownloads(func(fn func(events.DownloadEvent)) func() {
			return downloads.Subscribe(func(ev download.Event) {
				fn(events.DownloadEvent{
					ID:         ev.ID,
					Status:     string(ev.Status),
					BytesDone:  ev.BytesDone,
					TotalBytes: ev.TotalBytes,
					Done:       ev.Done,
				})
			})
		})()
	}
	downloadCtx, cancelDownloads := context.WithCancel(ctx)
	defer cancelDownloads()
	go downloads.Run(downloadCtx, 250*time.Millisecond)

	pipeline := importpipeline.New(res, cat, fs, ws, idx, downloads, nil, cfg.Settings.ImportPath(), logger)

	sched := scheduler.New(pipeline, idx, time.Duration(cfg.Settings.SchedulerIntervalMinutes)*time.Minute, cfg.Settings.Effective(), logger, notif)
	sched.Start(ctx)
	defer sched.Stop()

	srv := api.NewServer(logger, res, pipeline, idx, assetCache, downloads, cfg.Settings.Effective(), pg, graph, notif)

	httpServer := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: srv,
	}

	go func() {
		logger.Info("starting import engine server", zap.String("addr", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}
