package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"symbolsyncv1/config"
	"symbolsyncv1/internal/api"
	"symbolsyncv1/internal/archive"
	"symbolsyncv1/internal/gateway"
	"symbolsyncv1/internal/logger"
	"symbolsyncv1/internal/metrics"
	"symbolsyncv1/internal/model"
	"symbolsyncv1/internal/notification"
	"symbolsyncv1/internal/source"
	redisstore "symbolsyncv1/internal/store/redis"
	sqlitestore "symbolsyncv1/internal/store/sqlite"
	"symbolsyncv1/internal/syncer"
	smartconnect "symbolsyncv1/pkg/smartconnect"
)

func main() {
	logger.Init("syncd", slog.LevelInfo)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[syncd] starting...")

	cfg := config.Load()

	// ---- Storage ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[syncd] sqlite init failed: %v", err)
	}
	defer store.Close()

	archiver, err := archive.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("[syncd] archive init failed: %v", err)
	}

	// ---- Optional Redis mapping cache ----
	var cache *redisstore.Cache
	if cfg.RedisAddr != "" {
		cache, err = redisstore.New(redisstore.CacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			// Cache is read-aside only; run without it.
			log.Printf("[syncd] redis unavailable, running without mapping cache: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// ---- Source adapters ----
	zerodha := source.NewZerodha(nil)
	upstox := source.NewUpstox(nil, cfg.UpstoxAccessToken)
	angel := source.NewAngel(nil)
	shoonya := source.NewShoonya(nil)

	if cfg.HasAngelCredentials() {
		sc := smartconnect.New(smartconnect.Config{APIKey: cfg.AngelAPIKey})
		sess, err := sc.GenerateSessionWithSecret(cfg.AngelClientCode, cfg.AngelPassword, cfg.AngelTOTPSecret)
		if err != nil {
			log.Printf("[syncd] angel login failed, using public endpoints: %v", err)
		} else {
			angel.APIKey = cfg.AngelAPIKey
			angel.AuthToken = sess.AccessToken
			log.Printf("[syncd] angel session established for %s", sess.ClientCode)
		}
	}

	adapters := []source.Adapter{zerodha, upstox, angel, shoonya}

	// ---- Status bootstrap ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.InitStatuses(ctx, model.KnownBrokers()); err != nil {
		log.Fatalf("[syncd] status init failed: %v", err)
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetRedisEnabled(cache != nil)
	health.CheckSQLite(ctx, store.DB())
	var redisClient *goredis.Client
	if cache != nil {
		redisClient = cache.Client()
	}
	health.StartLivenessChecker(ctx, redisClient, store.DB(), 15*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Orchestrator, WS hub, alerts, API ----
	hub := gateway.NewHub()

	sinks := syncer.MultiSink{hub}
	var notifiers []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if len(notifiers) > 0 {
		sinks = append(sinks, notification.NewSyncAlerter(notifiers...))
	}

	orch := syncer.New(store, store, adapters).
		WithArchiver(archiver).
		WithEvents(sinks).
		WithMetrics(prom)
	if cache != nil {
		orch.WithCache(cache)
	}

	apiSrv := api.NewServer(cfg.APIAddr, store, store, orch).
		WithArchiver(archiver).
		WithHub(hub).
		WithMetrics(prom)
	if cache != nil {
		apiSrv.WithCache(cache)
	}
	apiSrv.Start()

	// ---- Optional periodic sync ----
	if cfg.SyncInterval > 0 {
		go func() {
			log.Printf("[syncd] periodic sync every %s", cfg.SyncInterval)
			ticker := time.NewTicker(cfg.SyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					results := orch.SyncAll(ctx)
					for broker, res := range results {
						if res.Error != "" {
							slog.Warn("periodic sync failed", "broker", broker, "err", res.Error)
						}
					}
					health.SetLastSyncAt(time.Now())
				}
			}
		}()
	}

	// ---- Wait for shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[syncd] received %s, shutting down", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[syncd] bye")
}
