package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"site-orchestrator/internal/api"
	"site-orchestrator/internal/archive"
	"site-orchestrator/internal/config"
	"site-orchestrator/internal/jobs"
	"site-orchestrator/internal/notify"
	"site-orchestrator/internal/ratelimit"
	"site-orchestrator/internal/runlog"
	"site-orchestrator/internal/store"
	"site-orchestrator/internal/tenant"
	"site-orchestrator/internal/trigger"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	resolver, err := tenant.Load(cfg.SitesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load site table")
	}

	// The record store is a best-effort sink: an outage degrades
	// observability but never blocks startup or job execution.
	var runStore *store.Store
	var logStore runlog.Store
	var runs api.RunLister
	if st, err := store.New(ctx, cfg.PostgresDSN); err != nil {
		log.Warn().Err(err).Msg("record store unavailable, running unlogged")
	} else {
		if err := st.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrations")
		}
		runStore = st
		logStore = st
		runs = st
		defer st.Close()
	}

	var notifier runlog.Notifier
	if cfg.NotifyWebhook != "" {
		notifier = notify.NewWebhook(cfg.NotifyWebhook)
	}

	var archiver runlog.Archiver
	switch {
	case cfg.ArchiveS3Bucket != "":
		a, err := archive.NewS3(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init s3 archiver")
		}
		archiver = a
	case cfg.ArchiveDir != "":
		archiver = archive.NewLocal(cfg.ArchiveDir)
	}

	runner := runlog.New(logStore, notifier, archiver, cfg.CronSecret, cfg.Production())

	var limitStore ratelimit.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limitStore = ratelimit.NewRedisStore(client)
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(limitStore)

	registry := jobs.NewRegistry()
	registry.Register(jobs.NewSiteAudit(resolver, nil).Job(cfg.AuditSchedule))
	registry.Register(jobs.NewSitemapPing(resolver, nil).Job(cfg.SitemapSchedule))
	registry.Register(jobs.NewCacheWarm(resolver, nil, cfg.CacheWarmPaths).Job(cfg.CacheWarmSchedule))

	scheduler := trigger.New(runner, runlog.Options{
		MaxDuration: cfg.JobMaxDuration,
		Margin:      cfg.JobMargin,
	})
	for _, job := range registry.All() {
		if err := scheduler.Add(job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name).Msg("register schedule")
		}
	}
	scheduler.Start()

	server := api.New(cfg, runner, resolver, limiter, registry, runs)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Info().Str("port", cfg.HTTPPort).Bool("record_store", runStore != nil).Int("sites", len(resolver.SiteIDs())).Msg("orchestrator listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	<-scheduler.Stop().Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
