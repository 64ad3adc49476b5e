package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/cache"
	"github.com/you/voxq/internal/config"
	"github.com/you/voxq/internal/dedup"
	"github.com/you/voxq/internal/health"
	"github.com/you/voxq/internal/metrics"
	"github.com/you/voxq/internal/queue"
	"github.com/you/voxq/internal/ratelimit"
	"github.com/you/voxq/internal/scheduler"
)

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	b := broker.NewRedis(rdb)

	audio, err := cache.New(cfg.CacheDir, log)
	if err != nil {
		log.Fatal("cache init failed", zap.Error(err))
	}

	store := queue.NewStore(b)
	router := queue.NewRouter(b, store)
	rec := metrics.NewBrokerRecorder(b, log)
	mon := health.NewMonitor(b, router, cfg.ErrorRateCeiling, cfg.QueueDepthCeiling, log)
	sched := scheduler.New(
		audio,
		dedup.New(b, cfg.DedupTTL()),
		ratelimit.New(b, cfg.RatePerMinute, log),
		router,
		store,
		mon,
		rec,
		log,
	)

	h := &handler{sched: sched, log: log}

	rtr := chi.NewRouter()
	rtr.Use(middleware.RequestID, middleware.Recoverer)

	rtr.Post("/v1/tts", h.submit)
	rtr.Get("/v1/tts/{id}", h.status)
	rtr.Delete("/v1/tts/{id}", h.cancel)
	rtr.Get("/v1/queue/stats", h.queueStats)
	rtr.Get("/v1/health", h.health)
	rtr.Get("/v1/cache/stats", h.cacheStats)
	rtr.Post("/v1/cache/cleanup", h.cacheCleanup)
	rtr.Post("/v1/cache/clear", h.cacheClear)

	log.Info("api listening", zap.String("addr", cfg.APIAddr))
	if err := http.ListenAndServe(cfg.APIAddr, rtr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
