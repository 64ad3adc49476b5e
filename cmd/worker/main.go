package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/voxq/internal/archive"
	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/cache"
	"github.com/you/voxq/internal/config"
	"github.com/you/voxq/internal/metrics"
	"github.com/you/voxq/internal/queue"
	"github.com/you/voxq/internal/synth"
	"github.com/you/voxq/internal/worker"
)

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	b := broker.NewRedis(rdb)
	store := queue.NewStore(b)

	audio, err := cache.New(cfg.CacheDir, log)
	if err != nil {
		log.Fatal("cache init failed", zap.Error(err))
	}

	var arch worker.Archiver
	if cfg.PostgresDSN != "" {
		if err := archive.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
			log.Fatal("archive migration failed", zap.Error(err))
		}
		db, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("archive db unavailable", zap.Error(err))
		}
		defer db.Close()
		arch = archive.New(db)
		log.Info("job archive enabled")
	}

	provider := synth.NewHTTPProvider(cfg.ProviderURL, cfg.ProviderAPIKey)
	rec := metrics.NewBrokerRecorder(b, log)

	// priority workers only touch high; standard workers prefer high but
	// fall through; batch capacity is dedicated so batch never starves
	pools := []worker.Config{
		{Name: "priority", Queues: []string{queue.High}, Workers: cfg.PriorityWorkers},
		{Name: "standard", Queues: []string{queue.High, queue.Standard}, Workers: cfg.StandardWorkers},
		{Name: "batch", Queues: []string{queue.Batch}, Workers: cfg.BatchWorkers},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, pc := range pools {
		pc.MaxRetries = cfg.MaxRetries
		pc.BaseDelay = cfg.RetryBaseDelay()
		pc.PollInterval = cfg.ProviderPoll()
		pc.PollMaxWait = cfg.ProviderMaxWait()
		pc.HeartbeatTTL = cfg.HeartbeatTTL()
		pool := worker.NewPool(pc, b, store, audio, provider, rec, arch, log)
		g.Go(func() error { return pool.Run(ctx) })
	}

	mover := worker.NewRetryMover(b, store, cfg.RetrySweep(), log)
	g.Go(func() error { return mover.Run(ctx) })

	log.Info("worker pools running",
		zap.Int("priority", cfg.PriorityWorkers),
		zap.Int("standard", cfg.StandardWorkers),
		zap.Int("batch", cfg.BatchWorkers))

	if err := g.Wait(); err != nil {
		log.Fatal("worker exited", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
