package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/cache"
	"github.com/you/voxq/internal/domain"
	"github.com/you/voxq/internal/metrics"
	"github.com/you/voxq/internal/queue"
	"github.com/you/voxq/internal/synth"
)

// Archiver receives terminal job records. The concrete implementation
// (Postgres) is optional; a nil Archiver is skipped.
type Archiver interface {
	Record(ctx context.Context, j *domain.Job) error
}

// Config shapes one named pool. Queues is the drain order: a worker always
// pops the first non-empty queue in the list, so a pool bound to
// [high, standard] never starts standard work while high work is waiting.
type Config struct {
	Name         string
	Queues       []string
	Workers      int
	MaxRetries   int
	BaseDelay    time.Duration
	PollInterval time.Duration
	PollMaxWait  time.Duration
	BlockTimeout time.Duration
	HeartbeatTTL time.Duration
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.PollMaxWait <= 0 {
		c.PollMaxWait = 2 * time.Minute
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.HeartbeatTTL <= 0 {
		c.HeartbeatTTL = 15 * time.Second
	}
}

// Pool runs N workers over a fixed queue drain list. Each worker handles
// one job at a time; all coordination with other workers, including ones
// in other processes, goes through the broker.
type Pool struct {
	cfg      Config
	b        broker.Broker
	store    *queue.Store
	cache    *cache.Cache
	provider synth.Provider
	rec      metrics.Recorder
	arch     Archiver
	log      *zap.Logger
}

func NewPool(cfg Config, b broker.Broker, store *queue.Store, c *cache.Cache, p synth.Provider, rec metrics.Recorder, arch Archiver, log *zap.Logger) *Pool {
	cfg.defaults()
	return &Pool{
		cfg:      cfg,
		b:        b,
		store:    store,
		cache:    c,
		provider: p,
		rec:      rec,
		arch:     arch,
		log:      log.With(zap.String("pool", cfg.Name)),
	}
}

// Run blocks until ctx is cancelled and every worker has drained its
// in-flight job.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		id := fmt.Sprintf("%s-%s", p.cfg.Name, uuid.NewString()[:8])
		g.Go(func() error { return p.heartbeat(ctx, id) })
		g.Go(func() error { return p.runWorker(ctx, id) })
	}
	return g.Wait()
}

// heartbeat keeps a TTL'd liveness record so the health monitor can see
// workers in other processes. It refreshes well inside the TTL; if this
// process dies the record simply lapses.
func (p *Pool) heartbeat(ctx context.Context, workerID string) error {
	key := queue.HeartbeatPrefix + workerID
	tick := time.NewTicker(p.cfg.HeartbeatTTL / 3)
	defer tick.Stop()
	for {
		if err := p.b.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), p.cfg.HeartbeatTTL); err != nil && ctx.Err() == nil {
			p.log.Warn("heartbeat write failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func (p *Pool) runWorker(ctx context.Context, workerID string) error {
	log := p.log.With(zap.String("worker_id", workerID))
	log.Info("worker started", zap.Strings("queues", p.cfg.Queues))
	for {
		if ctx.Err() != nil {
			log.Info("worker stopped")
			return nil
		}
		q, jobID, err := p.b.BlockPop(ctx, p.cfg.BlockTimeout, p.cfg.Queues...)
		if errors.Is(err, broker.ErrNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopped")
				return nil
			}
			log.Error("pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		p.process(ctx, q, jobID, log)
	}
}

func (p *Pool) process(ctx context.Context, q, jobID string, log *zap.Logger) {
	log = log.With(zap.String("job_id", jobID), zap.String("queue", q))

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		log.Error("job record missing, dropping", zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		return
	}
	if p.store.CancelRequested(ctx, jobID) {
		p.markCancelled(ctx, job, log)
		return
	}
	if err := p.store.Start(ctx, jobID); err != nil {
		log.Error("could not claim job", zap.Error(err))
		return
	}
	log.Info("job started", zap.Int("attempt", job.RetryCount))

	audio, err := p.synthesize(ctx, job)
	if err != nil {
		if errors.Is(err, context.Canceled) && p.store.CancelRequested(ctx, jobID) {
			p.markCancelled(ctx, job, log)
			return
		}
		p.handleFailure(ctx, job, err, log)
		return
	}

	tags := map[string]string{"voice": job.Request.VoiceID, "provider": job.Request.Provider}
	if _, err := p.cache.Put(job.Fingerprint, job.Request.Format, audio, tags); err != nil {
		// audio is in hand but cannot be stored; disk trouble is transient
		p.handleFailure(ctx, job, errors.Wrap(domain.ErrServer, err.Error()), log)
		return
	}
	if err := p.store.Complete(ctx, jobID, "cached_"+job.Fingerprint); err != nil {
		log.Error("could not mark job completed", zap.Error(err))
		return
	}
	p.rec.Inc(ctx, metrics.JobsCompleted)
	p.archive(ctx, jobID, log)
	log.Info("job completed", zap.Int("bytes", len(audio)))
}

func (p *Pool) synthesize(ctx context.Context, job *domain.Job) ([]byte, error) {
	res, err := p.provider.Synthesize(ctx, job.Request)
	if err != nil {
		return nil, err
	}
	if res.RemoteID == "" {
		return res.Audio, nil
	}
	if err := p.store.SetProgress(ctx, job.ID, "awaiting provider"); err != nil {
		p.log.Warn("progress update failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	stop := func() bool { return p.store.CancelRequested(ctx, job.ID) }
	return synth.AwaitRemote(ctx, p.provider, res.RemoteID, p.cfg.PollInterval, p.cfg.PollMaxWait, stop)
}

// handleFailure applies the retry policy: transient faults consume retry
// budget and go back through the retry set with exponential backoff;
// everything else, and an exhausted budget, is terminal.
func (p *Pool) handleFailure(ctx context.Context, job *domain.Job, cause error, log *zap.Logger) {
	if domain.IsTransient(cause) && job.RetryCount < p.cfg.MaxRetries {
		attempt := job.RetryCount + 1
		delay := p.cfg.BaseDelay * (1 << uint(attempt))
		due := float64(time.Now().Add(delay).Unix())
		if err := p.store.Requeue(ctx, job.ID, attempt); err != nil {
			log.Error("requeue update failed", zap.Error(err))
			return
		}
		if err := p.b.ZAdd(ctx, queue.Retry, due, job.ID); err != nil {
			log.Error("retry schedule failed", zap.Error(err))
			return
		}
		log.Warn("job retry scheduled",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(cause))
		return
	}

	if domain.IsTransient(cause) {
		// budget exhausted: park for inspection, never auto-drained
		if err := p.b.Push(ctx, queue.DeadLetter, job.ID); err != nil {
			log.Error("dead-letter push failed", zap.Error(err))
		}
	}
	if err := p.store.Fail(ctx, job.ID, cause.Error()); err != nil {
		log.Error("could not mark job failed", zap.Error(err))
	}
	p.rec.Inc(ctx, metrics.JobsFailed)
	p.archive(ctx, job.ID, log)
	log.Error("job failed", zap.Int("retries", job.RetryCount), zap.Error(cause))
}

func (p *Pool) markCancelled(ctx context.Context, job *domain.Job, log *zap.Logger) {
	if err := p.store.MarkCancelled(ctx, job.ID); err != nil {
		log.Error("could not mark job cancelled", zap.Error(err))
		return
	}
	p.archive(ctx, job.ID, log)
	log.Info("job cancelled")
}

// archive ships the terminal record to the audit sink, best effort.
func (p *Pool) archive(ctx context.Context, jobID string, log *zap.Logger) {
	if p.arch == nil {
		return
	}
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		log.Warn("archive skipped, record unreadable", zap.Error(err))
		return
	}
	if err := p.arch.Record(ctx, job); err != nil {
		log.Warn("archive write failed", zap.Error(err))
	}
}
