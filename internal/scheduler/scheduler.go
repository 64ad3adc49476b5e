// Package scheduler is the public face of the synthesis pipeline: submit,
// status, cancel, stats, health. Everything below it is wired in through
// the constructor so the process entry point owns every lifetime.
package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/voxq/internal/cache"
	"github.com/you/voxq/internal/dedup"
	"github.com/you/voxq/internal/domain"
	"github.com/you/voxq/internal/health"
	"github.com/you/voxq/internal/metrics"
	"github.com/you/voxq/internal/queue"
	"github.com/you/voxq/internal/ratelimit"
)

// cachedPrefix marks synthetic handles that point straight at the cache
// instead of a live job.
const cachedPrefix = "cached_"

// ErrThrottled rejects a submitter that blew through its per-minute
// budget.
var ErrThrottled = errors.New("rate limit exceeded")

// Handle is what Submit returns. Cached handles are already complete and
// never had a job behind them.
type Handle struct {
	ID     string        `json:"id"`
	Cached bool          `json:"cached"`
	Status domain.Status `json:"status"`
}

// View is the polling payload for a handle.
type View struct {
	Status   domain.Status `json:"status"`
	Progress string        `json:"progress,omitempty"`
	Position int           `json:"position,omitempty"`
	Result   string        `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Cached   bool          `json:"cached,omitempty"`
}

type Scheduler struct {
	cache   *cache.Cache
	dedup   *dedup.Index
	limiter *ratelimit.Limiter
	router  *queue.Router
	store   *queue.Store
	monitor *health.Monitor
	rec     metrics.Recorder
	log     *zap.Logger
}

func New(c *cache.Cache, d *dedup.Index, l *ratelimit.Limiter, r *queue.Router, s *queue.Store, m *health.Monitor, rec metrics.Recorder, log *zap.Logger) *Scheduler {
	return &Scheduler{cache: c, dedup: d, limiter: l, router: r, store: s, monitor: m, rec: rec, log: log}
}

// Submit runs the admission pipeline: validate, cache lookup, duplicate
// collapse, rate gate, enqueue. It returns immediately; the caller polls
// Status with the returned handle.
func (s *Scheduler) Submit(ctx context.Context, req domain.Request) (Handle, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return Handle{}, err
	}

	fp := domain.Fingerprint(req)

	if s.cache.Has(fp, req.Format) {
		s.rec.Inc(ctx, metrics.CacheHits)
		s.log.Debug("cache hit", zap.String("fingerprint", fp))
		return Handle{ID: cachedPrefix + fp, Cached: true, Status: domain.StatusCompleted}, nil
	}
	s.rec.Inc(ctx, metrics.CacheMisses)

	// a duplicate of in-flight work rides along for free, before the
	// rate gate so it cannot burn the submitter's budget
	if existing, err := s.dedup.Lookup(ctx, fp); err == nil && existing != "" {
		s.log.Debug("duplicate collapsed", zap.String("fingerprint", fp), zap.String("job_id", existing))
		return Handle{ID: existing, Status: domain.StatusQueued}, nil
	}

	if !s.limiter.Allow(ctx, req.SubmitterID) {
		return Handle{}, errors.Wrap(ErrThrottled, req.SubmitterID)
	}

	jobID := uuid.NewString()
	claimed, err := s.dedup.Reserve(ctx, fp, jobID)
	if err != nil {
		return Handle{}, err
	}
	if !claimed {
		// lost the reserve race to a concurrent identical submission
		existing, err := s.dedup.Lookup(ctx, fp)
		if err == nil && existing != "" {
			return Handle{ID: existing, Status: domain.StatusQueued}, nil
		}
	}

	job := &domain.Job{
		ID:          jobID,
		Priority:    domain.Priority(req.Priority),
		Request:     req,
		Fingerprint: fp,
		Progress:    "waiting",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.router.Enqueue(ctx, job); err != nil {
		return Handle{}, errors.Wrap(err, "submit")
	}
	s.rec.Inc(ctx, metrics.JobsSubmitted)
	s.log.Info("job submitted",
		zap.String("job_id", jobID),
		zap.String("queue", job.Queue),
		zap.String("fingerprint", fp))
	return Handle{ID: jobID, Status: domain.StatusQueued}, nil
}

// Status resolves either kind of handle. Cached handles are terminally
// complete by construction.
func (s *Scheduler) Status(ctx context.Context, handle string) (View, error) {
	if strings.HasPrefix(handle, cachedPrefix) {
		return View{Status: domain.StatusCompleted, Result: handle, Cached: true}, nil
	}
	job, err := s.store.Get(ctx, handle)
	if err != nil {
		return View{}, err
	}
	v := View{
		Status:   job.Status,
		Progress: job.Progress,
		Result:   job.Result,
		Error:    job.Error,
	}
	if job.Status == domain.StatusQueued {
		if pos, err := s.router.Position(ctx, job.Queue, job.ID); err == nil {
			v.Position = pos
		}
	}
	return v, nil
}

// Cancel stops a job that has not finished. A queued job is pulled out of
// its queue; a running one gets the cooperative flag and its worker backs
// out at the next safe point. Finished, unknown and cached handles report
// false.
func (s *Scheduler) Cancel(ctx context.Context, handle string) bool {
	if strings.HasPrefix(handle, cachedPrefix) {
		return false
	}
	job, err := s.store.Get(ctx, handle)
	if err != nil || job.Status.Terminal() {
		return false
	}

	switch job.Status {
	case domain.StatusQueued:
		removed, err := s.router.Remove(ctx, job.Queue, job.ID)
		if err != nil || !removed {
			// a worker grabbed it between Get and Remove; flag it so the
			// worker abandons the job before synthesis starts
			if err := s.store.RequestCancel(ctx, job.ID); err != nil {
				s.log.Warn("cancel flag write failed", zap.String("job_id", job.ID), zap.Error(err))
			}
			return false
		}
		if err := s.store.MarkCancelled(ctx, job.ID); err != nil {
			s.log.Warn("cancel mark failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		s.log.Info("queued job cancelled", zap.String("job_id", job.ID))
		return true
	case domain.StatusInProgress:
		if err := s.store.RequestCancel(ctx, job.ID); err != nil {
			s.log.Warn("cancel flag write failed", zap.String("job_id", job.ID), zap.Error(err))
			return false
		}
		s.log.Info("cancel requested", zap.String("job_id", job.ID))
		return true
	}
	return false
}

func (s *Scheduler) QueueStats(ctx context.Context) (health.QueueStats, error) {
	return s.monitor.Stats(ctx)
}

func (s *Scheduler) Health(ctx context.Context) health.Snapshot {
	return s.monitor.Health(ctx)
}

func (s *Scheduler) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// CacheCleanup evicts entries older than maxAgeDays.
func (s *Scheduler) CacheCleanup(maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		return 0, domain.WrapInvalid(errors.New("max_age_days must be positive"))
	}
	return s.cache.EvictExpired(time.Duration(maxAgeDays) * 24 * time.Hour)
}

// CacheClear wipes the cache; confirm must be true.
func (s *Scheduler) CacheClear(confirm bool) (int, error) {
	if !confirm {
		return 0, domain.WrapInvalid(errors.New("confirmation flag required"))
	}
	return s.cache.Clear(true)
}
