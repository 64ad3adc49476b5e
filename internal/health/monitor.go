package health

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/metrics"
	"github.com/you/voxq/internal/queue"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	// DefaultErrorRateCeiling fails the error-rate check when more than
	// this share of observed jobs ended in failure.
	DefaultErrorRateCeiling = 0.10
	// DefaultDepthCeiling fails the backlog check when the named queues
	// hold more than this many jobs in total.
	DefaultDepthCeiling = 100
)

type Check struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type Snapshot struct {
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks"`
}

type QueueStats struct {
	Queues map[string]int64 `json:"queues"`
	Jobs   map[string]int64 `json:"jobs"`
}

// Monitor folds broker reachability, queue depth, worker liveness and the
// failure rate into one verdict. It reads only shared broker state, so any
// process can host it.
type Monitor struct {
	b           broker.Broker
	router      *queue.Router
	rateCeiling float64
	depthLimit  int64
	log         *zap.Logger
}

func NewMonitor(b broker.Broker, router *queue.Router, rateCeiling float64, depthLimit int64, log *zap.Logger) *Monitor {
	if rateCeiling <= 0 {
		rateCeiling = DefaultErrorRateCeiling
	}
	if depthLimit <= 0 {
		depthLimit = DefaultDepthCeiling
	}
	return &Monitor{b: b, router: router, rateCeiling: rateCeiling, depthLimit: depthLimit, log: log}
}

// Health runs every check; the verdict is degraded the moment any one
// fails. Check errors are aggregated and logged, never returned: a health
// endpoint that errors out defeats its purpose.
func (m *Monitor) Health(ctx context.Context) Snapshot {
	checks := make(map[string]Check)
	var errs error

	if err := m.b.Ping(ctx); err != nil {
		checks["broker"] = Check{Detail: err.Error()}
		errs = multierr.Append(errs, err)
	} else {
		checks["broker"] = Check{OK: true}
	}

	depths, err := m.router.Depths(ctx)
	if err != nil {
		checks["queues"] = Check{Detail: err.Error()}
		errs = multierr.Append(errs, err)
	} else {
		checks["queues"] = Check{OK: true}

		var backlog int64
		for _, q := range queue.Named {
			if q == queue.DeadLetter {
				continue
			}
			backlog += depths[q]
		}
		backlog += depths[queue.Retry]
		if backlog > m.depthLimit {
			checks["backlog"] = Check{Detail: fmt.Sprintf("%d queued, ceiling %d", backlog, m.depthLimit)}
			errs = multierr.Append(errs, fmt.Errorf("backlog %d over ceiling", backlog))
		} else {
			checks["backlog"] = Check{OK: true, Detail: fmt.Sprintf("%d queued", backlog)}
		}

		checks["error_rate"] = m.errorRateCheck(ctx, backlog, &errs)
	}

	alive, err := m.b.Keys(ctx, queue.HeartbeatPrefix+"*")
	switch {
	case err != nil:
		checks["workers"] = Check{Detail: err.Error()}
		errs = multierr.Append(errs, err)
	case len(alive) == 0:
		checks["workers"] = Check{Detail: "no live workers"}
		errs = multierr.Append(errs, fmt.Errorf("no live workers"))
	default:
		checks["workers"] = Check{OK: true, Detail: fmt.Sprintf("%d alive", len(alive))}
	}

	status := StatusHealthy
	if errs != nil {
		status = StatusDegraded
		m.log.Warn("health degraded", zap.Error(errs))
	}
	return Snapshot{Status: status, Checks: checks}
}

func (m *Monitor) errorRateCheck(ctx context.Context, backlog int64, errs *error) Check {
	failed := metrics.Read(ctx, m.b, metrics.JobsFailed)
	completed := metrics.Read(ctx, m.b, metrics.JobsCompleted)
	observed := failed + completed + backlog
	if observed == 0 {
		return Check{OK: true, Detail: "no jobs observed"}
	}
	rate := float64(failed) / float64(observed)
	detail := fmt.Sprintf("%.1f%% of %d jobs", rate*100, observed)
	if rate >= m.rateCeiling {
		*errs = multierr.Append(*errs, fmt.Errorf("error rate %.2f over ceiling %.2f", rate, m.rateCeiling))
		return Check{Detail: detail}
	}
	return Check{OK: true, Detail: detail}
}

// Stats reports per-queue depths and aggregate job counters.
func (m *Monitor) Stats(ctx context.Context) (QueueStats, error) {
	depths, err := m.router.Depths(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	var queued int64
	for _, q := range queue.Named {
		if q != queue.DeadLetter {
			queued += depths[q]
		}
	}
	return QueueStats{
		Queues: depths,
		Jobs: map[string]int64{
			"submitted": metrics.Read(ctx, m.b, metrics.JobsSubmitted),
			"completed": metrics.Read(ctx, m.b, metrics.JobsCompleted),
			"failed":    metrics.Read(ctx, m.b, metrics.JobsFailed),
			"queued":    queued,
		},
	}, nil
}
