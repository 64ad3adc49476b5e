package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/queue"
)

// RetryMover ticks over the retry set and moves due jobs back onto the
// queue their priority originally resolved to, where a pool will pick them
// up again. One mover per deployment is enough; running several is
// harmless because ZPopDue hands each member to exactly one caller.
type RetryMover struct {
	b        broker.Broker
	store    *queue.Store
	interval time.Duration
	batch    int64
	log      *zap.Logger
}

func NewRetryMover(b broker.Broker, store *queue.Store, interval time.Duration, log *zap.Logger) *RetryMover {
	if interval <= 0 {
		interval = time.Second
	}
	return &RetryMover{b: b, store: store, interval: interval, batch: 100, log: log}
}

func (m *RetryMover) Run(ctx context.Context) error {
	tick := time.NewTicker(m.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			m.moveDue(ctx)
		}
	}
}

func (m *RetryMover) moveDue(ctx context.Context) {
	ids, err := m.b.ZPopDue(ctx, queue.Retry, float64(time.Now().Unix()), m.batch)
	if err != nil {
		m.log.Error("retry sweep failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		job, err := m.store.Get(ctx, id)
		if err != nil {
			m.log.Warn("retry entry without record, dropping", zap.String("job_id", id), zap.Error(err))
			continue
		}
		if job.Status.Terminal() {
			// cancelled while waiting out the backoff
			continue
		}
		if err := m.b.Push(ctx, job.Queue, id); err != nil {
			m.log.Error("retry requeue failed", zap.String("job_id", id), zap.Error(err))
			continue
		}
		m.log.Info("retry due, requeued",
			zap.String("job_id", id),
			zap.String("queue", job.Queue),
			zap.Int("attempt", job.RetryCount))
	}
}
