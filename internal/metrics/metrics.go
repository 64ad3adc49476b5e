// Package metrics defines the counter interface the pipeline reports into.
// The scheduler and workers depend on Recorder abstractly; the concrete
// sink is wired at startup.
package metrics

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/you/voxq/internal/broker"
)

// Counter names. The health monitor derives its error rate from these.
const (
	JobsSubmitted = "jobs_submitted"
	JobsCompleted = "jobs_completed"
	JobsFailed    = "jobs_failed"
	CacheHits     = "cache_hits"
	CacheMisses   = "cache_misses"
)

const keyPrefix = "tts:metrics:"

// Recorder is fire-and-forget: implementations must never let a metrics
// failure surface into the operation being measured.
type Recorder interface {
	Inc(ctx context.Context, name string)
}

// BrokerRecorder counts into broker keys so every worker process adds to
// the same totals.
type BrokerRecorder struct {
	b   broker.Broker
	log *zap.Logger
}

func NewBrokerRecorder(b broker.Broker, log *zap.Logger) *BrokerRecorder {
	return &BrokerRecorder{b: b, log: log}
}

func (r *BrokerRecorder) Inc(ctx context.Context, name string) {
	if _, err := r.b.Incr(ctx, keyPrefix+name); err != nil {
		r.log.Debug("metric dropped", zap.String("name", name), zap.Error(err))
	}
}

// Read returns the current value of a counter; missing counters are zero.
func Read(ctx context.Context, b broker.Broker, name string) int64 {
	v, err := b.Get(ctx, keyPrefix+name)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

// Nop discards every count; used in tests.
type Nop struct{}

func (Nop) Inc(context.Context, string) {}
