package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/you/voxq/internal/broker"
)

// Limiter is a per-submitter, per-minute admission counter. Each minute
// gets its own key whose first increment sets a 60s expiry, so windows
// clean themselves up. The limiter fails open: if the broker cannot count,
// the request is admitted - this guard is not worth an outage.
type Limiter struct {
	b         broker.Broker
	perMinute int64
	log       *zap.Logger
	now       func() time.Time
}

func New(b broker.Broker, perMinute int, log *zap.Logger) *Limiter {
	return &Limiter{b: b, perMinute: int64(perMinute), log: log, now: time.Now}
}

// Allow reports whether subject may submit right now.
func (l *Limiter) Allow(ctx context.Context, subject string) bool {
	if l.perMinute <= 0 {
		return true
	}
	key := bucketKey(subject, l.now())
	n, err := l.b.Incr(ctx, key)
	if err != nil {
		l.log.Warn("rate limiter failing open", zap.Error(err))
		return true
	}
	if n == 1 {
		if err := l.b.Expire(ctx, key, time.Minute); err != nil {
			l.log.Warn("rate window expiry not set", zap.String("key", key), zap.Error(err))
		}
	}
	return n <= l.perMinute
}

// bucketKey hashes the caller-supplied subject so arbitrary-length ids
// become fixed-width broker keys.
func bucketKey(subject string, now time.Time) string {
	return fmt.Sprintf("tts:rate:%x:%d", xxhash.Sum64String(subject), now.Unix()/60)
}
