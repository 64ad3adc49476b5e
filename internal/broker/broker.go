package broker

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned for missing keys and for blocking pops that time
// out. Callers treat it as "no value", not as a broker failure.
var ErrNotFound = errors.New("broker: not found")

// Broker is the minimal set of atomic primitives the scheduler needs from a
// shared store: FIFO lists, set-if-absent with TTL, increment-with-expiry,
// hashes and a due-time sorted set. Workers run as separate processes, so
// every cross-worker handshake goes through these calls and never through
// in-process locks. Memory (tests, dev) and Redis (production) both satisfy
// it.
type Broker interface {
	Ping(ctx context.Context) error

	// Lists. Push appends at the tail; BlockPop pops from the head of the
	// first non-empty queue, honoring the given order, and returns
	// ErrNotFound after timeout.
	Push(ctx context.Context, queue, val string) error
	BlockPop(ctx context.Context, timeout time.Duration, queues ...string) (queue, val string, err error)
	Len(ctx context.Context, queue string) (int64, error)
	Remove(ctx context.Context, queue, val string) (int64, error)
	List(ctx context.Context, queue string) ([]string, error)

	// Plain keys. ttl zero means no expiry.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Hashes.
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Due-time sorted set, used for delayed retries.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZPopDue(ctx context.Context, key string, max float64, limit int64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
}
