package dedup

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/you/voxq/internal/broker"
)

const keyPrefix = "tts:dedup:"

// DefaultTTL bounds the duplicate-collapsing window. Entries are never
// released explicitly; they lapse on their own, which also covers worker
// crashes. A job running longer than the TTL can therefore pick up a
// duplicate - size the TTL to worst-case synthesis time if that matters.
const DefaultTTL = time.Hour

// Index maps a request fingerprint to the in-flight job that owns it.
type Index struct {
	b   broker.Broker
	ttl time.Duration
}

func New(b broker.Broker, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{b: b, ttl: ttl}
}

// Reserve claims the fingerprint for jobID. It returns true when jobID is
// now the canonical in-flight job, false when another job already holds the
// claim (reuse that one instead).
func (i *Index) Reserve(ctx context.Context, fingerprint, jobID string) (bool, error) {
	ok, err := i.b.SetNX(ctx, keyPrefix+fingerprint, jobID, i.ttl)
	if err != nil {
		return false, errors.Wrap(err, "dedup reserve")
	}
	return ok, nil
}

// Lookup returns the job id currently holding the fingerprint, or "" when
// no claim exists.
func (i *Index) Lookup(ctx context.Context, fingerprint string) (string, error) {
	v, err := i.b.Get(ctx, keyPrefix+fingerprint)
	if errors.Is(err, broker.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "dedup lookup")
	}
	return v, nil
}
