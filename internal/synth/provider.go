// Package synth abstracts the text-to-speech backend. The broker does not
// care which engine sits behind it, only that rate-limit and server faults
// are distinguishable from permanent rejections, because only the former
// consume retry budget.
package synth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/you/voxq/internal/domain"
)

// Result is what one synthesis call yields. Synchronous providers fill
// Audio directly; asynchronous ones return a RemoteID the caller polls and
// then downloads.
type Result struct {
	Audio    []byte
	RemoteID string
}

type Provider interface {
	// Synthesize starts (or completes) synthesis for the request. Errors
	// must wrap one of domain.ErrRateLimited, domain.ErrServer or
	// domain.ErrPermanent so the worker can classify them.
	Synthesize(ctx context.Context, req domain.Request) (*Result, error)

	// Poll reports whether the remote job has finished. A terminal remote
	// failure is returned as a classified error.
	Poll(ctx context.Context, remoteID string) (bool, error)

	// Download fetches the finished audio.
	Download(ctx context.Context, remoteID string) ([]byte, error)
}

// ErrPollTimeout marks a remote job that outlived the wait budget. It is
// transient from the pipeline's point of view.
var ErrPollTimeout = errors.Wrap(domain.ErrServer, "remote synthesis timed out")

// AwaitRemote polls a remote job to completion and downloads the audio.
// Between polls it consults stop, the worker's cooperative cancel hook, and
// bails with context.Canceled when it trips. The wait is bounded: maxWait
// exhaustion is reported as a transient error so the job can retry.
func AwaitRemote(ctx context.Context, p Provider, remoteID string, interval, maxWait time.Duration, stop func() bool) ([]byte, error) {
	deadline := time.Now().Add(maxWait)
	for {
		if stop != nil && stop() {
			return nil, context.Canceled
		}
		done, err := p.Poll(ctx, remoteID)
		if err != nil {
			return nil, err
		}
		if done {
			return p.Download(ctx, remoteID)
		}
		if time.Now().After(deadline) {
			return nil, ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
