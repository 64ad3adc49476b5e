package queue

import (
	"context"

	"github.com/pkg/errors"

	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/domain"
)

// Router places jobs on their priority queue and answers queue-shape
// questions (depths, drain position).
type Router struct {
	b     broker.Broker
	store *Store
}

func NewRouter(b broker.Broker, store *Store) *Router {
	return &Router{b: b, store: store}
}

// Enqueue creates the job record and pushes the job id onto the queue its
// priority resolves to. Within a queue order is FIFO.
func (r *Router) Enqueue(ctx context.Context, j *domain.Job) error {
	j.Queue = Resolve(j.Priority)
	j.Status = domain.StatusQueued
	if err := r.store.Create(ctx, j); err != nil {
		return err
	}
	return errors.Wrap(r.b.Push(ctx, j.Queue, j.ID), "enqueue")
}

// Remove pulls a queued job id out of its queue, for cancellation before a
// worker picks it up. Returns true if the id was present.
func (r *Router) Remove(ctx context.Context, queueName, id string) (bool, error) {
	n, err := r.b.Remove(ctx, queueName, id)
	return n > 0, err
}

// Position estimates how many pops until the given queued job runs: 1 means
// next. Zero means the job is no longer in the queue.
func (r *Router) Position(ctx context.Context, queueName, id string) (int, error) {
	ids, err := r.b.List(ctx, queueName)
	if err != nil {
		return 0, err
	}
	// list is push-ordered newest first; pops take the other end
	for i, v := range ids {
		if v == id {
			return len(ids) - i, nil
		}
	}
	return 0, nil
}

// Depths returns the current length of every named queue plus the retry
// set.
func (r *Router) Depths(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(Named)+1)
	for _, q := range Named {
		n, err := r.b.Len(ctx, q)
		if err != nil {
			return nil, errors.Wrapf(err, "count %s", q)
		}
		out[q] = n
	}
	n, err := r.b.ZCard(ctx, Retry)
	if err != nil {
		return nil, errors.Wrap(err, "count retry")
	}
	out[Retry] = n
	return out, nil
}
