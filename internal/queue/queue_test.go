package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/domain"
)

func newTestRouter() (*Router, *Store, broker.Broker) {
	b := broker.NewMemory()
	s := NewStore(b)
	return NewRouter(b, s), s, b
}

func testJob(id string, p domain.Priority) *domain.Job {
	return &domain.Job{
		ID:       id,
		Priority: p,
		Request: domain.Request{
			Text: "hello " + id, VoiceID: "v1", Format: "mp3", Speed: 1,
		},
		Fingerprint: "fp-" + id,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, High, Resolve(domain.PriorityHigh))
	assert.Equal(t, Batch, Resolve(domain.PriorityBatch))
	assert.Equal(t, Standard, Resolve(domain.PriorityStandard))
	assert.Equal(t, Standard, Resolve(domain.Priority("bogus")))
}

func TestEnqueueCreatesRecordAndPushes(t *testing.T) {
	ctx := context.Background()
	r, s, b := newTestRouter()

	j := testJob("j1", domain.PriorityHigh)
	require.NoError(t, r.Enqueue(ctx, j))
	assert.Equal(t, High, j.Queue)

	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, "fp-j1", got.Fingerprint)
	assert.Equal(t, "hello j1", got.Request.Text)

	n, err := b.Len(ctx, High)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPriorityDrainOrder(t *testing.T) {
	ctx := context.Background()
	r, _, b := newTestRouter()

	require.NoError(t, r.Enqueue(ctx, testJob("std", domain.PriorityStandard)))
	require.NoError(t, r.Enqueue(ctx, testJob("hi", domain.PriorityHigh)))

	// a pool bound to [high, standard] must always see high first
	q, id, err := b.BlockPop(ctx, 50*time.Millisecond, High, Standard)
	require.NoError(t, err)
	assert.Equal(t, High, q)
	assert.Equal(t, "hi", id)

	q, id, err = b.BlockPop(ctx, 50*time.Millisecond, High, Standard)
	require.NoError(t, err)
	assert.Equal(t, Standard, q)
	assert.Equal(t, "std", id)
}

func TestPosition(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRouter()

	require.NoError(t, r.Enqueue(ctx, testJob("first", domain.PriorityStandard)))
	require.NoError(t, r.Enqueue(ctx, testJob("second", domain.PriorityStandard)))

	pos, err := r.Position(ctx, Standard, "first")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = r.Position(ctx, Standard, "second")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	pos, err = r.Position(ctx, Standard, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r, _, b := newTestRouter()

	require.NoError(t, r.Enqueue(ctx, testJob("j1", domain.PriorityBatch)))
	removed, err := r.Remove(ctx, Batch, "j1")
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := b.Len(ctx, Batch)
	require.NoError(t, err)
	assert.Zero(t, n)

	removed, err = r.Remove(ctx, Batch, "j1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDepths(t *testing.T) {
	ctx := context.Background()
	r, _, b := newTestRouter()

	require.NoError(t, r.Enqueue(ctx, testJob("a", domain.PriorityHigh)))
	require.NoError(t, r.Enqueue(ctx, testJob("b", domain.PriorityBatch)))
	require.NoError(t, b.ZAdd(ctx, Retry, 123, "c"))

	depths, err := r.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths[High])
	assert.Equal(t, int64(0), depths[Standard])
	assert.Equal(t, int64(1), depths[Batch])
	assert.Equal(t, int64(1), depths[Retry])
	assert.Equal(t, int64(0), depths[DeadLetter])
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	_, s, _ := newTestRouter()

	j := testJob("j1", domain.PriorityStandard)
	j.Status = domain.StatusQueued
	require.NoError(t, s.Create(ctx, j))

	require.NoError(t, s.Start(ctx, "j1"))
	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, s.Complete(ctx, "j1", "cached_fp-j1"))
	got, err = s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "cached_fp-j1", got.Result)
	require.NotNil(t, got.EndedAt)
}

func TestStoreRequeueTracksRetries(t *testing.T) {
	ctx := context.Background()
	_, s, _ := newTestRouter()

	j := testJob("j1", domain.PriorityStandard)
	require.NoError(t, s.Create(ctx, j))
	require.NoError(t, s.Requeue(ctx, "j1", 2))

	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, 2, got.RetryCount)
}

func TestStoreCancelFlag(t *testing.T) {
	ctx := context.Background()
	_, s, _ := newTestRouter()

	j := testJob("j1", domain.PriorityStandard)
	require.NoError(t, s.Create(ctx, j))

	assert.False(t, s.CancelRequested(ctx, "j1"))
	require.NoError(t, s.RequestCancel(ctx, "j1"))
	assert.True(t, s.CancelRequested(ctx, "j1"))
}

func TestStoreGetMissing(t *testing.T) {
	_, s, _ := newTestRouter()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
