package health

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/voxq/internal/broker"
	"github.com/you/voxq/internal/queue"
)

func newTestMonitor() (*Monitor, *broker.Memory) {
	b := broker.NewMemory()
	router := queue.NewRouter(b, queue.NewStore(b))
	return NewMonitor(b, router, 0.10, 100, zap.NewNop()), b
}

func registerWorker(t *testing.T, b *broker.Memory) {
	t.Helper()
	require.NoError(t, b.Set(context.Background(), queue.HeartbeatPrefix+"w1", "now", time.Minute))
}

func setCounter(t *testing.T, b *broker.Memory, name string, n int64) {
	t.Helper()
	require.NoError(t, b.Set(context.Background(), "tts:metrics:"+name, strconv.FormatInt(n, 10), 0))
}

func TestHealthyWhenAllChecksPass(t *testing.T) {
	m, b := newTestMonitor()
	registerWorker(t, b)

	snap := m.Health(context.Background())
	assert.Equal(t, StatusHealthy, snap.Status)
	for name, c := range snap.Checks {
		assert.True(t, c.OK, "check %s: %s", name, c.Detail)
	}
}

func TestDegradedWithoutWorkers(t *testing.T) {
	m, _ := newTestMonitor()
	snap := m.Health(context.Background())
	assert.Equal(t, StatusDegraded, snap.Status)
	assert.False(t, snap.Checks["workers"].OK)
}

func TestDegradedWhenBacklogOverCeiling(t *testing.T) {
	ctx := context.Background()
	m, b := newTestMonitor()
	registerWorker(t, b)

	for i := 0; i < 101; i++ {
		require.NoError(t, b.Push(ctx, queue.Standard, strconv.Itoa(i)))
	}
	snap := m.Health(ctx)
	assert.Equal(t, StatusDegraded, snap.Status)
	assert.False(t, snap.Checks["backlog"].OK)
}

func TestDegradedWhenErrorRateOverCeiling(t *testing.T) {
	m, b := newTestMonitor()
	registerWorker(t, b)
	setCounter(t, b, "jobs_failed", 3)
	setCounter(t, b, "jobs_completed", 7)

	snap := m.Health(context.Background())
	assert.Equal(t, StatusDegraded, snap.Status)
	assert.False(t, snap.Checks["error_rate"].OK)
}

func TestErrorRateBelowCeilingPasses(t *testing.T) {
	m, b := newTestMonitor()
	registerWorker(t, b)
	setCounter(t, b, "jobs_failed", 1)
	setCounter(t, b, "jobs_completed", 99)

	snap := m.Health(context.Background())
	assert.Equal(t, StatusHealthy, snap.Status)
	assert.True(t, snap.Checks["error_rate"].OK)
}

func TestDeadLetterNotCountedAsBacklog(t *testing.T) {
	ctx := context.Background()
	m, b := newTestMonitor()
	registerWorker(t, b)

	for i := 0; i < 200; i++ {
		require.NoError(t, b.Push(ctx, queue.DeadLetter, strconv.Itoa(i)))
	}
	snap := m.Health(ctx)
	assert.Equal(t, StatusHealthy, snap.Status)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m, b := newTestMonitor()
	setCounter(t, b, "jobs_submitted", 10)
	setCounter(t, b, "jobs_completed", 6)
	setCounter(t, b, "jobs_failed", 1)
	require.NoError(t, b.Push(ctx, queue.High, "j1"))

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Jobs["submitted"])
	assert.Equal(t, int64(6), stats.Jobs["completed"])
	assert.Equal(t, int64(1), stats.Jobs["failed"])
	assert.Equal(t, int64(1), stats.Jobs["queued"])
	assert.Equal(t, int64(1), stats.Queues[queue.High])
}
