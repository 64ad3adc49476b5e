package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/voxq/internal/broker"
)

func TestReserveClaimsOnce(t *testing.T) {
	ctx := context.Background()
	idx := New(broker.NewMemory(), time.Minute)

	ok, err := idx.Reserve(ctx, "fp1", "job-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.Reserve(ctx, "fp1", "job-b")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := idx.Lookup(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, "job-a", id)
}

func TestLookupMissing(t *testing.T) {
	idx := New(broker.NewMemory(), time.Minute)
	id, err := idx.Lookup(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestEntryExpires(t *testing.T) {
	ctx := context.Background()
	idx := New(broker.NewMemory(), 10*time.Millisecond)

	ok, err := idx.Reserve(ctx, "fp1", "job-a")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	id, err := idx.Lookup(ctx, "fp1")
	require.NoError(t, err)
	assert.Empty(t, id)

	ok, err = idx.Reserve(ctx, "fp1", "job-b")
	require.NoError(t, err)
	assert.True(t, ok)
}
