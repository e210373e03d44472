package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonagent/server/internal/agent/model"
)

func TestMemoryHistoryCapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryHistoryRepository(5)

	for i := 0; i < 7; i++ {
		err := r.Append(ctx, "s1", model.HistoryEntry{Prompt: fmt.Sprintf("prompt-%d", i)})
		require.NoError(t, err)
	}

	entries, err := r.Recent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	// oldest first, with the two earliest evicted
	assert.Equal(t, "prompt-2", entries[0].Prompt)
	assert.Equal(t, "prompt-6", entries[4].Prompt)

	n, err := r.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestMemoryHistorySessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryHistoryRepository(5)

	require.NoError(t, r.Append(ctx, "a", model.HistoryEntry{Prompt: "for a"}))
	require.NoError(t, r.Append(ctx, "b", model.HistoryEntry{Prompt: "for b"}))

	entries, err := r.Recent(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "for a", entries[0].Prompt)

	require.NoError(t, r.Clear(ctx, "a"))
	entries, err = r.Recent(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = r.Recent(ctx, "b")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestMemoryHistoryRecentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryHistoryRepository(5)
	require.NoError(t, r.Append(ctx, "s", model.HistoryEntry{Prompt: "original"}))

	entries, err := r.Recent(ctx, "s")
	require.NoError(t, err)
	entries[0].Prompt = "mutated"

	again, err := r.Recent(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Prompt)
}

func TestMemoryHistoryUnknownSession(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryHistoryRepository(0) // default capacity

	entries, err := r.Recent(ctx, "never-seen")
	require.NoError(t, err)
	assert.Empty(t, entries)

	n, err := r.Count(ctx, "never-seen")
	require.NoError(t, err)
	assert.Zero(t, n)
}
