package promptstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/apperr"
)

func TestResolvePromptsOrderingStable(t *testing.T) {
	store := NewMemory()
	// Deliberately seeded out of order, with mixed run_part and id ties.
	store.Seed(1, 1, 1, []Stage{
		{PromptID: 30, Text: "c", RunPart: 2},
		{PromptID: 10, Text: "a", RunPart: 1},
		{PromptID: 20, Text: "b", RunPart: 1},
		{PromptID: 5, Text: "j", RunPart: 3, IsJSON: true},
	})

	ctx := context.Background()
	first, err := store.ResolvePrompts(ctx, 1, 1, 1)
	require.NoError(t, err)
	second, err := store.ResolvePrompts(ctx, 1, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second, "ResolvePrompts must be deterministic across calls")

	wantIDs := []int64{10, 20, 30, 5}
	gotIDs := make([]int64, len(first))
	for i, s := range first {
		gotIDs[i] = s.PromptID
	}
	assert.Equal(t, wantIDs, gotIDs)
}

func TestResolvePromptsNotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.ResolvePrompts(context.Background(), 1, 2, 3)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidReference, apperr.KindOf(err))
}

func TestResolveNamed(t *testing.T) {
	store := NewMemory()
	store.SeedNamed("classify", "classify this query")

	text, err := store.ResolveNamed(context.Background(), "classify")
	require.NoError(t, err)
	assert.Equal(t, "classify this query", text)

	_, err = store.ResolveNamed(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidReference, apperr.KindOf(err))
}
