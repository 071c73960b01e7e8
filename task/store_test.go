package task

import (
	"context"
	"testing"
	"time"

	"github.com/syssam/dsr/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "r1:a", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "r1:b", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "r2:a", []byte("c"), 0))

	v, err := c.Get(ctx, "r1:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v)

	now = now.Add(time.Minute)
	v, err = c.Get(ctx, "r1:b")
	require.NoError(t, err)
	assert.Nil(t, v, "expired")
	v, err = c.Get(ctx, "r1:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	require.NoError(t, c.Delete(ctx, "r2:a"))
	assert.Equal(t, 2, c.Len())
	require.NoError(t, c.DeletePrefix(ctx, "r1:"))
	assert.Zero(t, c.Len())
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryCache(), 0)
	addr := graph.CollectionAddress{Dataset: "postgres_example", Collection: "customer"}
	rows := []graph.Row{
		{"id": int64(1), "email": "customer-1@example.com", "tags": []any{"a", "b"}},
		{"id": int64(2), "address": map[string]any{"city": "Paris", "zip": nil}, "active": true, "score": 1.5},
	}
	require.NoError(t, s.Put(ctx, "pr_1", addr, rows))

	got, ok, err := s.Rows(ctx, "pr_1", addr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows, got)

	_, ok, err = s.Rows(ctx, "pr_2", addr)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "pr_1", addr, nil))
	got, ok, err = s.Rows(ctx, "pr_1", addr)
	require.NoError(t, err)
	assert.True(t, ok, "an empty result is still a result")
	assert.Empty(t, got)

	assert.Equal(t, "pr_1:postgres_example:customer", Key("pr_1", addr))
	require.NoError(t, s.Clear(ctx, "pr_1"))
	_, ok, err = s.Rows(ctx, "pr_1", addr)
	require.NoError(t, err)
	assert.False(t, ok)
}
