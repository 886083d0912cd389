package kv

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offsync/internal/testutil"
)

func TestMemory_SetGetRemove(t *testing.T) {
	clk := testutil.NewFakeClock()
	m := NewMemory(clk)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", json.RawMessage(`{"x":1}`)))
	rec, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(rec.Value))
	assert.Equal(t, testutil.Epoch, rec.WrittenAt)

	require.NoError(t, m.Remove(ctx, "a"))
	_, ok, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", json.RawMessage(`"abc"`)))

	rec, _, _ := m.Get(ctx, "a")
	rec.Value[1] = 'z'

	again, _, _ := m.Get(ctx, "a")
	assert.Equal(t, `"abc"`, string(again.Value))
}

func TestMemory_FailWith(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	boom := errors.New("disk full")

	m.FailWith(boom)
	assert.ErrorIs(t, m.Set(ctx, "a", json.RawMessage(`1`)), boom)
	_, _, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, boom)
	_, err = m.Keys(ctx, "")
	assert.ErrorIs(t, err, boom)

	m.FailWith(nil)
	assert.NoError(t, m.Set(ctx, "a", json.RawMessage(`1`)))
}

func TestMemory_KeysSorted(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	for _, k := range []string{"cache/z", "cache/a", "meta/last_sync"} {
		require.NoError(t, m.Set(ctx, k, json.RawMessage(`0`)))
	}

	keys, err := m.Keys(ctx, "cache/")
	require.NoError(t, err)
	assert.Equal(t, []string{"cache/a", "cache/z"}, keys)
}
