package kv

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offsync/internal/testutil"
)

type item struct {
	ID string `json:"id"`
	N  int    `json:"n"`
}

func TestLoadList_AbsentIsEmpty(t *testing.T) {
	m := NewMemory(testutil.NewFakeClock())

	got, err := LoadList[item](context.Background(), m, "outbox/queue")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSaveList_RoundTrip(t *testing.T) {
	m := NewMemory(testutil.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, SaveList(ctx, m, "list", []item{{ID: "a", N: 1}, {ID: "b", N: 2}}))

	got, err := LoadList[item](ctx, m, "list")
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "a", N: 1}, {ID: "b", N: 2}}, got)
}

func TestSaveList_NilStoresEmptyArray(t *testing.T) {
	m := NewMemory(testutil.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, SaveList[item](ctx, m, "list", nil))

	rec, ok, err := m.Get(ctx, "list")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(rec.Value))
}

func TestLoadList_WrongShape(t *testing.T) {
	m := NewMemory(testutil.NewFakeClock())
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "list", json.RawMessage(`{"id":"a"}`)))

	got, err := LoadList[item](ctx, m, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode list")
	assert.Empty(t, got)
}
