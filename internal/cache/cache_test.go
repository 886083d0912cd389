package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offsync/internal/kv"
	"github.com/roach88/offsync/internal/testutil"
)

func newTestCache(t *testing.T) (*Cache, *kv.Memory, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock()
	store := kv.NewMemory(clk)
	return New(store, clk), store, clk
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{"plain", "/products", "/products"},
		{"trailing slash", "/products/", "/products"},
		{"root", "/", "/"},
		{"empty", "", "/"},
		{"missing leading slash", "products", "/products"},
		{"sorted query", "/products?b=2&a=1", "/products?a=1&b=2"},
		{"trailing slash with query", "/products/?page=2", "/products?page=2"},
		{"repeated params sorted", "/sales?tag=z&tag=a", "/sales?tag=a&tag=z"},
		{"nfc normalised", "/categories/cafe\u0301", "/categories/caf\u00e9"},
		{"whitespace", "  /orders ", "/orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Signature(tt.endpoint))
		})
	}
}

func TestReadAbsent(t *testing.T) {
	c, _, _ := newTestCache(t)

	_, ok := c.Read(context.Background(), "/products")
	assert.False(t, ok)
}

func TestWriteRead(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Write(ctx, "/products", json.RawMessage(`[1,2]`))

	e, ok := c.Read(ctx, "/products")
	require.True(t, ok)
	assert.Equal(t, "/products", e.Key)
	assert.JSONEq(t, `[1,2]`, string(e.Value))
	assert.Equal(t, testutil.Epoch, e.WrittenAt)
}

func TestWriteTwiceKeepsOnlySecond(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Write(ctx, "/orders", json.RawMessage(`"first"`))
	c.Write(ctx, "/orders", json.RawMessage(`"second"`))

	e, ok := c.Read(ctx, "/orders")
	require.True(t, ok)
	assert.Equal(t, `"second"`, string(e.Value))
}

func TestAgeMinutes(t *testing.T) {
	c, _, clk := newTestCache(t)
	ctx := context.Background()

	_, ok := c.AgeMinutes(ctx, "/products")
	assert.False(t, ok, "never written has no age")

	c.Write(ctx, "/products", json.RawMessage(`[]`))
	age, ok := c.AgeMinutes(ctx, "/products")
	require.True(t, ok)
	assert.Equal(t, 0, age)

	clk.Advance(7*time.Minute + 59*time.Second)
	age, _ = c.AgeMinutes(ctx, "/products")
	assert.Equal(t, 7, age, "whole minutes, truncated")
}

func TestIsStale(t *testing.T) {
	c, _, clk := newTestCache(t)
	ctx := context.Background()

	assert.True(t, c.IsStale(ctx, "/products", 60), "never fetched is stale")

	c.Write(ctx, "/products", json.RawMessage(`[]`))
	for _, m := range []int{0, 1, 30} {
		assert.False(t, c.IsStale(ctx, "/products", m), "fresh write is not stale for maxAge=%d", m)
	}

	clk.Advance(30 * time.Minute)
	assert.False(t, c.IsStale(ctx, "/products", 30), "age == maxAge is not stale")

	clk.Advance(time.Minute)
	assert.True(t, c.IsStale(ctx, "/products", 30))
}

func TestStorageFailureIsBestEffort(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()

	c.Write(ctx, "/products", json.RawMessage(`"ok"`))
	store.FailWith(errors.New("io error"))

	c.Write(ctx, "/products", json.RawMessage(`"lost"`))
	_, ok := c.Read(ctx, "/products")
	assert.False(t, ok, "unreadable store reads as a miss")
	assert.True(t, c.IsStale(ctx, "/products", 60))
	assert.Empty(t, c.Keys(ctx))

	store.FailWith(nil)
	e, ok := c.Read(ctx, "/products")
	require.True(t, ok)
	assert.Equal(t, `"ok"`, string(e.Value), "failed write leaves previous entry")
}

func TestKeys(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()

	c.Write(ctx, "/products", json.RawMessage(`[]`))
	c.Write(ctx, "/customers", json.RawMessage(`[]`))
	require.NoError(t, store.Set(ctx, "outbox/queue", json.RawMessage(`[]`)))

	assert.Equal(t, []string{"/customers", "/products"}, c.Keys(ctx))
}
