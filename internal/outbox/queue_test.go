package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offsync/internal/kv"
	"github.com/roach88/offsync/internal/route"
	"github.com/roach88/offsync/internal/testutil"
)

type fixture struct {
	clock *testutil.FakeClock
	store *kv.Memory
	queue *Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := testutil.NewFakeClock()
	store := kv.NewMemory(clk)
	return &fixture{
		clock: clk,
		store: store,
		queue: New(context.Background(), store, WithClock(clk), WithIDGenerator(testutil.NewSequenceIDs("act"))),
	}
}

func productCreate(name string) SyncActionInput {
	return SyncActionInput{
		Type:    route.ActionCreate,
		Entity:  route.EntityProduct,
		Payload: json.RawMessage(`{"name":"` + name + `"}`),
	}
}

func TestEnqueue_AssignsIdentityAndStamp(t *testing.T) {
	f := newFixture(t)

	a, err := f.queue.Enqueue(context.Background(), productCreate("A"))
	require.NoError(t, err)

	assert.Equal(t, "act-1", a.ID)
	assert.Equal(t, route.ActionCreate, a.Type)
	assert.Equal(t, route.EntityProduct, a.Entity)
	assert.Equal(t, 0, a.Retries)
	assert.Empty(t, a.LastError)
	assert.True(t, a.EnqueuedAt.Equal(testutil.Epoch))
	assert.Equal(t, 1, f.queue.PendingCount())
}

func TestEnqueue_PreservesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, err := f.queue.Enqueue(ctx, productCreate(name))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	got := f.queue.PeekAll()
	require.Len(t, got, 3)
	assert.Equal(t, "act-1", got[0].ID)
	assert.Equal(t, "act-2", got[1].ID)
	assert.Equal(t, "act-3", got[2].ID)
	assert.True(t, got[0].EnqueuedAt.Before(got[2].EnqueuedAt))
}

func TestEnqueue_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   SyncActionInput
	}{
		{"missing type", SyncActionInput{Entity: route.EntityProduct}},
		{"unknown type", SyncActionInput{Type: "upsert", Entity: route.EntityProduct}},
		{"unknown entity", SyncActionInput{Type: route.ActionCreate, Entity: "widget"}},
		{"endpoint without method", SyncActionInput{Type: route.ActionCreate, Entity: route.EntityProduct, Endpoint: "/x"}},
		{"method without endpoint", SyncActionInput{Type: route.ActionCreate, Entity: route.EntityProduct, Method: "POST"}},
		{"relative endpoint", SyncActionInput{Type: route.ActionCreate, Entity: route.EntityProduct, Endpoint: "x", Method: "POST"}},
		{"read method", SyncActionInput{Type: route.ActionCreate, Entity: route.EntityProduct, Endpoint: "/x", Method: "GET"}},
		{"generic without endpoint", SyncActionInput{Type: route.ActionCreate, Entity: route.EntityGeneric}},
		{"bad payload", SyncActionInput{Type: route.ActionCreate, Entity: route.EntityProduct, Payload: json.RawMessage(`{`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.queue.Enqueue(context.Background(), tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidAction)
			assert.Equal(t, 0, f.queue.PendingCount(), "rejected input must not be queued")
		})
	}
}

func TestEnqueue_GenericOverride(t *testing.T) {
	f := newFixture(t)

	a, err := f.queue.Enqueue(context.Background(), SyncActionInput{
		Type:     route.ActionUpdate,
		Entity:   route.EntityGeneric,
		Endpoint: "/settings/store",
		Method:   "PATCH",
		Payload:  json.RawMessage(`{"currency":"EUR"}`),
	})
	require.NoError(t, err)
	assert.True(t, a.HasOverride())

	call, err := a.Call(route.Default())
	require.NoError(t, err)
	assert.Equal(t, route.Call{Method: "PATCH", Path: "/settings/store"}, call)
}

func TestCall_UsesTableWithoutOverride(t *testing.T) {
	a := SyncAction{Type: route.ActionDelete, Entity: route.EntityOrder, Payload: json.RawMessage(`{"order_id":7}`)}

	call, err := a.Call(route.Default())
	require.NoError(t, err)
	assert.Equal(t, route.Call{Method: "DELETE", Path: "/orders/7"}, call)
}

func TestQueue_SurvivesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, productCreate("A"))
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, productCreate("B"))
	require.NoError(t, err)

	reopened := New(ctx, f.store, WithClock(f.clock))
	got := reopened.PeekAll()
	require.Len(t, got, 2)
	assert.Equal(t, "act-1", got[0].ID)
	assert.JSONEq(t, `{"name":"B"}`, string(got[1].Payload))
}

func TestNew_CorruptPersistedListStartsEmpty(t *testing.T) {
	clk := testutil.NewFakeClock()
	store := kv.NewMemory(clk)
	require.NoError(t, store.Set(context.Background(), QueueKey, json.RawMessage(`{"not":"a list"}`)))

	q := New(context.Background(), store, WithClock(clk))
	assert.Equal(t, 0, q.PendingCount())
}

func TestEnqueue_PersistFailureKeepsMemoryState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.FailWith(errors.New("disk full"))

	_, err := f.queue.Enqueue(ctx, productCreate("A"))
	require.NoError(t, err, "storage failures are not surfaced to the caller")
	assert.Equal(t, 1, f.queue.PendingCount())

	// Next successful write heals the persisted copy.
	f.store.FailWith(nil)
	_, err = f.queue.Enqueue(ctx, productCreate("B"))
	require.NoError(t, err)

	reopened := New(ctx, f.store)
	assert.Equal(t, 2, reopened.PendingCount())
}

func TestPeekAll_ReturnsSnapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.queue.Enqueue(context.Background(), productCreate("A"))
	require.NoError(t, err)

	snap := f.queue.PeekAll()
	snap[0].Retries = 99
	snap[0].Payload[2] = 'X'

	fresh := f.queue.PeekAll()
	assert.Equal(t, 0, fresh[0].Retries)
	assert.JSONEq(t, `{"name":"A"}`, string(fresh[0].Payload))
}

func TestCommit_AppliesOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		_, err := f.queue.Enqueue(ctx, productCreate(name))
		require.NoError(t, err)
	}

	snap := f.queue.PeekAll()
	failed := snap[1]
	failed.Retries = 1
	failed.LastError = "connection refused"

	f.queue.Commit(ctx, Outcome{
		Removed: []string{snap[0].ID, snap[2].ID},
		Updated: []SyncAction{failed},
	})

	got := f.queue.PeekAll()
	require.Len(t, got, 1)
	assert.Equal(t, "act-2", got[0].ID)
	assert.Equal(t, 1, got[0].Retries)
	assert.Equal(t, "connection refused", got[0].LastError)
}

func TestCommit_KeepsActionsEnqueuedDuringDrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.queue.Enqueue(ctx, productCreate("A"))
	require.NoError(t, err)

	snap := f.queue.PeekAll()

	// Enqueued after the snapshot was taken.
	_, err = f.queue.Enqueue(ctx, productCreate("B"))
	require.NoError(t, err)

	f.queue.Commit(ctx, Outcome{Removed: []string{snap[0].ID}})

	got := f.queue.PeekAll()
	require.Len(t, got, 1)
	assert.Equal(t, "act-2", got[0].ID)
}

func TestRestore_ResetsBudgetAndAppends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.queue.Enqueue(ctx, productCreate("A"))
	require.NoError(t, err)

	f.queue.Restore(ctx, SyncAction{
		ID:        "old-1",
		Type:      route.ActionCreate,
		Entity:    route.EntityProduct,
		Retries:   MaxRetries,
		LastError: "HTTP 503",
	})

	got := f.queue.PeekAll()
	require.Len(t, got, 2)
	assert.Equal(t, "old-1", got[1].ID)
	assert.Equal(t, 0, got[1].Retries)
	assert.Empty(t, got[1].LastError)

	f.queue.Restore(ctx, got[1])
	assert.Equal(t, 2, f.queue.PendingCount(), "restoring a queued ID is a no-op")
	assert.True(t, f.queue.Contains("old-1"))
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.queue.Enqueue(ctx, productCreate("A"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.queue.Clear(ctx))
	assert.Equal(t, 0, f.queue.PendingCount())
	assert.Equal(t, 0, New(ctx, f.store).PendingCount())
}
