package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/roach88/offsync/internal/clock"
	"github.com/roach88/offsync/internal/kv"
)

// QueueKey is the durable store key holding the pending list.
const QueueKey = "outbox/queue"

// Queue is the ordered list of pending sync actions.
//
// Thread-safety: all methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	store   kv.Store
	clock   clock.Clock
	ids     IDGenerator
	actions []SyncAction
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the clock used for EnqueuedAt.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithIDGenerator overrides the action ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) {
		q.ids = g
	}
}

// New creates a queue over store and loads any persisted actions.
// An unreadable or corrupt persisted list is logged and the queue starts empty.
func New(ctx context.Context, store kv.Store, opts ...Option) *Queue {
	q := &Queue{
		store:   store,
		clock:   clock.Real{},
		ids:     UUIDv7Generator{},
		actions: []SyncAction{},
	}
	for _, opt := range opts {
		opt(q)
	}

	loaded, err := kv.LoadList[SyncAction](ctx, store, QueueKey)
	if err != nil {
		slog.Warn("outbox load failed, starting empty", "error", err)
	} else {
		q.actions = loaded
	}
	return q
}

// Enqueue validates in, assigns an ID, EnqueuedAt and Retries=0, appends
// the action and persists the queue. Returns the stored record.
func (q *Queue) Enqueue(ctx context.Context, in SyncActionInput) (SyncAction, error) {
	if err := in.Validate(); err != nil {
		return SyncAction{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	a := SyncAction{
		ID:         q.ids.Generate(),
		Type:       in.Type,
		Entity:     in.Entity,
		Endpoint:   in.Endpoint,
		Method:     in.Method,
		Payload:    append(json.RawMessage(nil), in.Payload...),
		EnqueuedAt: q.clock.Now().UTC(),
	}
	if len(in.Payload) == 0 {
		a.Payload = nil
	}
	q.actions = append(q.actions, a)
	q.persistLocked(ctx)

	slog.Debug("action enqueued", "action_id", a.ID, "entity", a.Entity, "type", a.Type, "pending", len(q.actions))
	return a.clone(), nil
}

// Restore appends an existing action (keeping its ID) to the end of the
// queue with a fresh retry budget. Restoring an ID already queued is a no-op.
func (q *Queue) Restore(ctx context.Context, a SyncAction) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.actions {
		if existing.ID == a.ID {
			return
		}
	}
	a = a.clone()
	a.Retries = 0
	a.LastError = ""
	q.actions = append(q.actions, a)
	q.persistLocked(ctx)
}

// PeekAll returns a snapshot of the queue in enqueue order.
func (q *Queue) PeekAll() []SyncAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]SyncAction, len(q.actions))
	for i, a := range q.actions {
		out[i] = a.clone()
	}
	return out
}

// PendingCount returns the number of queued actions.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Contains reports whether an action with id is queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, a := range q.actions {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Clear drops every pending action. This loses user intent; it exists as
// an administrative escape hatch. Returns the number dropped.
func (q *Queue) Clear(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.actions)
	q.actions = []SyncAction{}
	q.persistLocked(ctx)
	slog.Warn("outbox cleared", "dropped", n)
	return n
}

// Outcome is the result of one drain pass, applied with Commit.
type Outcome struct {
	// Removed holds IDs that left the queue: replayed or promoted.
	Removed []string
	// Updated holds actions still queued with new retry state.
	Updated []SyncAction
}

// Commit applies a drain outcome to the current list and persists it.
// Actions absent from the outcome, including ones enqueued during the
// drain, keep their position.
func (q *Queue) Commit(ctx context.Context, out Outcome) {
	if len(out.Removed) == 0 && len(out.Updated) == 0 {
		return
	}

	removed := make(map[string]bool, len(out.Removed))
	for _, id := range out.Removed {
		removed[id] = true
	}
	updated := make(map[string]SyncAction, len(out.Updated))
	for _, a := range out.Updated {
		updated[a.ID] = a
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]SyncAction, 0, len(q.actions))
	for _, a := range q.actions {
		if removed[a.ID] {
			continue
		}
		if u, ok := updated[a.ID]; ok {
			a.Retries = u.Retries
			a.LastError = u.LastError
		}
		next = append(next, a)
	}
	q.actions = next
	q.persistLocked(ctx)
}

// persistLocked writes the list to the store. Caller holds q.mu.
func (q *Queue) persistLocked(ctx context.Context) {
	if err := kv.SaveList(ctx, q.store, QueueKey, q.actions); err != nil {
		slog.Warn("outbox persist failed", "pending", len(q.actions), "error", err)
	}
}
