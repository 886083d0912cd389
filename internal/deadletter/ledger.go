// Package deadletter keeps sync actions that exhausted their retry budget
// or could never be routed, until a user retries or dismisses them.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/offsync/internal/kv"
	"github.com/roach88/offsync/internal/outbox"
)

// LedgerKey is the durable store key holding the ledger.
const LedgerKey = "outbox/deadletter"

// ErrNotFound is returned by Retry and Dismiss for unknown IDs.
var ErrNotFound = errors.New("dead-letter entry not found")

// FailedSyncAction is a sync action that left the queue without succeeding.
type FailedSyncAction struct {
	outbox.SyncAction
	FailedAt time.Time `json:"failed_at"`
	Reason   string    `json:"reason"`
}

// Exhausted builds the ledger entry for an action whose retry budget ran out.
func Exhausted(a outbox.SyncAction, at time.Time) FailedSyncAction {
	return FailedSyncAction{
		SyncAction: a,
		FailedAt:   at.UTC(),
		Reason:     fmt.Sprintf("failed after %d retries: %s", a.Retries, a.LastError),
	}
}

// Unroutable builds the ledger entry for an action the routing table
// cannot map to a call. It carries no retry cost.
func Unroutable(a outbox.SyncAction, at time.Time, cause error) FailedSyncAction {
	a.LastError = cause.Error()
	return FailedSyncAction{
		SyncAction: a,
		FailedAt:   at.UTC(),
		Reason:     "unroutable: " + cause.Error(),
	}
}

// Listener receives the full ledger contents after every append.
type Listener func([]FailedSyncAction)

// Ledger is the persisted list of failed actions, in failure order.
//
// Retry moves entries back to the queue it was built with. The queue is
// written first, so a crash between the two writes leaves the action in
// both places rather than neither.
//
// Thread-safety: all methods are safe for concurrent use. Listeners run
// synchronously on the appending goroutine, outside the ledger lock.
type Ledger struct {
	mu      sync.Mutex
	store   kv.Store
	queue   *outbox.Queue
	entries []FailedSyncAction

	subMu  sync.Mutex
	nextID int
	subs   map[int]Listener
}

// New creates a ledger over store and loads any persisted entries.
func New(ctx context.Context, store kv.Store, queue *outbox.Queue) *Ledger {
	l := &Ledger{
		store:   store,
		queue:   queue,
		entries: []FailedSyncAction{},
		subs:    make(map[int]Listener),
	}
	loaded, err := kv.LoadList[FailedSyncAction](ctx, store, LedgerKey)
	if err != nil {
		slog.Warn("dead-letter load failed, starting empty", "error", err)
	} else {
		l.entries = loaded
	}
	return l
}

// Append records failed actions and notifies listeners once.
func (l *Ledger) Append(ctx context.Context, failed ...FailedSyncAction) error {
	notify, err := l.AppendDeferred(ctx, failed...)
	notify()
	return err
}

// AppendDeferred records failed actions and returns the listener
// notification instead of running it, so a caller holding its own lock
// can notify after releasing it.
//
// When the ledger cannot be persisted the append is undone and the error
// returned: callers must keep the actions queued rather than drop them.
func (l *Ledger) AppendDeferred(ctx context.Context, failed ...FailedSyncAction) (notify func(), err error) {
	if len(failed) == 0 {
		return func() {}, nil
	}

	l.mu.Lock()
	prev := len(l.entries)
	l.entries = append(l.entries, failed...)
	if err := l.persistLocked(ctx); err != nil {
		l.entries = l.entries[:prev:prev]
		l.mu.Unlock()
		return func() {}, fmt.Errorf("append dead letters: %w", err)
	}
	for _, f := range failed {
		slog.Warn("action dead-lettered",
			"action_id", f.ID,
			"entity", f.Entity,
			"type", f.Type,
			"reason", f.Reason,
		)
	}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	return func() { l.notify(snapshot) }, nil
}

// ListAll returns the ledger in failure order.
func (l *Ledger) ListAll() []FailedSyncAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Count returns the number of ledger entries.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Retry moves the entry with id back to the end of the queue with a fresh
// retry budget. Returns ErrNotFound if id is not in the ledger.
func (l *Ledger) Retry(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("retry %s: %w", id, ErrNotFound)
	}
	l.queue.Restore(ctx, l.entries[i].SyncAction)
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	_ = l.persistLocked(ctx)

	slog.Info("dead-letter entry requeued", "action_id", id)
	return nil
}

// RetryAll moves every entry back to the queue in ledger order and empties
// the ledger. Returns the number requeued.
func (l *Ledger) RetryAll(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	if n == 0 {
		return 0
	}
	for _, f := range l.entries {
		l.queue.Restore(ctx, f.SyncAction)
	}
	l.entries = []FailedSyncAction{}
	_ = l.persistLocked(ctx)

	slog.Info("dead-letter ledger requeued", "count", n)
	return n
}

// Dismiss permanently drops the entry with id.
func (l *Ledger) Dismiss(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("dismiss %s: %w", id, ErrNotFound)
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	_ = l.persistLocked(ctx)

	slog.Info("dead-letter entry dismissed", "action_id", id)
	return nil
}

// Subscribe registers fn for append notifications and returns a function
// that removes it.
func (l *Ledger) Subscribe(fn Listener) (unsubscribe func()) {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	id := l.nextID
	l.nextID++
	l.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, id)
			l.subMu.Unlock()
		})
	}
}

func (l *Ledger) notify(snapshot []FailedSyncAction) {
	l.subMu.Lock()
	listeners := make([]Listener, 0, len(l.subs))
	for _, fn := range l.subs {
		listeners = append(listeners, fn)
	}
	l.subMu.Unlock()

	for _, fn := range listeners {
		l.deliver(fn, snapshot)
	}
}

// deliver isolates a panicking listener from the others.
func (l *Ledger) deliver(fn Listener, snapshot []FailedSyncAction) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dead-letter listener panicked", "panic", r)
		}
	}()
	copied := make([]FailedSyncAction, len(snapshot))
	copy(copied, snapshot)
	fn(copied)
}

func (l *Ledger) indexLocked(id string) int {
	for i, f := range l.entries {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) snapshotLocked() []FailedSyncAction {
	out := make([]FailedSyncAction, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) persistLocked(ctx context.Context) error {
	err := kv.SaveList(ctx, l.store, LedgerKey, l.entries)
	if err != nil {
		slog.Warn("dead-letter persist failed", "entries", len(l.entries), "error", err)
	}
	return err
}
