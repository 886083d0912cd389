package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/offsync/internal/cache"
	"github.com/roach88/offsync/internal/clock"
	"github.com/roach88/offsync/internal/deadletter"
	"github.com/roach88/offsync/internal/dispatch"
	"github.com/roach88/offsync/internal/gateway"
	"github.com/roach88/offsync/internal/kv"
	"github.com/roach88/offsync/internal/netwatch"
	"github.com/roach88/offsync/internal/outbox"
	"github.com/roach88/offsync/internal/route"
)

const (
	// LastSyncKey holds the time of the last drain with at least one success.
	LastSyncKey = "meta/last_sync"

	DefaultPrefetchInterval    = 5 * time.Minute
	DefaultRevertDelay         = 3 * time.Second
	DefaultPrefetchConcurrency = 4

	tracerName = "github.com/roach88/offsync/internal/engine"
)

// Resource is a critical read refreshed by prefetch.
type Resource struct {
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	MaxAgeMinutes int    `json:"max_age_minutes" yaml:"max_age_minutes"`
}

// Engine is the sync orchestrator.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - every other method: safe from any goroutine
type Engine struct {
	store     kv.Store
	transport gateway.Transport
	observer  netwatch.Observer

	clock               clock.Clock
	ids                 outbox.IDGenerator
	router              *route.Table
	tracer              trace.Tracer
	session             *gateway.Session
	resources           []Resource
	prefetchInterval    time.Duration
	revertDelay         time.Duration
	maxRetries          int
	prefetchConcurrency int
	logoutPath          string

	cache      *cache.Cache
	queue      *outbox.Queue
	ledger     *deadletter.Ledger
	dispatcher *dispatch.Dispatcher

	// gate serializes queue and ledger mutation (exclusive) against
	// prefetch cache writes (shared).
	gate        sync.RWMutex
	draining    atomic.Bool
	prefetching atomic.Bool

	syncMu   sync.Mutex
	lastSync time.Time

	status statusState

	events *eventQueue
	tickMu sync.Mutex
	tick   clock.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the real clock. The same clock should back the store.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator overrides UUIDv7 action IDs.
func WithIDGenerator(g outbox.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithResources sets the critical resources refreshed by prefetch.
func WithResources(rs ...Resource) Option {
	return func(e *Engine) {
		e.resources = append([]Resource(nil), rs...)
	}
}

// WithPrefetchInterval overrides DefaultPrefetchInterval.
func WithPrefetchInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.prefetchInterval = d
		}
	}
}

// WithRevertDelay overrides DefaultRevertDelay.
func WithRevertDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.revertDelay = d
		}
	}
}

// WithMaxRetries overrides outbox.MaxRetries.
//
// Use WithMaxRetries(1) to dead-letter on the first failure in tests.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithRouter overrides route.Default().
func WithRouter(t *route.Table) Option {
	return func(e *Engine) {
		e.router = t
	}
}

// WithSession sets the session cleared by logout.
func WithSession(s *gateway.Session) Option {
	return func(e *Engine) {
		e.session = s
	}
}

// WithLogoutPath overrides dispatch.DefaultLogoutPath.
func WithLogoutPath(path string) Option {
	return func(e *Engine) {
		e.logoutPath = path
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithPrefetchConcurrency bounds parallel prefetch fetches.
func WithPrefetchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.prefetchConcurrency = n
		}
	}
}

// New creates an engine and loads persisted queue, ledger and last-sync
// state from store. It does not start the Run loop.
func New(ctx context.Context, store kv.Store, transport gateway.Transport, observer netwatch.Observer, opts ...Option) *Engine {
	e := &Engine{
		store:               store,
		transport:           transport,
		observer:            observer,
		clock:               clock.Real{},
		ids:                 outbox.UUIDv7Generator{},
		router:              route.Default(),
		tracer:              otel.Tracer(tracerName),
		prefetchInterval:    DefaultPrefetchInterval,
		revertDelay:         DefaultRevertDelay,
		maxRetries:          outbox.MaxRetries,
		prefetchConcurrency: DefaultPrefetchConcurrency,
		logoutPath:          dispatch.DefaultLogoutPath,
		events:              newEventQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.status.init()

	e.cache = cache.New(store, e.clock)
	e.queue = outbox.New(ctx, store, outbox.WithClock(e.clock), outbox.WithIDGenerator(e.ids))
	e.ledger = deadletter.New(ctx, store, e.queue)

	dopts := []dispatch.Option{dispatch.WithLogoutPath(e.logoutPath)}
	if e.session != nil {
		dopts = append(dopts, dispatch.WithSession(e.session))
	}
	e.dispatcher = dispatch.New(transport, e.cache, observer, e, dopts...)

	e.loadLastSync(ctx)
	return e
}

// Dispatcher returns the dispatcher callers use for reads and writes.
func (e *Engine) Dispatcher() *dispatch.Dispatcher {
	return e.dispatcher
}

// Cache returns the cache layer.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Enqueue adds a write to the outbox. Implements dispatch.Enqueuer.
func (e *Engine) Enqueue(ctx context.Context, in outbox.SyncActionInput) (outbox.SyncAction, error) {
	e.gate.Lock()
	a, err := e.queue.Enqueue(ctx, in)
	e.gate.Unlock()

	if err == nil {
		e.publishStatus()
	}
	return a, err
}

// Pending returns the queued actions in replay order.
func (e *Engine) Pending() []outbox.SyncAction {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.queue.PeekAll()
}

// ClearQueue drops every queued action. Returns the number dropped.
func (e *Engine) ClearQueue(ctx context.Context) int {
	e.gate.Lock()
	n := e.queue.Clear(ctx)
	e.gate.Unlock()

	e.publishStatus()
	return n
}

// DeadLetters returns the dead-letter ledger in failure order.
func (e *Engine) DeadLetters() []deadletter.FailedSyncAction {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.ledger.ListAll()
}

// OnDeadLetter registers fn for ledger appends. fn receives the full ledger.
func (e *Engine) OnDeadLetter(fn func([]deadletter.FailedSyncAction)) (unsubscribe func()) {
	return e.ledger.Subscribe(fn)
}

// Retry moves one dead-lettered action back to the queue.
func (e *Engine) Retry(ctx context.Context, id string) error {
	e.gate.Lock()
	err := e.ledger.Retry(ctx, id)
	e.gate.Unlock()

	if err == nil {
		e.publishStatus()
	}
	return err
}

// RetryAll moves every dead-lettered action back to the queue.
func (e *Engine) RetryAll(ctx context.Context) int {
	e.gate.Lock()
	n := e.ledger.RetryAll(ctx)
	e.gate.Unlock()

	if n > 0 {
		e.publishStatus()
	}
	return n
}

// Dismiss permanently drops one dead-lettered action.
func (e *Engine) Dismiss(ctx context.Context, id string) error {
	e.gate.Lock()
	err := e.ledger.Dismiss(ctx, id)
	e.gate.Unlock()

	if err == nil {
		e.publishStatus()
	}
	return err
}

// LastSync returns the time of the last drain that replayed anything.
func (e *Engine) LastSync() (time.Time, bool) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.lastSync, !e.lastSync.IsZero()
}

func (e *Engine) loadLastSync(ctx context.Context) {
	rec, ok, err := e.store.Get(ctx, LastSyncKey)
	if err != nil {
		slog.Warn("last sync load failed", "error", err)
		return
	}
	if !ok {
		return
	}
	var t time.Time
	if err := json.Unmarshal(rec.Value, &t); err != nil {
		slog.Warn("last sync unreadable", "error", err)
		return
	}
	e.syncMu.Lock()
	e.lastSync = t
	e.syncMu.Unlock()
}

func (e *Engine) stampLastSync(ctx context.Context) {
	now := e.clock.Now().UTC()
	e.syncMu.Lock()
	e.lastSync = now
	e.syncMu.Unlock()

	data, err := json.Marshal(now)
	if err != nil {
		slog.Warn("last sync encode failed", "error", err)
		return
	}
	if err := e.store.Set(ctx, LastSyncKey, data); err != nil {
		slog.Warn("last sync persist failed", "error", err)
	}
}
