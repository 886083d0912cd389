// Package dispatch applies the per-call offline policy: reads fall back to
// the cache, writes that cannot reach the server are queued for later.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/offsync/internal/cache"
	"github.com/roach88/offsync/internal/gateway"
	"github.com/roach88/offsync/internal/netwatch"
	"github.com/roach88/offsync/internal/outbox"
	"github.com/roach88/offsync/internal/route"
)

// DefaultLogoutPath is the call treated as locally successful when offline.
const DefaultLogoutPath = "/auth/logout"

// ErrOfflineNoCache is returned for a read made offline when nothing is cached.
var ErrOfflineNoCache = errors.New("offline and no cached data")

// Source says where a Result came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceQueued  Source = "queued"
	SourceLocal   Source = "local"
)

// Request is one logical API call.
type Request struct {
	Endpoint string
	Method   string
	Body     json.RawMessage
}

// Result is the outcome of a dispatched call.
type Result struct {
	Data   json.RawMessage
	Source Source
	// CachedAt is set when Data came from the cache.
	CachedAt *time.Time
	// Action is set when the call was queued for sync.
	Action *outbox.SyncAction
}

// Enqueuer accepts writes for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, in outbox.SyncActionInput) (outbox.SyncAction, error)
}

// Dispatcher routes calls between the network, the cache and the outbox.
type Dispatcher struct {
	transport  gateway.Transport
	cache      *cache.Cache
	observer   netwatch.Observer
	enqueuer   Enqueuer
	session    *gateway.Session
	logoutPath string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSession sets the session cleared by an offline logout.
func WithSession(s *gateway.Session) Option {
	return func(d *Dispatcher) {
		d.session = s
	}
}

// WithLogoutPath overrides DefaultLogoutPath.
func WithLogoutPath(path string) Option {
	return func(d *Dispatcher) {
		d.logoutPath = path
	}
}

// New creates a dispatcher.
func New(transport gateway.Transport, c *cache.Cache, observer netwatch.Observer, enqueuer Enqueuer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:  transport,
		cache:      c,
		observer:   observer,
		enqueuer:   enqueuer,
		logoutPath: DefaultLogoutPath,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Do dispatches req. An empty method means GET.
func (d *Dispatcher) Do(ctx context.Context, req Request) (Result, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet:
		return d.read(ctx, req.Endpoint)
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return d.write(ctx, req.Endpoint, method, req.Body)
	default:
		return Result{}, fmt.Errorf("dispatch %s %s: unsupported method", method, req.Endpoint)
	}
}

// Get reads endpoint.
func (d *Dispatcher) Get(ctx context.Context, endpoint string) (Result, error) {
	return d.Do(ctx, Request{Endpoint: endpoint, Method: http.MethodGet})
}

// Post creates at endpoint.
func (d *Dispatcher) Post(ctx context.Context, endpoint string, body json.RawMessage) (Result, error) {
	return d.Do(ctx, Request{Endpoint: endpoint, Method: http.MethodPost, Body: body})
}

// Put replaces at endpoint.
func (d *Dispatcher) Put(ctx context.Context, endpoint string, body json.RawMessage) (Result, error) {
	return d.Do(ctx, Request{Endpoint: endpoint, Method: http.MethodPut, Body: body})
}

// Delete removes at endpoint.
func (d *Dispatcher) Delete(ctx context.Context, endpoint string) (Result, error) {
	return d.Do(ctx, Request{Endpoint: endpoint, Method: http.MethodDelete})
}

func (d *Dispatcher) read(ctx context.Context, endpoint string) (Result, error) {
	key := cache.Signature(endpoint)

	if !d.observer.Online() {
		if res, ok := d.fromCache(ctx, key); ok {
			return res, nil
		}
		return Result{}, fmt.Errorf("GET %s: %w", endpoint, ErrOfflineNoCache)
	}

	data, err := d.transport.Call(ctx, endpoint, http.MethodGet, nil)
	if err == nil {
		d.cache.Write(ctx, key, data)
		return Result{Data: data, Source: SourceNetwork}, nil
	}
	if gateway.IsCanceled(ctx, err) {
		return Result{}, err
	}
	if res, ok := d.fromCache(ctx, key); ok {
		slog.Debug("read served from cache after failure", "endpoint", endpoint, "error", err)
		return res, nil
	}
	return Result{}, fmt.Errorf("GET %s: %w", endpoint, err)
}

func (d *Dispatcher) fromCache(ctx context.Context, key string) (Result, bool) {
	entry, ok := d.cache.Read(ctx, key)
	if !ok {
		return Result{}, false
	}
	at := entry.WrittenAt
	return Result{Data: entry.Value, Source: SourceCache, CachedAt: &at}, true
}

func (d *Dispatcher) write(ctx context.Context, endpoint, method string, body json.RawMessage) (Result, error) {
	if d.isLogout(endpoint) {
		return d.logout(ctx, endpoint, method, body)
	}

	data, err := d.transport.Call(ctx, endpoint, method, body)
	if err == nil {
		return Result{Data: data, Source: SourceNetwork}, nil
	}

	// Only a call that never produced a response is queued. Anything else
	// may have been applied by the server, offline or not.
	if gateway.IsNetworkError(err) && !gateway.IsCanceled(ctx, err) {
		return d.enqueue(ctx, endpoint, method, body, err)
	}
	return Result{}, err
}

func (d *Dispatcher) enqueue(ctx context.Context, endpoint, method string, body json.RawMessage, cause error) (Result, error) {
	typ, ok := route.TypeForMethod(method)
	if !ok {
		return Result{}, cause
	}
	entity, ok := route.EntityForPath(endpoint)
	if !ok {
		entity = route.EntityGeneric
	}

	a, err := d.enqueuer.Enqueue(ctx, outbox.SyncActionInput{
		Type:     typ,
		Entity:   entity,
		Endpoint: endpoint,
		Method:   method,
		Payload:  body,
	})
	if err != nil {
		return Result{}, fmt.Errorf("queue %s %s: %w", method, endpoint, err)
	}

	slog.Info("write queued for sync",
		"action_id", a.ID,
		"method", method,
		"endpoint", endpoint,
		"cause", cause,
	)
	return Result{Source: SourceQueued, Action: &a}, nil
}

// logout always signs out locally. Offline or unreachable, the local
// sign-out is the whole result; a logout is never queued.
func (d *Dispatcher) logout(ctx context.Context, endpoint, method string, body json.RawMessage) (Result, error) {
	local := Result{Data: json.RawMessage("null"), Source: SourceLocal}

	if !d.observer.Online() {
		d.clearSession()
		return local, nil
	}

	data, err := d.transport.Call(ctx, endpoint, method, body)
	if gateway.IsCanceled(ctx, err) {
		return Result{}, err
	}
	d.clearSession()
	switch {
	case err == nil:
		return Result{Data: data, Source: SourceNetwork}, nil
	case gateway.IsNetworkError(err):
		return local, nil
	default:
		return Result{}, err
	}
}

func (d *Dispatcher) clearSession() {
	if d.session != nil {
		d.session.Clear()
	}
}

func (d *Dispatcher) isLogout(endpoint string) bool {
	path, _, _ := strings.Cut(endpoint, "?")
	return d.logoutPath != "" && strings.TrimSuffix(path, "/") == d.logoutPath
}
