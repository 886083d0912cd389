package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/offsync/internal/cache"
)

// PrefetchResult reports one prefetch pass.
type PrefetchResult struct {
	Refreshed int `json:"refreshed"`
	Fresh     int `json:"fresh"`
	Failed    int `json:"failed"`
	// Errors maps a failed resource endpoint to its error.
	Errors map[string]string `json:"errors,omitempty"`
}

// Prefetch refreshes every stale critical resource. Fetches run
// concurrently up to the configured limit; one failing fetch does not
// affect the others.
//
// Returns ErrOffline when offline and ErrPrefetchInProgress when another
// prefetch is running.
func (e *Engine) Prefetch(ctx context.Context) (PrefetchResult, error) {
	if !e.observer.Online() {
		return PrefetchResult{}, ErrOffline
	}
	if !e.prefetching.CompareAndSwap(false, true) {
		return PrefetchResult{}, ErrPrefetchInProgress
	}
	defer e.prefetching.Store(false)

	ctx, span := e.tracer.Start(ctx, "offsync.prefetch")
	defer span.End()

	var (
		mu  sync.Mutex
		res PrefetchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.prefetchConcurrency)

	for _, r := range e.resources {
		key := cache.Signature(r.Endpoint)
		if !e.cache.IsStale(ctx, key, r.MaxAgeMinutes) {
			res.Fresh++
			continue
		}

		g.Go(func() error {
			data, err := e.transport.Call(gctx, r.Endpoint, http.MethodGet, nil)
			if err == nil {
				e.gate.RLock()
				e.cache.Write(gctx, key, data)
				e.gate.RUnlock()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("prefetch failed", "endpoint", r.Endpoint, "error", err)
				if res.Errors == nil {
					res.Errors = make(map[string]string)
				}
				res.Errors[r.Endpoint] = err.Error()
				res.Failed++
				return nil
			}
			res.Refreshed++
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("offsync.prefetch.refreshed", res.Refreshed),
		attribute.Int("offsync.prefetch.fresh", res.Fresh),
		attribute.Int("offsync.prefetch.failed", res.Failed),
	)
	if res.Failed > 0 {
		span.SetStatus(codes.Error, "prefetch had failures")
	}

	slog.Info("prefetch complete",
		"refreshed", res.Refreshed,
		"fresh", res.Fresh,
		"failed", res.Failed,
	)
	return res, nil
}
