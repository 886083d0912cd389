package engine

import (
	"context"
	"log/slog"
)

// Run starts the event loop. Blocks until ctx is cancelled or Stop is called.
//
// Starting while online counts as a reconnect, so actions persisted by a
// previous process are replayed without waiting for a transition.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"online", e.observer.Online(),
		"pending", e.queue.PendingCount(),
		"dead", e.ledger.Count(),
	)

	unsubscribe := e.observer.Subscribe(func(online bool) {
		if online {
			e.events.Enqueue(event{kind: eventOnline})
		} else {
			e.events.Enqueue(event{kind: eventOffline})
		}
	})
	defer unsubscribe()

	if e.observer.Online() {
		e.events.Enqueue(event{kind: eventOnline})
	}
	e.armPrefetchTick()
	defer e.stopPrefetchTick()

	for {
		if ev, ok := e.events.TryDequeue(); ok {
			e.handle(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.events.Close()
			return ctx.Err()

		case <-e.events.Wait():
			// The signal channel is closed by Stop; an empty queue then means done.
			if e.events.isClosed() && e.events.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop makes Run return once queued events are handled.
func (e *Engine) Stop() {
	e.events.Close()
}

func (e *Engine) handle(ctx context.Context, ev event) {
	slog.Debug("engine event", "event", ev.kind)

	switch ev.kind {
	case eventOnline:
		e.Reconnect(ctx)
	case eventOffline:
		e.publishStatus()
	case eventPrefetchTick:
		if _, err := e.Prefetch(ctx); err != nil && !IsOffline(err) && !IsBusy(err) {
			slog.Warn("periodic prefetch failed", "error", err)
		}
	}
}

// Reconnect is the reconnect cycle Run performs on an online transition:
// drain, then prefetch. Either step is skipped quietly if the link dropped
// again or a manual trigger is already running it.
func (e *Engine) Reconnect(ctx context.Context) {
	e.publishStatus()

	if _, err := e.ProcessQueue(ctx); err != nil {
		if IsOffline(err) {
			return
		}
		if !IsBusy(err) {
			slog.Warn("reconnect drain failed", "error", err)
		}
	}
	if _, err := e.Prefetch(ctx); err != nil && !IsOffline(err) && !IsBusy(err) {
		slog.Warn("reconnect prefetch failed", "error", err)
	}
}

// armPrefetchTick schedules the next periodic prefetch event. The tick
// only queues an event; the handler checks connectivity.
func (e *Engine) armPrefetchTick() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if e.events.isClosed() {
		return
	}
	e.tick = e.clock.AfterFunc(e.prefetchInterval, func() {
		if e.observer.Online() {
			e.events.Enqueue(event{kind: eventPrefetchTick})
		}
		e.armPrefetchTick()
	})
}

func (e *Engine) stopPrefetchTick() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if e.tick != nil {
		e.tick.Stop()
		e.tick = nil
	}
}
