package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/offsync/internal/deadletter"
	"github.com/roach88/offsync/internal/gateway"
	"github.com/roach88/offsync/internal/outbox"
)

// DrainResult counts the outcome of one drain.
type DrainResult struct {
	// Processed is the number of successful replays.
	Processed int `json:"processed"`
	// Failed is the number of failures still queued for another attempt.
	Failed int `json:"failed"`
	// Dead is the number of actions moved to the dead-letter ledger.
	Dead int `json:"dead"`
}

// ProcessQueue runs one drain now.
//
// Returns ErrOffline when offline and ErrDrainInProgress when another
// drain is running; neither changes the queue.
func (e *Engine) ProcessQueue(ctx context.Context) (DrainResult, error) {
	if !e.observer.Online() {
		return DrainResult{}, ErrOffline
	}
	if !e.draining.CompareAndSwap(false, true) {
		slog.Debug("drain coalesced into running drain")
		return DrainResult{}, ErrDrainInProgress
	}
	defer e.draining.Store(false)

	ctx, span := e.tracer.Start(ctx, "offsync.drain")
	defer span.End()

	e.setSyncStatus(StatusSyncing)
	res := e.drain(ctx)

	span.SetAttributes(
		attribute.Int("offsync.drain.processed", res.Processed),
		attribute.Int("offsync.drain.failed", res.Failed),
		attribute.Int("offsync.drain.dead", res.Dead),
	)
	if res.Failed > 0 || res.Dead > 0 {
		span.SetStatus(codes.Error, "drain left failures")
		e.setSyncStatus(StatusError)
	} else {
		e.setSyncStatus(StatusSynced)
	}

	slog.Info("drain complete",
		"processed", res.Processed,
		"failed", res.Failed,
		"dead", res.Dead,
		"pending", e.queue.PendingCount(),
	)
	return res, nil
}

// drain replays a snapshot of the queue in order, one attempt per action,
// then commits the outcome. Caller holds the draining guard.
func (e *Engine) drain(ctx context.Context) DrainResult {
	var (
		res  DrainResult
		out  outbox.Outcome
		dead []deadletter.FailedSyncAction
	)

	snapshot := e.Pending()
	for _, a := range snapshot {
		if ctx.Err() != nil {
			break
		}

		call, err := a.Call(e.router)
		if err != nil {
			dead = append(dead, deadletter.Unroutable(a, e.clock.Now(), err))
			res.Dead++
			continue
		}

		_, err = e.transport.Call(ctx, call.Path, call.Method, a.Payload)
		if err == nil {
			slog.Debug("action replayed", "action_id", a.ID, "method", call.Method, "path", call.Path)
			out.Removed = append(out.Removed, a.ID)
			res.Processed++
			continue
		}
		if gateway.IsCanceled(ctx, err) {
			break
		}

		a.Retries++
		a.LastError = err.Error()
		slog.Debug("replay failed",
			"action_id", a.ID,
			"retries", a.Retries,
			"error", err,
		)
		if a.Retries >= e.maxRetries {
			dead = append(dead, deadletter.Exhausted(a, e.clock.Now()))
			res.Dead++
		} else {
			out.Updated = append(out.Updated, a)
			res.Failed++
		}
	}

	// The outcome is committed even if the caller gave up mid-drain.
	commitCtx := context.WithoutCancel(ctx)
	e.gate.Lock()
	notify := e.promote(commitCtx, dead, &out, &res)
	e.queue.Commit(commitCtx, out)
	e.gate.Unlock()
	notify()

	if res.Processed > 0 {
		e.stampLastSync(commitCtx)
	}
	return res
}

// promote moves dead actions into the ledger and adds them to the queue
// outcome. The ledger is written before the queue so that a crash between
// the two writes duplicates an action instead of losing it. Actions cleared
// from the queue during the drain are dropped. If the ledger cannot be
// persisted the actions stay queued with their retry state.
// Caller holds the gate.
func (e *Engine) promote(ctx context.Context, dead []deadletter.FailedSyncAction, out *outbox.Outcome, res *DrainResult) (notify func()) {
	live := dead[:0:0]
	for _, f := range dead {
		if !e.queue.Contains(f.ID) {
			slog.Info("cleared action not dead-lettered", "action_id", f.ID)
			res.Dead--
			continue
		}
		live = append(live, f)
	}

	notify, err := e.ledger.AppendDeferred(ctx, live...)
	if err != nil {
		slog.Error("dead-letter append failed, actions stay queued", "count", len(live), "error", err)
		for _, f := range live {
			out.Updated = append(out.Updated, f.SyncAction)
		}
		res.Dead -= len(live)
		res.Failed += len(live)
		return notify
	}
	for _, f := range live {
		out.Removed = append(out.Removed, f.ID)
	}
	return notify
}
