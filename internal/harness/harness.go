package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/offsync/internal/dispatch"
	"github.com/roach88/offsync/internal/engine"
	"github.com/roach88/offsync/internal/gateway"
	"github.com/roach88/offsync/internal/kv"
	"github.com/roach88/offsync/internal/netwatch"
	"github.com/roach88/offsync/internal/outbox"
	"github.com/roach88/offsync/internal/route"
	"github.com/roach88/offsync/internal/testutil"
)

// Harness is the scenario execution environment. One Harness runs one
// scenario; restart steps replace its engine but keep everything else.
type Harness struct {
	scenario *Scenario
	store    *kv.Memory
	clock    *testutil.FakeClock
	ids      *testutil.SequenceIDs
	net      *netwatch.Static
	gateway  *recorder
	engine   *engine.Engine
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store. An error means the
// scenario could not be executed (a failing setup step); expectation and
// assertion failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	clk := testutil.NewFakeClock()
	net := netwatch.NewStatic(scenario.Online)

	scripted := testutil.NewScriptedTransport()
	for _, sc := range scenario.Gateway {
		method, path, err := splitCall(sc.Call)
		if err != nil {
			return nil, err
		}
		for _, r := range sc.Replies {
			scripted.On(method, path, toReply(r))
		}
	}

	h := &Harness{
		scenario: scenario,
		store:    kv.NewMemory(clk),
		clock:    clk,
		ids:      testutil.NewSequenceIDs("action"),
		net:      net,
		gateway:  &recorder{next: scripted, online: net.Online},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.engine = h.newEngine(ctx)

	result := NewResult()
	for i, step := range scenario.Setup {
		if _, err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Do, err)
		}
	}

	for i, step := range scenario.Flow {
		out, err := h.execute(ctx, step)
		for _, msg := range checkExpect(step, out, err) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Do, msg))
		}
		h.logger.Info("flow step completed", "step", i, "do", step.Do, "error", err)
	}

	result.Trace = h.gateway.events()
	state, err := h.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture final state: %w", err)
	}
	result.State = state

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) newEngine(ctx context.Context) *engine.Engine {
	opts := []engine.Option{
		engine.WithClock(h.clock),
		engine.WithIDGenerator(h.ids),
		engine.WithResources(h.scenario.Resources...),
		engine.WithPrefetchConcurrency(1),
	}
	if h.scenario.MaxRetries > 0 {
		opts = append(opts, engine.WithMaxRetries(h.scenario.MaxRetries))
	}
	return engine.New(ctx, h.store, h.gateway, h.net, opts...)
}

// execute runs one step and returns its JSON-shaped output.
func (h *Harness) execute(ctx context.Context, step Step) (any, error) {
	switch step.Do {
	case StepCall:
		body, err := marshalBody(step.Body)
		if err != nil {
			return nil, err
		}
		res, err := h.engine.Dispatcher().Do(ctx, dispatch.Request{
			Endpoint: step.Path,
			Method:   step.Method,
			Body:     body,
		})
		if err != nil {
			return nil, err
		}
		out := map[string]any{"source": string(res.Source)}
		if data := decodeBody(res.Data); data != nil {
			out["data"] = data
		}
		if res.Action != nil {
			out["action_id"] = res.Action.ID
		}
		return out, nil

	case StepEnqueue:
		payload, err := marshalBody(step.Body)
		if err != nil {
			return nil, err
		}
		a, err := h.engine.Enqueue(ctx, outbox.SyncActionInput{
			Type:    route.ActionType(step.Type),
			Entity:  route.Entity(step.Entity),
			Payload: payload,
		})
		if err != nil {
			return nil, err
		}
		return normalize(a)

	case StepOnline:
		h.net.Set(true)
		h.engine.Reconnect(ctx)
		return normalize(h.engine.Status())

	case StepOffline:
		h.net.Set(false)
		return normalize(h.engine.Status())

	case StepSync:
		times := max(step.Times, 1)
		var (
			res engine.DrainResult
			err error
		)
		for range times {
			if res, err = h.engine.ProcessQueue(ctx); err != nil {
				return nil, err
			}
		}
		return normalize(res)

	case StepPrefetch:
		res, err := h.engine.Prefetch(ctx)
		if err != nil {
			return nil, err
		}
		return normalize(res)

	case StepAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return nil, err
		}
		h.clock.Advance(d)
		return normalize(h.engine.Status())

	case StepRetry:
		if err := h.engine.Retry(ctx, step.ID); err != nil {
			return nil, err
		}
		return normalize(h.engine.Status())

	case StepDismiss:
		if err := h.engine.Dismiss(ctx, step.ID); err != nil {
			return nil, err
		}
		return normalize(h.engine.Status())

	case StepRetryAll:
		return map[string]any{"retried": float64(h.engine.RetryAll(ctx))}, nil

	case StepRestart:
		h.engine = h.newEngine(ctx)
		return normalize(h.engine.Status())

	default:
		return nil, fmt.Errorf("unknown step %q", step.Do)
	}
}

// snapshot captures the final state tables.
func (h *Harness) snapshot(ctx context.Context) (map[string]any, error) {
	status, err := normalize(h.engine.Status())
	if err != nil {
		return nil, err
	}
	queue, err := normalize(h.engine.Pending())
	if err != nil {
		return nil, err
	}
	dead, err := normalize(h.engine.DeadLetters())
	if err != nil {
		return nil, err
	}

	c := h.engine.Cache()
	keys := c.Keys(ctx)
	sort.Strings(keys)
	entries := make([]any, 0, len(keys))
	for _, k := range keys {
		e, ok := c.Read(ctx, k)
		if !ok {
			continue
		}
		entries = append(entries, map[string]any{"key": k, "value": decodeBody(e.Value)})
	}

	return map[string]any{
		TableStatus:     []any{status},
		TableQueue:      queue,
		TableDeadLetter: dead,
		TableCache:      entries,
	}, nil
}

// checkExpect compares a step outcome with its expect clause.
func checkExpect(step Step, out any, err error) []string {
	exp := step.Expect
	if exp == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if exp.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected error containing %q, got success", exp.Error)}
		}
		if !strings.Contains(err.Error(), exp.Error) {
			return []string{fmt.Sprintf("expected error containing %q, got %q", exp.Error, err.Error())}
		}
		return nil
	}

	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}
	if len(exp.Result) == 0 {
		return nil
	}
	want, nerr := normalize(exp.Result)
	if nerr != nil {
		return []string{fmt.Sprintf("expected result: %v", nerr)}
	}
	if !subsetMatch(out, want) {
		return []string{fmt.Sprintf("result %v does not match expected %v", out, want)}
	}
	return nil
}

func toReply(r Reply) testutil.Reply {
	switch {
	case r.NetworkDown:
		return testutil.NetworkDown()
	case r.Status >= 300:
		return testutil.Status(r.Status, r.Message)
	default:
		return testutil.OK(r.Body)
	}
}

// recorder traces every gateway call. While offline, calls fail as
// network errors without reaching the scripted transport.
type recorder struct {
	next   gateway.Transport
	online func() bool

	mu    sync.Mutex
	seq   int64
	trace []TraceEvent
}

func (r *recorder) Call(ctx context.Context, path, method string, body json.RawMessage) (json.RawMessage, error) {
	call := strings.ToUpper(method) + " " + path
	r.record(TraceEvent{Type: EventRequest, Call: call, Body: decodeBody(body)})

	var (
		data json.RawMessage
		err  error
	)
	if r.online() {
		data, err = r.next.Call(ctx, path, method, body)
	} else {
		err = testutil.NetworkDown().Err
	}

	ev := TraceEvent{Type: EventResponse, Call: call, Outcome: outcomeOf(err)}
	if err != nil {
		ev.Error = err.Error()
	} else {
		ev.Body = decodeBody(data)
	}
	r.record(ev)
	return data, err
}

func (r *recorder) record(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ev.Seq = r.seq
	r.trace = append(r.trace, ev)
}

func (r *recorder) events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.trace))
	copy(out, r.trace)
	return out
}

func outcomeOf(err error) string {
	var apiErr *gateway.APIError
	switch {
	case err == nil:
		return OutcomeOK
	case gateway.IsNetworkError(err):
		return OutcomeNetworkError
	case errors.As(err, &apiErr):
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	default:
		return OutcomeError
	}
}
