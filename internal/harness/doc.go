// Package harness runs conformance scenarios against a real sync engine.
//
// A scenario wires an engine over an in-memory store, a fake clock and a
// scripted gateway, drives it through a flow of steps, and checks the
// gateway trace and the final engine state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: offline_create_replays
//	description: "What this scenario validates"
//	online: false
//	max_retries: 5
//	resources:
//	  - endpoint: /products
//	    max_age_minutes: 30
//	gateway:
//	  - call: POST /products
//	    replies:
//	      - body: '{"id":1}'
//	      - status: 422
//	        message: invalid name
//	      - network_down: true
//	flow:
//	  - do: call
//	    method: POST
//	    path: /products
//	    body: { name: Tea }
//	    expect:
//	      result: { source: queued }
//	  - do: online
//	assertions:
//	  - type: trace_count
//	    action: POST /products
//	    count: 2
//	  - type: final_state
//	    table: queue
//	    count: 0
//
// While the scenario is offline every gateway call fails as a network
// error without consuming a scripted reply. Unscripted calls also fail
// as network errors.
//
// # Steps
//
//   - call: dispatch method and path with an optional body
//   - enqueue: queue entity/type with body as payload
//   - online: go online and run the reconnect cycle
//   - offline: go offline
//   - sync: run times drains (default 1)
//   - prefetch: refresh stale resources
//   - advance: move the clock by duration
//   - retry, dismiss: act on the dead letter with id
//   - retry_all: requeue the whole ledger
//   - restart: rebuild the engine over the same store
//
// # Assertion Types
//
//   - trace_contains: a request for action ("METHOD path") with a body matching args
//   - trace_order: the first requests for actions appear in order
//   - trace_count: requests for action appear exactly count times
//   - final_state: rows of status, queue, deadletter or cache matching where;
//     expect checks exactly one row, count checks how many
//
// Matching is by subset: only the fields named are compared, and a null
// expectation matches an absent field.
//
// # Deterministic Testing
//
// Every run uses testutil.FakeClock, sequential action IDs and a
// prefetch concurrency of one, so traces are identical across runs and
// can be compared against golden files.
package harness
