// Package engine implements the offsync orchestrator.
//
// The engine owns the cache, the outbox, the dead-letter ledger and the
// dispatcher built over them, and decides when queued writes are replayed
// and when critical reads are refreshed.
//
// TRIGGERS:
//
// Drains run on a reconnect transition (offline to online) and on manual
// ProcessQueue calls. Nothing drains on a timer; a flaky link is not
// hammered. Prefetch runs after each reconnect drain, on a fixed interval
// while online, and on manual Prefetch calls.
//
// Connectivity transitions are funnelled through a FIFO event queue
// consumed by Run, so every automatic trigger is handled by one goroutine.
//
// EXCLUSION:
//
//   - At most one drain and one prefetch run at a time. A trigger that
//     arrives while one is running is coalesced and reports
//     ErrDrainInProgress or ErrPrefetchInProgress.
//   - Queue and ledger mutations hold the gate exclusively. Prefetch cache
//     writes hold it shared, so they run concurrently with each other but
//     never during a drain commit.
//   - Replays run outside the gate; enqueues are never blocked by network
//     latency.
//
// A drain replays actions strictly in enqueue order with one attempt each.
// Failures cost one retry; the fifth failure moves the action to the
// dead-letter ledger. Actions the routing table cannot map are moved there
// immediately.
package engine
