// Package kv provides the durable key/value store underneath the sync engine.
//
// Every record is a JSON value plus the wall time of its last write. The
// cache, the outbox and the dead-letter ledger are logical views over
// disjoint key namespaces of one Store:
//
//	cache/<signature>     one entry per cached read resource
//	outbox/queue          pending sync actions, in enqueue order
//	outbox/deadletter     actions that exhausted their retries
//	meta/last_sync        time of the last drain with at least one success
//
// # Durability
//
// The SQLite implementation runs with synchronous=FULL so a Set survives
// process termination immediately after it returns. There are no
// transactions spanning keys; callers tolerate partial multi-key updates.
//
// Callers above this package treat storage errors as best-effort: they log
// and continue with in-memory state, and the next successful write heals
// the persisted copy.
package kv
