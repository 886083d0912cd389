// Package outbox is the durable mutation queue: writes that could not reach
// the server, kept in enqueue order until a drain cycle replays them.
//
// The queue is a passive data structure. It never talks to the network;
// the engine snapshots it, replays each action once, and hands the outcome
// back through Commit. Commit applies that outcome against the current
// list, so actions enqueued while a drain was in flight are preserved.
//
// The in-memory list is authoritative for the running process. It is
// loaded from the durable store on construction and written back after
// every mutation; a failed write is logged and healed by the next
// successful one.
package outbox
