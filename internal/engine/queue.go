package engine

import "sync"

// eventKind distinguishes Run loop events.
type eventKind int

const (
	// eventOnline is a transition to online.
	eventOnline eventKind = iota + 1
	// eventOffline is a transition to offline.
	eventOffline
	// eventPrefetchTick is the periodic prefetch timer.
	eventPrefetchTick
)

func (k eventKind) String() string {
	switch k {
	case eventOnline:
		return "online"
	case eventOffline:
		return "offline"
	case eventPrefetchTick:
		return "prefetch_tick"
	default:
		return "unknown"
	}
}

// event is one item for the Run loop.
type event struct {
	kind eventKind
}

// eventQueue is a thread-safe FIFO queue for Run loop events.
//
// Producers are observer callbacks and timers on arbitrary goroutines;
// the single consumer is Run. An event identical to the one at the tail
// is dropped, so a burst of ticks or repeated transitions collapses into
// one cycle instead of fanning out.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed or the event was coalesced.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if n := len(q.events); n > 0 && q.events[n-1] == e {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}
	e := q.events[0]
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes the consumer.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
