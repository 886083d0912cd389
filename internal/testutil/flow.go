package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable sync action IDs: "<prefix>-1", "<prefix>-2", ...
//
// This enables deterministic test execution and golden trace comparison.
// The same scenario with the same SequenceIDs produces byte-identical traces.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "action".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "action"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next ID in the sequence.
//
// Implements outbox.IDGenerator.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
