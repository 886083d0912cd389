package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/offsync/internal/clock"
)

// Memory is a process-local Store. It backs the scenario harness and tests
// that need to inject storage failures; nothing survives a restart.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	clock   clock.Clock
	failErr error
}

// NewMemory creates an empty in-memory store. A nil clock uses wall time.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Memory{records: make(map[string]Record), clock: clk}
}

// FailWith makes every subsequent operation return err until called with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return Record{}, false, fmt.Errorf("get %q: %w", key, m.failErr)
	}
	rec, ok := m.records[key]
	if !ok {
		return Record{}, false, nil
	}
	rec.Value = append(json.RawMessage(nil), rec.Value...)
	return rec, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return fmt.Errorf("set %q: %w", key, m.failErr)
	}
	if !json.Valid(value) {
		return fmt.Errorf("set %q: value is not valid JSON", key)
	}
	m.records[key] = Record{
		Key:       key,
		Value:     append(json.RawMessage(nil), value...),
		WrittenAt: m.clock.Now(),
	}
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return fmt.Errorf("remove %q: %w", key, m.failErr)
	}
	delete(m.records, key)
	return nil
}

// Keys implements Store.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, m.failErr)
	}
	keys := []string{}
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
