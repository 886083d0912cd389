package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roach88/offsync/internal/clock"
)

// SyncStatus is the drain banner state. It is never persisted.
type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
)

// Status is the read-only projection shown to the user.
type Status struct {
	IsOnline      bool       `json:"is_online"`
	SyncStatus    SyncStatus `json:"sync_status"`
	PendingCount  int        `json:"pending_count"`
	DeadCount     int        `json:"dead_count"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastSyncLabel string     `json:"last_sync_label"`
}

type statusState struct {
	mu      sync.Mutex
	current SyncStatus
	// gen invalidates a revert timer that lost a race with a newer transition.
	gen    int
	revert clock.Timer

	nextID int
	subs   map[int]func(Status)
}

func (s *statusState) init() {
	s.current = StatusIdle
	s.subs = make(map[int]func(Status))
}

// Status returns the current projection.
func (e *Engine) Status() Status {
	e.status.mu.Lock()
	current := e.status.current
	e.status.mu.Unlock()

	st := Status{
		IsOnline:      e.observer.Online(),
		SyncStatus:    current,
		PendingCount:  e.queue.PendingCount(),
		DeadCount:     e.ledger.Count(),
		LastSyncLabel: "never",
	}
	if t, ok := e.LastSync(); ok {
		st.LastSyncAt = &t
		st.LastSyncLabel = humanize.RelTime(t, e.clock.Now(), "ago", "from now")
	}
	return st
}

// OnStatus registers fn for status changes and returns a function that
// removes it. fn runs synchronously on the goroutine causing the change.
func (e *Engine) OnStatus(fn func(Status)) (unsubscribe func()) {
	e.status.mu.Lock()
	defer e.status.mu.Unlock()

	id := e.status.nextID
	e.status.nextID++
	e.status.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.status.mu.Lock()
			delete(e.status.subs, id)
			e.status.mu.Unlock()
		})
	}
}

// setSyncStatus moves the state machine. synced and error schedule an
// automatic return to idle after the revert delay.
func (e *Engine) setSyncStatus(s SyncStatus) {
	e.status.mu.Lock()
	e.status.current = s
	e.status.gen++
	if e.status.revert != nil {
		e.status.revert.Stop()
		e.status.revert = nil
	}
	if s == StatusSynced || s == StatusError {
		gen := e.status.gen
		e.status.revert = e.clock.AfterFunc(e.revertDelay, func() {
			e.revertToIdle(gen)
		})
	}
	e.status.mu.Unlock()

	slog.Debug("sync status changed", "status", s)
	e.publishStatus()
}

func (e *Engine) revertToIdle(gen int) {
	e.status.mu.Lock()
	if e.status.gen != gen {
		e.status.mu.Unlock()
		return
	}
	e.status.current = StatusIdle
	e.status.revert = nil
	e.status.mu.Unlock()

	e.publishStatus()
}

func (e *Engine) publishStatus() {
	e.status.mu.Lock()
	subs := make([]func(Status), 0, len(e.status.subs))
	for _, fn := range e.status.subs {
		subs = append(subs, fn)
	}
	e.status.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	st := e.Status()
	for _, fn := range subs {
		deliverStatus(fn, st)
	}
}

func deliverStatus(fn func(Status), st Status) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("status listener panicked", "panic", r)
		}
	}()
	fn(st)
}
