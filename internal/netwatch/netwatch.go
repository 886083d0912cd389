// Package netwatch reports whether the remote API is reachable.
//
// "Online" means the WAN answers, not that a network interface is up: a
// laptop on a hotel captive portal is offline.
package netwatch

import (
	"log/slog"
	"sync"
)

// Observer exposes connectivity and transition notifications.
type Observer interface {
	Online() bool
	// Subscribe registers fn for transitions; fn receives the new state.
	// The returned function removes the subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// notifier tracks state and fans transitions out to subscribers.
type notifier struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

func newNotifier(online bool) *notifier {
	return &notifier{online: online, subs: make(map[int]func(bool))}
}

func (n *notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe(fn func(bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// set records the state and notifies subscribers on a transition.
// Returns true if the state changed.
func (n *notifier) set(online bool) bool {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return false
	}
	n.online = online
	subs := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	slog.Info("connectivity changed", "online", online)
	for _, fn := range subs {
		fn(online)
	}
	return true
}

// Static is an Observer driven by hand: the CLI's --offline flag, tests
// and the scenario harness.
type Static struct {
	*notifier
}

// NewStatic creates a Static observer in the given state.
func NewStatic(online bool) *Static {
	return &Static{notifier: newNotifier(online)}
}

// Set changes the state, notifying subscribers on a transition.
func (s *Static) Set(online bool) {
	s.set(online)
}
