package gateway

import "sync"

// Session holds the bearer token attached to outgoing calls.
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession creates a session, optionally pre-authenticated.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// Token returns the current bearer token, empty when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores a new bearer token.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear signs the session out.
func (s *Session) Clear() {
	s.SetToken("")
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}
