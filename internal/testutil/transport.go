package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/roach88/offsync/internal/gateway"
)

// errConnRefused stands in for a dial failure.
var errConnRefused = errors.New("connect: connection refused")

// Reply is one scripted response: Data on success, Err otherwise.
type Reply struct {
	Data json.RawMessage
	Err  error
}

// OK replies with a JSON body.
func OK(body string) Reply {
	return Reply{Data: json.RawMessage(body)}
}

// NetworkDown replies with a transport failure.
func NetworkDown() Reply {
	return Reply{Err: &gateway.NetworkError{Err: errConnRefused}}
}

// Status replies with a server rejection.
func Status(code int, message string) Reply {
	return Reply{Err: &gateway.APIError{StatusCode: code, Message: message}}
}

// RecordedCall is one call observed by ScriptedTransport.
type RecordedCall struct {
	Method string
	Path   string
	Body   json.RawMessage
}

// ScriptedTransport is a gateway.Transport double. Replies are scripted
// per "METHOD path"; the last scripted reply repeats. Unscripted calls
// get the default reply, NetworkDown unless overridden.
//
// Thread-safety: safe for concurrent use.
type ScriptedTransport struct {
	mu       sync.Mutex
	scripts  map[string][]Reply
	fallback Reply
	calls    []RecordedCall
	hook     func(RecordedCall)
}

// NewScriptedTransport creates a transport where every call fails as if
// the network were down.
func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{
		scripts:  make(map[string][]Reply),
		fallback: NetworkDown(),
	}
}

// On scripts replies for method and path, in order.
func (s *ScriptedTransport) On(method, path string, replies ...Reply) *ScriptedTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scriptKey(method, path)
	s.scripts[k] = append(s.scripts[k], replies...)
	return s
}

// Default sets the reply for unscripted calls.
func (s *ScriptedTransport) Default(r Reply) *ScriptedTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = r
	return s
}

// OnCall registers a hook run before each reply is returned, outside the
// transport lock. Used to act while a call is in flight.
func (s *ScriptedTransport) OnCall(fn func(RecordedCall)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Call implements gateway.Transport.
func (s *ScriptedTransport) Call(ctx context.Context, path, method string, body json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc := RecordedCall{Method: strings.ToUpper(method), Path: path, Body: append(json.RawMessage(nil), body...)}
	if len(body) == 0 {
		rc.Body = nil
	}

	s.mu.Lock()
	s.calls = append(s.calls, rc)
	reply := s.fallback
	k := scriptKey(method, path)
	if queue := s.scripts[k]; len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			s.scripts[k] = queue[1:]
		}
	}
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(rc)
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return append(json.RawMessage(nil), reply.Data...), nil
}

// Calls returns every call observed so far, in order.
func (s *ScriptedTransport) Calls() []RecordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of calls observed.
func (s *ScriptedTransport) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Reset forgets observed calls; scripts are kept.
func (s *ScriptedTransport) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func scriptKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}
