// Package statusapi exposes the sync engine's status and recovery actions
// over a local HTTP API for the UI.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/offsync/internal/deadletter"
	"github.com/roach88/offsync/internal/engine"
	"github.com/roach88/offsync/internal/outbox"
)

// Engine is the subset of *engine.Engine the API drives.
type Engine interface {
	Status() engine.Status
	ProcessQueue(ctx context.Context) (engine.DrainResult, error)
	Prefetch(ctx context.Context) (engine.PrefetchResult, error)
	Pending() []outbox.SyncAction
	DeadLetters() []deadletter.FailedSyncAction
	Retry(ctx context.Context, id string) error
	RetryAll(ctx context.Context) int
	Dismiss(ctx context.Context, id string) error
}

type server struct {
	engine Engine
}

// NewServer routes the status API onto a chi router.
func NewServer(e Engine) http.Handler {
	s := &server{engine: e}
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.status)
	r.Post("/sync", s.sync)
	r.Post("/prefetch", s.prefetch)
	r.Get("/queue", s.queue)
	r.Get("/deadletter", s.deadLetters)
	r.Post("/deadletter/retry", s.retryAll)
	r.Post("/deadletter/{id}/retry", s.retry)
	r.Delete("/deadletter/{id}", s.dismiss)
	return r
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *server) sync(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ProcessQueue(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) prefetch(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Prefetch(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) queue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Pending())
}

func (s *server) deadLetters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.DeadLetters())
}

func (s *server) retryAll(w http.ResponseWriter, r *http.Request) {
	n := s.engine.RetryAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"retried": n})
}

func (s *server) retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Retry(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Dismiss(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case engine.IsOffline(err):
		return http.StatusServiceUnavailable
	case engine.IsBusy(err):
		return http.StatusConflict
	case errors.Is(err, deadletter.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("status api request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}
