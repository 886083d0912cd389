package netwatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultProbeInterval = 10 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Prober is an Observer that polls a probe URL. It is online only when
// the probe answers with the expected status; captive portals answering
// 200 or a redirect therefore read as offline.
type Prober struct {
	*notifier
	url      string
	expect   int
	interval time.Duration
	timeout  time.Duration
	http     *http.Client
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithExpectedStatus overrides the success status (default 204).
func WithExpectedStatus(code int) ProberOption {
	return func(p *Prober) {
		p.expect = code
	}
}

// WithInterval overrides DefaultProbeInterval.
func WithInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewProber creates a prober for url. It starts offline until the first
// successful check.
func NewProber(url string, opts ...ProberOption) *Prober {
	p := &Prober{
		notifier: newNotifier(false),
		url:      url,
		expect:   http.StatusNoContent,
		interval: DefaultProbeInterval,
		timeout:  DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.http = &http.Client{
		Timeout: p.timeout,
		// Portals redirect to a login page; the redirect itself is the signal.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return p
}

// Check probes once and updates the state. Returns the observed state.
func (p *Prober) Check(ctx context.Context) bool {
	online := p.probe(ctx)
	p.set(online)
	return online
}

func (p *Prober) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		slog.Warn("probe request invalid", "url", p.url, "error", err)
		return false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		slog.Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != p.expect {
		slog.Debug("probe unexpected status", "url", p.url, "status", resp.StatusCode, "expected", p.expect)
		return false
	}
	return true
}

// Run checks immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
