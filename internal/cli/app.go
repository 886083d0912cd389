package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/offsync/internal/config"
	"github.com/roach88/offsync/internal/engine"
	"github.com/roach88/offsync/internal/gateway"
	"github.com/roach88/offsync/internal/kv"
	"github.com/roach88/offsync/internal/netwatch"
)

// app is the wired engine one command works against.
type app struct {
	cfg    config.Config
	store  *kv.SQLite
	prober *netwatch.Prober // nil unless a probe URL is configured
	engine *engine.Engine
}

// openApp loads configuration and opens the store, gateway client and
// engine. The caller must Close the app.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.DB = opts.DB
	}

	slog.Debug("opening database", "path", cfg.DB)
	store, err := kv.Open(cfg.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	session := gateway.NewSession(cfg.Token)
	client, err := gateway.New(cfg.BaseURL,
		gateway.WithSession(session),
		gateway.WithCallTimeout(cfg.CallTimeout),
		gateway.WithAuthPath(cfg.AuthPath),
	)
	if err != nil {
		_ = store.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create gateway client", err)
	}

	a := &app{cfg: cfg, store: store}

	var observer netwatch.Observer
	switch {
	case opts.Offline:
		observer = netwatch.NewStatic(false)
	case cfg.ProbeURL != "":
		a.prober = netwatch.NewProber(cfg.ProbeURL,
			netwatch.WithExpectedStatus(cfg.ProbeStatus),
			netwatch.WithInterval(cfg.ProbeInterval),
		)
		online := a.prober.Check(ctx)
		slog.Debug("reachability probed", "url", cfg.ProbeURL, "online", online)
		observer = a.prober
	default:
		observer = netwatch.NewStatic(true)
	}

	a.engine = engine.New(ctx, store, client, observer,
		engine.WithResources(cfg.Resources...),
		engine.WithPrefetchInterval(cfg.PrefetchInterval),
		engine.WithPrefetchConcurrency(cfg.PrefetchConcurrency),
		engine.WithRevertDelay(cfg.RevertDelay),
		engine.WithSession(session),
		engine.WithLogoutPath(cfg.LogoutPath),
	)
	return a, nil
}

// Close closes the store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
