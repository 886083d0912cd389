package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/offsync/internal/config"
	"github.com/roach88/offsync/internal/statusapi"
	"github.com/roach88/offsync/internal/telemetry"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and the local status API",
		Long: `Run the sync engine until interrupted.

The engine drains the outbox whenever connectivity returns and prefetches
critical resources on a fixed interval. The status API listens on
OFFSYNC_STATUS_ADDR (or --addr) for the UI.

Example:
  offsync serve --db ./offsync.db --config ./resources.yaml
  OFFSYNC_PROBE_URL=https://example.com/generate_204 offsync serve -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "status API listen address (default $OFFSYNC_STATUS_ADDR)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions, addr string) error {
	configureLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelInfo)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdownTracing, err := telemetry.Setup(ctx, a.cfg.OTelEndpoint, telemetry.ServiceName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), config.ShutdownTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if addr == "" {
		addr = a.cfg.StatusAddr
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           statusapi.NewServer(a.engine),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.engine.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(gctx), config.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.prober != nil {
		g.Go(func() error {
			a.prober.Run(gctx)
			return nil
		})
	}

	slog.Info("offsync serving", "status_addr", lis.Addr().String(), "db", a.cfg.DB, "base_url", a.cfg.BaseURL)
	fmt.Fprintf(cmd.OutOrStdout(), "Status API listening on http://%s\n", lis.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("offsync stopped gracefully")
	return nil
}
