package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued actions now",
		Long: `Run one drain of the outbox.

Each queued action gets one attempt. Successes leave the queue, failures
stay queued with their retry count bumped, and actions out of retries
move to the dead-letter ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				res, err := a.engine.ProcessQueue(ctx)
				if err != nil {
					return err
				}
				return newFormatter(cmd, rootOpts).Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "Synced %d, failed %d, dead-lettered %d\n", res.Processed, res.Failed, res.Dead)
					if res.Dead > 0 {
						fmt.Fprintln(w, "Run 'offsync deadletter list' to review failures.")
					}
				})
			})
		},
	}
}

// NewPrefetchCommand creates the prefetch command.
func NewPrefetchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prefetch",
		Short: "Refresh stale critical resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				res, err := a.engine.Prefetch(ctx)
				if err != nil {
					return err
				}
				return newFormatter(cmd, rootOpts).Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "Refreshed %d, fresh %d, failed %d\n", res.Refreshed, res.Fresh, res.Failed)
					endpoints := make([]string, 0, len(res.Errors))
					for ep := range res.Errors {
						endpoints = append(endpoints, ep)
					}
					slices.Sort(endpoints)
					for _, ep := range endpoints {
						fmt.Fprintf(w, "  %s: %s\n", ep, res.Errors[ep])
					}
				})
			})
		},
	}
}
