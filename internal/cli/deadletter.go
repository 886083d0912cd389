package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/offsync/internal/deadletter"
)

// NewDeadLetterCommand creates the deadletter command group.
func NewDeadLetterCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dlq"},
		Short:   "Review actions that ran out of retries",
	}
	cmd.AddCommand(newDeadLetterListCommand(rootOpts))
	cmd.AddCommand(newDeadLetterRetryCommand(rootOpts))
	cmd.AddCommand(newDeadLetterRetryAllCommand(rootOpts))
	cmd.AddCommand(newDeadLetterDismissCommand(rootOpts))
	return cmd
}

func newDeadLetterListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				failed := a.engine.DeadLetters()
				return newFormatter(cmd, rootOpts).Render(failed, func(w io.Writer) {
					writeFailed(w, failed)
				})
			})
		},
	}
}

func newDeadLetterRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Move one action back to the queue with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.engine.Retry(ctx, id); err != nil {
					return fmt.Errorf("retry %s: %w", id, err)
				}
				return newFormatter(cmd, rootOpts).Render(map[string]string{"retried": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Requeued %s\n", id)
				})
			})
		},
	}
}

func newDeadLetterRetryAllCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-all",
		Short: "Move every dead-lettered action back to the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				n := a.engine.RetryAll(ctx)
				return newFormatter(cmd, rootOpts).Render(map[string]int{"retried": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Requeued %d %s\n", n, plural(n, "action"))
				})
			})
		},
	}
}

func newDeadLetterDismissCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <id>",
		Short: "Permanently drop one dead-lettered action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				if err := a.engine.Dismiss(ctx, id); err != nil {
					return fmt.Errorf("dismiss %s: %w", id, err)
				}
				return newFormatter(cmd, rootOpts).Render(map[string]string{"dismissed": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Dismissed %s\n", id)
				})
			})
		},
	}
}

func writeFailed(w io.Writer, failed []deadletter.FailedSyncAction) {
	if len(failed) == 0 {
		fmt.Fprintln(w, "No dead-lettered actions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tENTITY\tFAILED\tREASON")
	for _, f := range failed {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.Type, f.Entity, humanize.Time(f.FailedAt), f.Reason)
	}
	_ = tw.Flush()
}
