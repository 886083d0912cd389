package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/offsync/internal/outbox"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the outbox of pending writes",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueClearCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued actions in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				pending := a.engine.Pending()
				return newFormatter(cmd, rootOpts).Render(pending, func(w io.Writer) {
					writeActions(w, pending)
				})
			})
		},
	}
}

func newQueueClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued action without replaying it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "queue clear discards unsynced writes; pass --yes to confirm")
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				n := a.engine.ClearQueue(ctx)
				return newFormatter(cmd, rootOpts).Render(map[string]int{"cleared": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Cleared %d queued %s\n", n, plural(n, "action"))
				})
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm discarding queued actions")
	return cmd
}

func writeActions(w io.Writer, actions []outbox.SyncAction) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tENTITY\tRETRIES\tENQUEUED\tLAST ERROR")
	for _, act := range actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			act.ID, act.Type, act.Entity, act.Retries, humanize.Time(act.EnqueuedAt), act.LastError)
	}
	_ = tw.Flush()
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
