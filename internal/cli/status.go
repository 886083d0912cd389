package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, queue depth and last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				st := a.engine.Status()
				return newFormatter(cmd, rootOpts).Render(st, func(w io.Writer) {
					online := "offline"
					if st.IsOnline {
						online = "online"
					}
					fmt.Fprintf(w, "Network:      %s\n", online)
					fmt.Fprintf(w, "Sync:         %s\n", st.SyncStatus)
					fmt.Fprintf(w, "Pending:      %d\n", st.PendingCount)
					fmt.Fprintf(w, "Dead letters: %d\n", st.DeadCount)
					fmt.Fprintf(w, "Last sync:    %s\n", st.LastSyncLabel)
				})
			})
		},
	}
}
