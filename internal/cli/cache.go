package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// cacheRow describes one cached read.
type cacheRow struct {
	Key       string    `json:"key"`
	WrittenAt time.Time `json:"written_at"`
	Bytes     int       `json:"bytes"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect cached reads",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached signatures with their age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				c := a.engine.Cache()
				rows := []cacheRow{}
				for _, key := range c.Keys(ctx) {
					entry, ok := c.Read(ctx, key)
					if !ok {
						continue
					}
					rows = append(rows, cacheRow{Key: key, WrittenAt: entry.WrittenAt, Bytes: len(entry.Value)})
				}
				return newFormatter(cmd, rootOpts).Render(rows, func(w io.Writer) {
					if len(rows) == 0 {
						fmt.Fprintln(w, "Cache is empty.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "KEY\tWRITTEN\tSIZE")
					for _, r := range rows {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Key, humanize.Time(r.WrittenAt), humanize.Bytes(uint64(r.Bytes)))
					}
					_ = tw.Flush()
				})
			})
		},
	})
	return cmd
}
