package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/offsync/internal/dispatch"
)

// callOutput is the JSON shape of a dispatched call.
type callOutput struct {
	Source   dispatch.Source `json:"source"`
	Data     json.RawMessage `json:"data,omitempty"`
	CachedAt *time.Time      `json:"cached_at,omitempty"`
	ActionID string          `json:"action_id,omitempty"`
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "call <METHOD> <path>",
		Short: "Send one request through the dispatcher",
		Long: `Send one request the way the application would.

GET reads go to the network and fall back to the cache. Writes go to the
network first and are queued for sync when the network is unreachable.
Server rejections are reported and never queued.

Example:
  offsync call GET /products
  offsync call POST /products --body '{"name":"Widget"}'
  offsync --offline call DELETE /products/42`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dispatch.Request{
				Method:   strings.ToUpper(args[0]),
				Endpoint: args[1],
			}
			if !strings.HasPrefix(req.Endpoint, "/") {
				return NewExitError(ExitCommandError, fmt.Sprintf("path %q must start with /", req.Endpoint))
			}
			if body != "" {
				if !json.Valid([]byte(body)) {
					return NewExitError(ExitCommandError, "--body is not valid JSON")
				}
				req.Body = json.RawMessage(body)
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				return runCall(ctx, cmd, rootOpts, a, req)
			})
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "JSON request body")
	return cmd
}

func runCall(ctx context.Context, cmd *cobra.Command, opts *RootOptions, a *app, req dispatch.Request) error {
	res, err := a.engine.Dispatcher().Do(ctx, req)
	if err != nil {
		return err
	}

	out := callOutput{Source: res.Source, Data: res.Data, CachedAt: res.CachedAt}
	if res.Action != nil {
		out.ActionID = res.Action.ID
	}
	f := newFormatter(cmd, opts)
	f.VerboseLog("%s %s served from %s", req.Method, req.Endpoint, res.Source)
	return f.Render(out, func(w io.Writer) {
		switch res.Source {
		case dispatch.SourceQueued:
			fmt.Fprintf(w, "Queued for sync as %s\n", out.ActionID)
		case dispatch.SourceCache:
			if res.CachedAt != nil {
				fmt.Fprintf(w, "(from cache, written %s)\n", humanize.Time(*res.CachedAt))
			}
		}
		if len(res.Data) > 0 {
			fmt.Fprintln(w, string(res.Data))
		}
	})
}
