package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/offsync/internal/harness"
)

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "scenario <dir>",
		Short: "Run YAML sync scenarios against a scripted gateway",
		Long: `Run every scenario file under a directory.

Scenarios drive an in-memory engine with a fake clock and a scripted
gateway, then assert on the recorded request trace and the final
queue, dead-letter, cache and status tables. No network or database is
touched.

Exit codes:
  0 - all scenarios passed
  1 - at least one scenario failed
  2 - the directory could not be read

Example:
  offsync scenario ./internal/harness/testdata/scenarios
  offsync scenario ./scenarios --filter 'offline_*'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, rootOpts, args[0], filter)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "glob matched against scenario file names")
	return cmd
}

func runScenarios(cmd *cobra.Command, opts *RootOptions, dir, filter string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read scenario directory", err)
	}
	if !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is not a directory", dir))
	}

	paths, err := harness.FindScenarios(dir, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}
	if len(paths) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios found in %s", dir))
	}

	f := newFormatter(cmd, opts)
	f.VerboseLog("Running %d %s from %s", len(paths), plural(len(paths), "scenario"), dir)
	suite := harness.RunSuite(paths)

	if err := f.Render(suite, func(w io.Writer) {
		for _, run := range suite.Scenarios {
			mark := "PASS"
			if !run.Pass {
				mark = "FAIL"
			}
			fmt.Fprintf(w, "%s  %s (%s)\n", mark, run.Name, run.Path)
			for _, e := range run.Errors {
				fmt.Fprintf(w, "      %s\n", e)
			}
		}
		fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)
	}); err != nil {
		return err
	}

	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", suite.Failed, suite.Total))
	}
	return nil
}
