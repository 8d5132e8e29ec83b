package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the hash chain of the whole history",
		Long: `Recompute every commit hash and check every parent link in insertion
order, stopping at the first problem.

Exit codes:
  0 - History is intact
  1 - A commit was altered or the chain is broken
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closeFn, err := rootOpts.openTracker()
			if err != nil {
				return err
			}
			defer closeFn()

			report := tracker.VerifyIntegrity(cmd.Context())
			err = rootOpts.formatter(cmd).Render(report, func(w io.Writer) {
				if report.Valid {
					fmt.Fprintf(w, "\u2713 History intact (%d commits)\n", report.Checked)
					return
				}
				fmt.Fprintf(w, "\u2717 History invalid at seq %d (%s)\n", report.Seq, report.FirstInvalidHash)
				fmt.Fprintf(w, "  %s\n", report.Reason)
				fmt.Fprintf(w, "  %d commits verified before the failure\n", report.Checked)
			})
			if err != nil {
				return err
			}
			if !report.Valid {
				return NewExitError(ExitFailure, "history integrity check failed")
			}
			return nil
		},
	}
}
