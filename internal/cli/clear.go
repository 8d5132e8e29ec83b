package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the entire history",
		Long: `Delete every commit and change. This cannot be undone; export first
if the history may be needed. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to clear history without --yes")
			}

			tracker, closeFn, err := rootOpts.openTracker()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := tracker.ClearHistory(cmd.Context()); err != nil {
				return trackerError("clear failed", err)
			}
			return rootOpts.formatter(cmd).Render(map[string]bool{"cleared": true}, func(w io.Writer) {
				fmt.Fprintln(w, "History cleared.")
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all history")
	return cmd
}
