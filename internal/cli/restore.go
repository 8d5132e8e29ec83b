package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/model"
)

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <hash>",
		Short: "Restore the entities of a past commit",
		Long: `Decrypt a past commit's snapshot and record the entities it captured
as a new commit. History is never rewritten; the restore is appended.

The hash may be abbreviated to any unique prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closeFn, err := rootOpts.openTracker()
			if err != nil {
				return err
			}
			defer closeFn()

			hash, err := resolveHash(cmd.Context(), tracker, args[0])
			if err != nil {
				return err
			}
			res, err := tracker.RestoreFromHistory(cmd.Context(), hash)
			if err != nil {
				return trackerError("restore failed", err)
			}

			return rootOpts.formatter(cmd).Render(res, func(w io.Writer) {
				if res.Commit == nil {
					fmt.Fprintf(w, "Nothing to restore: entities already match commit %s\n", model.ShortHash(hash))
					return
				}
				printCommit(w, *res.Commit)
				for _, ch := range res.Changes {
					fmt.Fprintf(w, "  %s %s: %s\n", ch.EntityType, ch.EntityID, ch.ChangeType)
				}
			})
		},
	}
}
