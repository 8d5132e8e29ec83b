package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out       string
	Snapshots bool
	Limit     int
	Entity    string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the history as a JSON bundle",
		Long: `Export commits and their changes, oldest first, as a JSON bundle.
With --snapshots every snapshot is decrypted and included, which requires
the snapshot key.

Examples:
  tally export --out history.json
  tally export --snapshots --entity debt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the bundle to this file instead of stdout")
	cmd.Flags().BoolVar(&opts.Snapshots, "snapshots", false, "include decrypted snapshots")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "export only the most recent commits (0 = all)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "only commits touching this entity type")
	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}
	eopts := engine.ExportOptions{Limit: opts.Limit, IncludeSnapshots: opts.Snapshots}
	if opts.Entity != "" {
		et, err := model.ParseEntityType(opts.Entity)
		if err != nil {
			return WrapExitError(ExitCommandError, "--entity", err)
		}
		eopts.EntityType = et
	}

	tracker, closeFn, err := opts.openTracker()
	if err != nil {
		return err
	}
	defer closeFn()

	bundle, err := tracker.ExportHistory(cmd.Context(), eopts)
	if err != nil {
		return trackerError("export failed", err)
	}

	if opts.Out == "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := os.WriteFile(opts.Out, append(data, '\n'), 0o600); err != nil {
		return WrapExitError(ExitCommandError, "write export", err)
	}

	summary := map[string]any{"exportId": bundle.ExportID, "path": opts.Out, "commits": len(bundle.Events)}
	return opts.formatter(cmd).Render(summary, func(w io.Writer) {
		fmt.Fprintf(w, "Exported %d commits to %s\n", len(bundle.Events), opts.Out)
	})
}
