package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/query"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Limit    int
	All      bool
	Entity   string
	EntityID string
	Object   string
	Author   string
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List commits, most recent first",
		Long: `List commits, most recent first.

Examples:
  tally log
  tally log --entity debt --limit 10
  tally log --object debt-car
  tally log --all --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", query.DefaultLimit, "maximum commits to list")
	cmd.Flags().BoolVar(&opts.All, "all", false, "list every commit")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "only commits touching this entity type")
	cmd.Flags().StringVar(&opts.EntityID, "id", "", "only commits touching this entity id (requires --entity)")
	cmd.Flags().StringVar(&opts.Object, "object", "", "only commits whose changes reference this id")
	cmd.Flags().StringVar(&opts.Author, "author", "", "only commits by this author")
	return cmd
}

func runLog(cmd *cobra.Command, opts *LogOptions) error {
	hopts := engine.HistoryOptions{
		Limit:    opts.Limit,
		EntityID: opts.EntityID,
		ObjectID: opts.Object,
		Author:   opts.Author,
	}
	if opts.All {
		hopts.Limit = query.NoLimit
	}
	if opts.Entity != "" {
		et, err := model.ParseEntityType(opts.Entity)
		if err != nil {
			return WrapExitError(ExitCommandError, "--entity", err)
		}
		hopts.EntityType = et
	}
	filter := query.Filter{EntityType: hopts.EntityType, EntityID: hopts.EntityID, Limit: hopts.Limit}
	if err := filter.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	tracker, closeFn, err := opts.openTracker()
	if err != nil {
		return err
	}
	defer closeFn()

	commits := tracker.GetHistory(cmd.Context(), hopts)
	return opts.formatter(cmd).Render(map[string]any{"commits": commits}, func(w io.Writer) {
		printCommits(w, commits)
	})
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <hash>",
		Short: "Show a commit and its changes",
		Long: `Show a commit and its changes. The hash may be abbreviated to any
unique prefix, such as the eight characters log prints.`,
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
			details, ok := tracker.GetCommitDetails(cmd.Context(), hash)
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("commit %s not found", args[0]))
			}
			return rootOpts.formatter(cmd).Render(details, func(w io.Writer) {
				printDetails(w, details)
			})
		},
	}
}

// resolveHash expands a unique hash prefix to the full commit hash.
func resolveHash(ctx context.Context, t *engine.Tracker, prefix string) (string, error) {
	hash, err := t.ResolveHash(ctx, prefix)
	if err != nil {
		return "", trackerError(fmt.Sprintf("cannot resolve commit %q", strings.TrimSpace(prefix)), err)
	}
	return hash, nil
}

// NewEntityCommand creates the entity command.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entity <type> <id>",
		Short: "Show the change history of one entity",
		Long: `Show every recorded change to one entity, most recent first.

Entity types: unassignedCash, actualBalance, debt, envelope, transaction, bill.
Singletons use the id "main".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := model.ParseEntityType(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "entity type", err)
			}

			tracker, closeFn, err := rootOpts.openTracker()
			if err != nil {
				return err
			}
			defer closeFn()

			records := tracker.GetEntityHistory(cmd.Context(), et, args[1])
			return rootOpts.formatter(cmd).Render(map[string]any{"changes": records}, func(w io.Writer) {
				printRecords(w, records)
			})
		},
	}
}

// NewRecentCommand creates the recent command.
func NewRecentCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent changes across all entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return NewExitError(ExitCommandError, "--limit must be positive")
			}

			tracker, closeFn, err := rootOpts.openTracker()
			if err != nil {
				return err
			}
			defer closeFn()

			records := tracker.GetRecentActivity(cmd.Context(), limit)
			return rootOpts.formatter(cmd).Render(map[string]any{"changes": records}, func(w io.Writer) {
				printRecords(w, records)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", engine.DefaultRecentLimit, "maximum changes to list")
	return cmd
}
