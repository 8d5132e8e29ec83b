package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/recorder"
)

// TrackOptions holds flags shared by the track subcommands.
type TrackOptions struct {
	*RootOptions
	Author string // overrides TALLY_AUTHOR for this commit
}

// NewTrackCommand creates the track command and its subcommands.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Record a budget change as a commit",
		Long: `Record a budget change as a new commit at the head of the history.

Examples:
  tally track cash --from 100.00 --to 250.00
  tally track balance --from 1000 --to 980 --manual
  tally track debt add debt-car --name "Car Loan" --balance 12000
  tally track entity envelope add env-food --data '{"id":"env-food","name":"Groceries","balance":40000}'`,
	}
	cmd.PersistentFlags().StringVar(&opts.Author, "author", "", "commit author (default $TALLY_AUTHOR)")

	cmd.AddCommand(newTrackCashCommand(opts))
	cmd.AddCommand(newTrackBalanceCommand(opts))
	cmd.AddCommand(newTrackDebtCommand(opts))
	cmd.AddCommand(newTrackEntityCommand(opts))
	return cmd
}

func newTrackCashCommand(opts *TrackOptions) *cobra.Command {
	var from, to string
	var distribution bool

	cmd := &cobra.Command{
		Use:   "cash",
		Short: "Record an unassigned cash update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, next, err := parseAmounts(from, to)
			if err != nil {
				return err
			}
			source := recorder.SourceManual
			if distribution {
				source = recorder.SourceDistribution
			}
			return opts.commit(cmd, func(ctx context.Context, t *engine.Tracker) (model.Commit, error) {
				return t.TrackUnassignedCashChange(ctx, engine.UnassignedCashChange{
					PreviousAmount: prev,
					NewAmount:      next,
					Author:         opts.Author,
					Source:         source,
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "previous amount")
	cmd.Flags().StringVar(&to, "to", "", "new amount")
	cmd.Flags().BoolVar(&distribution, "distribution", false, "the change distributed cash to envelopes")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newTrackBalanceCommand(opts *TrackOptions) *cobra.Command {
	var from, to string
	var manual bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Record an actual balance update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, next, err := parseAmounts(from, to)
			if err != nil {
				return err
			}
			return opts.commit(cmd, func(ctx context.Context, t *engine.Tracker) (model.Commit, error) {
				return t.TrackActualBalanceChange(ctx, engine.ActualBalanceChange{
					PreviousBalance: prev,
					NewBalance:      next,
					IsManual:        manual,
					Author:          opts.Author,
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "previous balance")
	cmd.Flags().StringVar(&to, "to", "", "new balance")
	cmd.Flags().BoolVar(&manual, "manual", false, "the balance was edited by hand")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// debtFlags are the editable debt fields. On modify only the flags given
// are applied to the current state.
type debtFlags struct {
	name, creditor, kind    string
	balance, minimumPayment string
	interestRateBps         int64
}

func (f *debtFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "debt name")
	cmd.Flags().StringVar(&f.creditor, "creditor", "", "creditor")
	cmd.Flags().StringVar(&f.kind, "type", "", "debt type (credit card, loan, ...)")
	cmd.Flags().StringVar(&f.balance, "balance", "", "current balance")
	cmd.Flags().StringVar(&f.minimumPayment, "min-payment", "", "minimum payment")
	cmd.Flags().Int64Var(&f.interestRateBps, "rate-bps", 0, "interest rate in basis points (525 = 5.25%)")
}

// apply copies the changed flags onto d.
func (f *debtFlags) apply(cmd *cobra.Command, d *model.Debt) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		d.Name = f.name
	}
	if changed("creditor") {
		d.Creditor = f.creditor
	}
	if changed("type") {
		d.Type = f.kind
	}
	if changed("balance") {
		a, err := model.ParseAmount(f.balance)
		if err != nil {
			return WrapExitError(ExitCommandError, "--balance", err)
		}
		d.CurrentBalance = a
	}
	if changed("min-payment") {
		a, err := model.ParseAmount(f.minimumPayment)
		if err != nil {
			return WrapExitError(ExitCommandError, "--min-payment", err)
		}
		d.MinimumPayment = a
	}
	if changed("rate-bps") {
		d.InterestRateBps = f.interestRateBps
	}
	return nil
}

func newTrackDebtCommand(opts *TrackOptions) *cobra.Command {
	flags := &debtFlags{}

	cmd := &cobra.Command{
		Use:   "debt <add|modify|delete> <id>",
		Short: "Record a debt change",
		Long: `Record adding, modifying or deleting a debt.

Modify and delete start from the debt's latest recorded state; modify
applies only the flags given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changeType, err := model.ParseChangeType(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "change type", err)
			}
			id := args[1]

			return opts.commit(cmd, func(ctx context.Context, t *engine.Tracker) (model.Commit, error) {
				var previous *model.Debt
				if changeType != model.ChangeAdd {
					current, ok := currentPayload(ctx, t, model.EntityDebt, id).(model.Debt)
					if !ok {
						return model.Commit{}, NewExitError(ExitCommandError, fmt.Sprintf("no recorded debt %q", id))
					}
					previous = &current
				}

				var next *model.Debt
				if changeType != model.ChangeDelete {
					d := model.Debt{ID: id}
					if previous != nil {
						d = *previous
					}
					if err := flags.apply(cmd, &d); err != nil {
						return model.Commit{}, err
					}
					next = &d
				}

				return t.TrackDebtChange(ctx, engine.DebtChange{
					DebtID:       id,
					ChangeType:   changeType,
					PreviousData: previous,
					NewData:      next,
					Author:       opts.Author,
				})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newTrackEntityCommand(opts *TrackOptions) *cobra.Command {
	var data, description string

	cmd := &cobra.Command{
		Use:   "entity <type> <add|modify|delete> <id>",
		Short: "Record an envelope, transaction or bill change",
		Long: `Record a change of any keyed entity. --data is the new state as JSON
(required for add and modify). The previous state is the entity's latest
recorded state.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, err := model.ParseEntityType(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "entity type", err)
			}
			if entityType.IsSingleton() {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("%s is tracked with 'track cash' or 'track balance'", entityType))
			}
			changeType, err := model.ParseChangeType(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "change type", err)
			}
			id := args[2]

			var after model.Payload
			if changeType != model.ChangeDelete {
				if data == "" {
					return NewExitError(ExitCommandError, "--data is required for "+string(changeType))
				}
				if !json.Valid([]byte(data)) {
					return NewExitError(ExitCommandError, "--data is not valid JSON")
				}
				if after, err = model.DecodePayload(entityType, []byte(data)); err != nil {
					return WrapExitError(ExitCommandError, "--data", err)
				}
			}

			return opts.commit(cmd, func(ctx context.Context, t *engine.Tracker) (model.Commit, error) {
				before := currentPayload(ctx, t, entityType, id)
				if changeType != model.ChangeAdd && before == nil {
					return model.Commit{}, NewExitError(ExitCommandError, fmt.Sprintf("no recorded %s %q", entityType, id))
				}
				return t.TrackEntityChange(ctx, engine.EntityChange{
					EntityType:  entityType,
					EntityID:    id,
					ChangeType:  changeType,
					Before:      before,
					After:       after,
					Author:      opts.Author,
					Description: description,
				})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "new state as JSON")
	cmd.Flags().StringVar(&description, "description", "", "change description (generated when empty)")
	return cmd
}

// commit opens the tracker, runs fn and prints the new commit.
func (o *TrackOptions) commit(cmd *cobra.Command, fn func(ctx context.Context, t *engine.Tracker) (model.Commit, error)) error {
	tracker, closeFn, err := o.openTracker()
	if err != nil {
		return err
	}
	defer closeFn()

	commit, err := fn(cmd.Context(), tracker)
	if err != nil {
		if _, ok := err.(*ExitError); ok {
			return err
		}
		return trackerError("change not recorded", err)
	}

	return o.formatter(cmd).Render(commit, func(w io.Writer) {
		printCommit(w, commit)
	})
}

// currentPayload returns an entity's latest recorded state, or nil when it
// has none or was deleted.
func currentPayload(ctx context.Context, t *engine.Tracker, et model.EntityType, id string) model.Payload {
	records := t.GetEntityHistory(ctx, et, id)
	if len(records) == 0 {
		return nil
	}
	return records[0].AfterData
}

func parseAmounts(from, to string) (prev, next model.Amount, err error) {
	if prev, err = model.ParseAmount(from); err != nil {
		return 0, 0, WrapExitError(ExitCommandError, "--from", err)
	}
	if next, err = model.ParseAmount(to); err != nil {
		return 0, 0, WrapExitError(ExitCommandError, "--to", err)
	}
	return prev, next, nil
}
