package engine

import (
	"context"
	"errors"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/recorder"
)

// UnassignedCashChange describes an update of the unassigned cash pool.
type UnassignedCashChange struct {
	PreviousAmount model.Amount
	NewAmount      model.Amount
	Author         string
	Source         string // "manual" (default) or "distribution"
	ParentHash     string // Optional explicit parent commit
}

// ActualBalanceChange describes an update of the real account balance.
type ActualBalanceChange struct {
	PreviousBalance model.Amount
	NewBalance      model.Amount
	IsManual        bool
	Author          string
	ParentHash      string
}

// DebtChange describes an add, modify or delete of a debt.
// PreviousData is nil for adds and NewData is nil for deletes.
type DebtChange struct {
	DebtID       string
	ChangeType   model.ChangeType
	PreviousData *model.Debt
	NewData      *model.Debt
	Author       string
	ParentHash   string
}

// EntityChange describes an add, modify or delete of an envelope,
// transaction or bill (debts are accepted too). An empty Description is
// generated from the payload.
type EntityChange struct {
	EntityType  model.EntityType
	EntityID    string
	ChangeType  model.ChangeType
	Before      model.Payload
	After       model.Payload
	Author      string
	Description string
	ParentHash  string
}

// TrackUnassignedCashChange records an update of the unassigned cash pool.
func (t *Tracker) TrackUnassignedCashChange(ctx context.Context, c UnassignedCashChange) (model.Commit, error) {
	ch := recorder.UnassignedCash(c.PreviousAmount, c.NewAmount, c.Source)
	return t.track(ctx, "track unassigned cash", c.Author, c.ParentHash, ch)
}

// TrackActualBalanceChange records an update of the actual account balance.
func (t *Tracker) TrackActualBalanceChange(ctx context.Context, c ActualBalanceChange) (model.Commit, error) {
	ch := recorder.ActualBalance(c.PreviousBalance, c.NewBalance, c.IsManual)
	return t.track(ctx, "track actual balance", c.Author, c.ParentHash, ch)
}

// TrackDebtChange records a debt mutation.
func (t *Tracker) TrackDebtChange(ctx context.Context, c DebtChange) (model.Commit, error) {
	const op = "track debt"
	ch, err := recorder.Debt(c.DebtID, c.ChangeType, c.PreviousData, c.NewData)
	if err != nil {
		return model.Commit{}, t.fail(&Error{
			Kind: KindValidation, Op: op, EntityType: model.EntityDebt, EntityID: c.DebtID, Err: err,
		})
	}
	return t.track(ctx, op, c.Author, c.ParentHash, ch)
}

// TrackEntityChange records a mutation of any keyed entity.
func (t *Tracker) TrackEntityChange(ctx context.Context, c EntityChange) (model.Commit, error) {
	const op = "track entity"
	ch, err := recorder.Entity(c.EntityType, c.EntityID, c.ChangeType, c.Before, c.After, c.Description)
	if err != nil {
		return model.Commit{}, t.fail(&Error{
			Kind: KindValidation, Op: op, EntityType: c.EntityType, EntityID: c.EntityID, Err: err,
		})
	}
	return t.track(ctx, op, c.Author, c.ParentHash, ch)
}

func (t *Tracker) track(ctx context.Context, op, author, parentHash string, ch model.Change) (model.Commit, error) {
	commit, changes, err := t.commit(ctx, commitRequest{
		op:         op,
		author:     t.author(ctx, author),
		parentHash: parentHash,
		changes:    []model.Change{ch},
	})
	if err != nil {
		return model.Commit{}, t.fail(err)
	}

	t.log.Info("history commit",
		"hash", commit.Hash,
		"seq", commit.Seq,
		"entity_type", ch.EntityType,
		"entity_id", ch.EntityID,
		"change_type", ch.ChangeType,
	)
	t.notify.publish(Notification{Kind: NotifyCommitted, Commit: commit, Changes: changes})
	return commit, nil
}

// author resolves the commit author: the request, then the identity
// provider, then recorder.DefaultAuthor.
func (t *Tracker) author(ctx context.Context, requested string) string {
	if requested == "" {
		requested = t.identity.Author(ctx)
	}
	return recorder.Author(requested)
}

// fail logs a write failure with its context and returns it unchanged.
// The mutation itself is the caller's; a failure here leaves it untracked.
func (t *Tracker) fail(err error) error {
	attrs := []any{"error", err}
	var te *Error
	if errors.As(err, &te) {
		attrs = append(attrs, "kind", te.Kind, "op", te.Op, "entity_type", te.EntityType, "entity_id", te.EntityID)
		if te.Hash != "" {
			attrs = append(attrs, "hash", te.Hash)
		}
	}
	t.log.Warn("history change untracked", attrs...)
	return err
}
