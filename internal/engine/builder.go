package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/seal"
	"github.com/roach88/tally/internal/store"
)

// commitRequest is the input to the commit builder.
type commitRequest struct {
	op         string
	author     string
	parentHash string // Explicit parent; empty links to the current head
	changes    []model.Change
}

// commit runs the commit builder: validate, seal, hash, append.
//
// The steps either all succeed or nothing is written. Once the store write
// has started it runs to completion even if ctx is cancelled, so a caller
// going away cannot leave the outcome ambiguous.
func (t *Tracker) commit(ctx context.Context, req commitRequest) (model.Commit, []model.Change, error) {
	if err := ctx.Err(); err != nil {
		return model.Commit{}, nil, newError(KindStorage, req.op, err).withEntity(req.changes)
	}

	if len(req.changes) == 0 {
		return model.Commit{}, nil, newError(KindValidation, req.op, errors.New("no changes to commit"))
	}
	for _, ch := range req.changes {
		if err := ch.Validate(); err != nil {
			return model.Commit{}, nil, newError(KindValidation, req.op, err).withEntity([]model.Change{ch})
		}
		if err := t.schema.ValidateChange(ch); err != nil {
			return model.Commit{}, nil, newError(KindValidation, req.op, err).withEntity([]model.Change{ch})
		}
	}

	sealer, err := t.sealer(ctx)
	if err != nil {
		return model.Commit{}, nil, newError(KindEncryption, req.op, err).withEntity(req.changes)
	}

	timestamp := t.clock.NowMillis()
	device := t.identity.DeviceFingerprint(ctx)

	snapshot := model.NewSnapshot(timestamp, req.changes...)
	encrypted, err := sealer.SealSnapshot(snapshot)
	if err != nil {
		kind := KindEncryption
		if errors.Is(err, model.ErrSerialization) {
			kind = KindSerialization
		}
		return model.Commit{}, nil, newError(kind, req.op, err).withEntity(req.changes)
	}

	build := func(head store.Head) (model.Commit, []model.Change, error) {
		commit := model.Commit{
			Timestamp:         timestamp,
			Message:           commitMessage(req.changes),
			Author:            req.author,
			ParentHash:        req.parentHash,
			EncryptedSnapshot: encrypted,
			DeviceFingerprint: device,
		}
		if commit.ParentHash == "" {
			commit.ParentHash = head.Hash
		}

		hash, err := model.CommitHash(commit, req.changes)
		if err != nil {
			return model.Commit{}, nil, newError(KindSerialization, req.op, err).withEntity(req.changes)
		}
		commit.Hash = hash
		return commit, req.changes, nil
	}

	commit, changes, err := t.store.AppendCommit(context.WithoutCancel(ctx), build)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			return model.Commit{}, nil, err
		}
		return model.Commit{}, nil, newError(KindStorage, req.op, err).withEntity(req.changes)
	}
	return commit, changes, nil
}

// sealer builds a cipher from the key supplied for this operation.
func (t *Tracker) sealer(ctx context.Context) (*seal.Sealer, error) {
	key, err := t.keys.SnapshotKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot key: %w", err)
	}
	return seal.New(key)
}

// commitMessage summarizes the changes of a commit.
func commitMessage(changes []model.Change) string {
	msg := changes[0].Description
	if len(changes) > 1 {
		msg = fmt.Sprintf("%s (+%d more)", msg, len(changes)-1)
	}
	return msg
}
