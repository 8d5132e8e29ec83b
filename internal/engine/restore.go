package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/recorder"
	"github.com/roach88/tally/internal/seal"
	"github.com/roach88/tally/internal/store"
)

// RestoreResult is the outcome of RestoreFromHistory.
type RestoreResult struct {
	// Snapshot is the decrypted state sealed in the source commit. The
	// caller applies it to the live budget data.
	Snapshot model.Snapshot `json:"snapshot"`

	// Source is the commit that was restored.
	Source model.Commit `json:"source"`

	// Commit is the forward commit recording the restoration. Nil when the
	// restoration changed nothing that history could describe.
	Commit *model.Commit `json:"commit,omitempty"`

	// Changes are the restoration changes carried by Commit.
	Changes []model.Change `json:"changes,omitempty"`
}

// RestoreFromHistory decrypts the snapshot of a commit and records the
// restoration as a new forward commit.
//
// History is never rewritten: restoring appends one change per entity in the
// snapshot, from its latest recorded state to the restored one. Applying the
// returned snapshot to the live data is the caller's job.
func (t *Tracker) RestoreFromHistory(ctx context.Context, hash string) (RestoreResult, error) {
	const op = "restore"

	source, err := t.store.ReadCommit(ctx, hash)
	if err != nil {
		kind := KindStorage
		if errors.Is(err, store.ErrNotFound) {
			kind = KindNotFound
		}
		return RestoreResult{}, t.fail(&Error{Kind: kind, Op: op, Hash: hash, Err: err})
	}

	snap, oerr := t.openSnapshot(ctx, source.EncryptedSnapshot)
	if oerr != nil {
		oerr.Op = op
		oerr.Hash = source.Hash
		return RestoreResult{}, t.fail(oerr)
	}

	changes, rerr := t.restoreChanges(ctx, snap, source.Hash)
	if rerr != nil {
		rerr.Op = op
		rerr.Hash = source.Hash
		return RestoreResult{}, t.fail(rerr)
	}

	result := RestoreResult{Snapshot: snap, Source: source}
	if len(changes) == 0 {
		t.log.Info("history restore: nothing to record", "hash", source.Hash)
		return result, nil
	}

	commit, stored, err := t.commit(ctx, commitRequest{
		op:      op,
		author:  t.author(ctx, ""),
		changes: changes,
	})
	if err != nil {
		return RestoreResult{}, t.fail(err)
	}

	result.Commit = &commit
	result.Changes = stored

	t.log.Info("history restored",
		"source", source.Hash,
		"hash", commit.Hash,
		"seq", commit.Seq,
		"changes", len(stored),
	)
	t.notify.publish(Notification{Kind: NotifyRestored, Commit: commit, Changes: stored})
	return result, nil
}

// openSnapshot decrypts and decodes a sealed snapshot with the key supplied
// for this operation.
func (t *Tracker) openSnapshot(ctx context.Context, sealed string) (model.Snapshot, *Error) {
	sealer, err := t.sealer(ctx)
	if err != nil {
		return model.Snapshot{}, &Error{Kind: KindDecryption, Err: err}
	}

	snap, err := sealer.OpenSnapshot(sealed)
	if err != nil {
		kind := KindSerialization
		if errors.Is(err, seal.ErrDecrypt) {
			kind = KindDecryption
		}
		return model.Snapshot{}, &Error{Kind: kind, Err: err}
	}
	return snap, nil
}

// restoreChanges builds one change per entity in the snapshot, in entity
// type order then id order so the commit is deterministic.
func (t *Tracker) restoreChanges(ctx context.Context, snap model.Snapshot, sourceHash string) ([]model.Change, *Error) {
	var changes []model.Change
	for _, et := range model.EntityTypes {
		byID := snap.Entities[et]
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			current, err := t.currentState(ctx, et, id)
			if err != nil {
				return nil, &Error{Kind: KindStorage, EntityType: et, EntityID: id, Err: err}
			}
			if ch, ok := recorder.Restore(et, id, current, byID[id], sourceHash); ok {
				changes = append(changes, ch)
			}
		}
	}
	return changes, nil
}

// currentState returns the latest recorded state of an entity, or nil when
// it has no history or was last deleted.
func (t *Tracker) currentState(ctx context.Context, et model.EntityType, id string) (model.Payload, error) {
	latest, err := t.store.LatestChangeForEntity(ctx, et, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current state: %w", err)
	}
	return latest.AfterData, nil
}
