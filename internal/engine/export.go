package engine

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/query"
)

// ExportOptions selects what ExportHistory includes.
type ExportOptions struct {
	Limit            int              // 0 or -1 = all commits, otherwise the N most recent
	EntityType       model.EntityType // Only commits touching this entity type
	IncludeSnapshots bool             // Decrypt and embed each commit's snapshot
}

// ExportEvent is one commit in an export bundle.
type ExportEvent struct {
	Commit   model.Commit    `json:"commit"`
	Changes  []model.Change  `json:"changes"`
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
}

// ExportSettings records how a bundle was produced.
type ExportSettings struct {
	IncludeSnapshots  bool             `json:"includeSnapshots"`
	EntityType        model.EntityType `json:"entityType,omitempty"`
	Limit             int              `json:"limit"`
	CommitCount       int              `json:"commitCount"`
	DeviceFingerprint string           `json:"deviceFingerprint"`
	EngineVersion     string           `json:"engineVersion"`
}

// ExportBundle is a serializable download of the history.
type ExportBundle struct {
	ExportID   string         `json:"exportId"`
	ExportedAt int64          `json:"exportedAt"`
	Version    string         `json:"version"`
	Events     []ExportEvent  `json:"events"`
	Settings   ExportSettings `json:"settings"`
}

// ExportHistory produces a bundle of commits in chronological order.
//
// When snapshots are requested they are decrypted concurrently, bounded by
// the export worker count. Any failure aborts the export.
func (t *Tracker) ExportHistory(ctx context.Context, opts ExportOptions) (ExportBundle, error) {
	const op = "export"

	limit := opts.Limit
	if limit == 0 {
		limit = query.NoLimit
	}
	commits, err := t.store.ReadCommits(ctx, query.Filter{EntityType: opts.EntityType, Limit: limit})
	if err != nil {
		return ExportBundle{}, t.fail(newError(KindStorage, op, err))
	}
	slices.Reverse(commits)

	events := make([]ExportEvent, len(commits))
	for i, c := range commits {
		changes, err := t.store.ReadChangesForCommit(ctx, c.Hash)
		if err != nil {
			return ExportBundle{}, t.fail(&Error{Kind: KindStorage, Op: op, Hash: c.Hash, Err: err})
		}
		events[i] = ExportEvent{Commit: c, Changes: changes}
	}

	if opts.IncludeSnapshots && len(events) > 0 {
		if err := t.decryptSnapshots(ctx, events); err != nil {
			err.Op = op
			return ExportBundle{}, t.fail(err)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return ExportBundle{}, t.fail(newError(KindSerialization, op, err))
	}

	bundle := ExportBundle{
		ExportID:   id.String(),
		ExportedAt: t.clock.NowMillis(),
		Version:    model.ExportVersion,
		Events:     events,
		Settings: ExportSettings{
			IncludeSnapshots:  opts.IncludeSnapshots,
			EntityType:        opts.EntityType,
			Limit:             opts.Limit,
			CommitCount:       len(events),
			DeviceFingerprint: t.identity.DeviceFingerprint(ctx),
			EngineVersion:     model.EngineVersion,
		},
	}
	t.log.Info("history exported", "export_id", bundle.ExportID, "commits", len(events), "snapshots", opts.IncludeSnapshots)
	return bundle, nil
}

// decryptSnapshots opens every event's snapshot in place.
func (t *Tracker) decryptSnapshots(ctx context.Context, events []ExportEvent) *Error {
	sealer, err := t.sealer(ctx)
	if err != nil {
		return &Error{Kind: KindDecryption, Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.exportWorkers)

	failures := make([]*Error, len(events))
	for i := range events {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snap, err := sealer.OpenSnapshot(events[i].Commit.EncryptedSnapshot)
			if err != nil {
				failures[i] = &Error{Kind: KindDecryption, Hash: events[i].Commit.Hash, Err: err}
				return err
			}
			events[i].Snapshot = &snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, f := range failures {
			if f != nil {
				return f
			}
		}
		return &Error{Kind: KindStorage, Err: err}
	}
	return nil
}
