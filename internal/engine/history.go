package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/query"
	"github.com/roach88/tally/internal/store"
)

// DefaultRecentLimit is the number of changes GetRecentActivity returns
// when no limit is given.
const DefaultRecentLimit = 10

// HistoryOptions filters GetHistory.
type HistoryOptions struct {
	Limit      int              // 0 = query.DefaultLimit, -1 = all
	EntityType model.EntityType // Only commits touching this entity type
	EntityID   string           // Only commits touching this entity (requires EntityType)
	ObjectID   string           // Only commits whose changes reference this id
	Author     string
	Since      int64 // Epoch ms, inclusive
	Until      int64 // Epoch ms, inclusive
}

// CommitDetails is a commit joined with its changes.
type CommitDetails struct {
	Commit  model.Commit   `json:"commit"`
	Changes []model.Change `json:"changes"`
}

// ErrAmbiguousHash is wrapped by ResolveHash when a prefix matches more than
// one commit.
var ErrAmbiguousHash = errors.New("ambiguous commit hash prefix")

// ResolveHash expands a commit hash or unique hash prefix to the full hash.
//
// Unlike the query methods it does not degrade: a malformed or ambiguous
// prefix is a ValidationError, no match is a NotFoundError and a read
// failure is a StorageError.
func (t *Tracker) ResolveHash(ctx context.Context, prefix string) (string, error) {
	const op = "resolve hash"
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || len(prefix) > 64 || strings.Trim(prefix, "0123456789abcdef") != "" {
		return "", &Error{Kind: KindValidation, Op: op, Hash: prefix, Err: fmt.Errorf("%q is not a commit hash", prefix)}
	}

	hashes, err := t.store.ReadHashesWithPrefix(ctx, prefix, 2)
	if err != nil {
		t.log.Error("resolve hash failed", "prefix", prefix, "error", err)
		return "", &Error{Kind: KindStorage, Op: op, Hash: prefix, Err: err}
	}
	switch len(hashes) {
	case 0:
		return "", &Error{Kind: KindNotFound, Op: op, Hash: prefix, Err: store.ErrNotFound}
	case 1:
		return hashes[0], nil
	default:
		return "", &Error{Kind: KindValidation, Op: op, Hash: prefix, Err: ErrAmbiguousHash}
	}
}

// GetHistory returns commits, most recent first.
// Read failures are logged and yield an empty result.
func (t *Tracker) GetHistory(ctx context.Context, opts HistoryOptions) []model.Commit {
	commits, err := t.store.ReadCommits(ctx, query.Filter{
		EntityType: opts.EntityType,
		EntityID:   opts.EntityID,
		ObjectID:   opts.ObjectID,
		Author:     opts.Author,
		Since:      opts.Since,
		Until:      opts.Until,
		Limit:      opts.Limit,
	})
	if err != nil {
		t.log.Error("get history failed", "error", err, "entity_type", opts.EntityType, "object_id", opts.ObjectID)
		return []model.Commit{}
	}
	return commits
}

// GetCommitDetails returns a commit and its changes.
// The boolean is false when the commit does not exist or cannot be read.
func (t *Tracker) GetCommitDetails(ctx context.Context, hash string) (CommitDetails, bool) {
	commit, err := t.store.ReadCommit(ctx, hash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.log.Error("get commit failed", "error", err, "hash", hash)
		}
		return CommitDetails{}, false
	}

	changes, err := t.store.ReadChangesForCommit(ctx, hash)
	if err != nil {
		t.log.Error("get commit changes failed", "error", err, "hash", hash)
		return CommitDetails{}, false
	}
	return CommitDetails{Commit: commit, Changes: changes}, true
}

// GetEntityHistory returns every change to one entity, most recent first.
func (t *Tracker) GetEntityHistory(ctx context.Context, entityType model.EntityType, entityID string) []model.ChangeRecord {
	records, err := t.store.ReadChangesByEntity(ctx, entityType, entityID)
	if err != nil {
		t.log.Error("get entity history failed", "error", err, "entity_type", entityType, "entity_id", entityID)
		return []model.ChangeRecord{}
	}
	return records
}

// GetEntityTypeHistory returns the changes to one entity type, most recent
// first, bounded by limit (-1 = all, 0 = query.DefaultLimit).
func (t *Tracker) GetEntityTypeHistory(ctx context.Context, entityType model.EntityType, limit int) []model.ChangeRecord {
	if limit == 0 {
		limit = query.DefaultLimit
	}
	records, err := t.store.ReadChangesByEntityType(ctx, entityType, limit)
	if err != nil {
		t.log.Error("get entity type history failed", "error", err, "entity_type", entityType)
		return []model.ChangeRecord{}
	}
	return records
}

// GetObjectHistory returns the commits whose changes reference objectID,
// either as their entity id or as the id inside their before/after data.
func (t *Tracker) GetObjectHistory(ctx context.Context, objectID string, limit int) []CommitDetails {
	commits := t.GetHistory(ctx, HistoryOptions{ObjectID: objectID, Limit: limit})

	out := make([]CommitDetails, 0, len(commits))
	for _, c := range commits {
		changes, err := t.store.ReadChangesForCommit(ctx, c.Hash)
		if err != nil {
			t.log.Error("get object history failed", "error", err, "hash", c.Hash, "object_id", objectID)
			return []CommitDetails{}
		}
		out = append(out, CommitDetails{Commit: c, Changes: changes})
	}
	return out
}

// GetRecentActivity returns the latest changes across all entities.
// A zero limit uses DefaultRecentLimit; -1 returns everything.
func (t *Tracker) GetRecentActivity(ctx context.Context, limit int) []model.ChangeRecord {
	if limit == 0 {
		limit = DefaultRecentLimit
	}
	records, err := t.store.ReadRecentChanges(ctx, limit)
	if err != nil {
		t.log.Error("get recent activity failed", "error", err)
		return []model.ChangeRecord{}
	}
	return records
}

// Change description prefixes.
const (
	PrefixAdd    = "\u2795 "
	PrefixModify = "\u270f\ufe0f "
	PrefixDelete = "\U0001f5d1\ufe0f "
	PrefixOther  = "\U0001f504 "
)

// FormatChangeDescription prefixes a change's description with a symbol for
// its change type.
func FormatChangeDescription(ch model.Change) string {
	prefix := PrefixOther
	switch ch.ChangeType {
	case model.ChangeAdd:
		prefix = PrefixAdd
	case model.ChangeModify:
		prefix = PrefixModify
	case model.ChangeDelete:
		prefix = PrefixDelete
	}
	return prefix + ch.Description
}
