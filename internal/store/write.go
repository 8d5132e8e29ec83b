package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/model"
)

// Head identifies the most recent commit. The zero Head means the history
// is empty.
type Head struct {
	Hash string
	Seq  int64
}

// Empty reports whether the history has no commits.
func (h Head) Empty() bool {
	return h.Hash == ""
}

// BuildFunc assembles a commit and its changes given the current head.
// It runs inside the write transaction and must not use the Store.
type BuildFunc func(head Head) (model.Commit, []model.Change, error)

// AppendCommit appends one commit and its changes atomically.
//
// The head is read, build is called, and the commit and changes are inserted
// in a single transaction. Any error (including one returned by build) rolls
// the whole write back, so nothing of the attempt is ever observable.
//
// Returns the stored commit with its assigned Seq, and the changes with
// CommitHash set.
func (s *Store) AppendCommit(ctx context.Context, build BuildFunc) (model.Commit, []model.Change, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Commit{}, nil, fmt.Errorf("append commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	head, err := readHead(ctx, tx)
	if err != nil {
		return model.Commit{}, nil, fmt.Errorf("append commit: %w", err)
	}

	commit, changes, err := build(head)
	if err != nil {
		return model.Commit{}, nil, err
	}

	commit, changes, err = insertCommit(ctx, tx, commit, changes)
	if err != nil {
		return model.Commit{}, nil, fmt.Errorf("append commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Commit{}, nil, fmt.Errorf("append commit: commit tx: %w", err)
	}
	return commit, changes, nil
}

// WriteCommit inserts a fully built commit and its changes atomically.
// The commit's ParentHash is stored as given.
func (s *Store) WriteCommit(ctx context.Context, commit model.Commit, changes []model.Change) (model.Commit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Commit{}, fmt.Errorf("write commit: begin tx: %w", err)
	}
	defer tx.Rollback()

	commit, _, err = insertCommit(ctx, tx, commit, changes)
	if err != nil {
		return model.Commit{}, fmt.Errorf("write commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Commit{}, fmt.Errorf("write commit: commit tx: %w", err)
	}
	return commit, nil
}

// Clear deletes every commit and change. This is the only destructive
// operation the store offers.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear history: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM changes`); err != nil {
		return fmt.Errorf("clear history: changes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM commits`); err != nil {
		return fmt.Errorf("clear history: commits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear history: commit tx: %w", err)
	}
	return nil
}

// insertCommit writes the commit row followed by its change rows.
func insertCommit(ctx context.Context, tx *sql.Tx, commit model.Commit, changes []model.Change) (model.Commit, []model.Change, error) {
	if commit.Hash == "" {
		return model.Commit{}, nil, fmt.Errorf("commit hash is required")
	}
	if len(changes) == 0 {
		return model.Commit{}, nil, fmt.Errorf("commit %s has no changes", model.ShortHash(commit.Hash))
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO commits
		(hash, timestamp, message, author, parent_hash, encrypted_snapshot, device_fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		commit.Hash,
		commit.Timestamp,
		commit.Message,
		commit.Author,
		commit.ParentHash,
		commit.EncryptedSnapshot,
		commit.DeviceFingerprint,
	)
	if err != nil {
		return model.Commit{}, nil, fmt.Errorf("insert commit: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return model.Commit{}, nil, fmt.Errorf("commit seq: %w", err)
	}
	commit.Seq = seq

	stored := make([]model.Change, len(changes))
	for i, ch := range changes {
		ch.CommitHash = commit.Hash

		before, err := marshalPayload(ch.BeforeData)
		if err != nil {
			return model.Commit{}, nil, err
		}
		after, err := marshalPayload(ch.AfterData)
		if err != nil {
			return model.Commit{}, nil, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO changes
			(commit_hash, ordinal, entity_type, entity_id, change_type, description, before_data, after_data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			ch.CommitHash,
			i,
			string(ch.EntityType),
			ch.EntityID,
			string(ch.ChangeType),
			ch.Description,
			before,
			after,
		)
		if err != nil {
			return model.Commit{}, nil, fmt.Errorf("insert change %d: %w", i, err)
		}
		stored[i] = ch
	}

	return commit, stored, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readHead(ctx context.Context, q queryRower) (Head, error) {
	var h Head
	err := q.QueryRowContext(ctx, `
		SELECT hash, seq FROM commits ORDER BY seq DESC LIMIT 1
	`).Scan(&h.Hash, &h.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Head{}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("read head: %w", err)
	}
	return h, nil
}
