package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/query"
)

const changeRecordColumns = `
	ch.commit_hash, ch.entity_type, ch.entity_id, ch.change_type, ch.description,
	ch.before_data, ch.after_data, c.seq, c.timestamp, c.author, c.message`

// Head returns the most recent commit, or the zero Head for an empty history.
func (s *Store) Head(ctx context.Context) (Head, error) {
	return readHead(ctx, s.db)
}

// Count returns the number of commits.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return n, nil
}

// ReadCommit retrieves a single commit by hash.
// Returns ErrNotFound if no commit has that hash.
func (s *Store) ReadCommit(ctx context.Context, hash string) (model.Commit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+query.CommitColumns+`
		FROM commits c
		WHERE c.hash = ?
	`, hash)

	c, err := scanCommit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Commit{}, fmt.Errorf("commit %s: %w", model.ShortHash(hash), ErrNotFound)
	}
	if err != nil {
		return model.Commit{}, fmt.Errorf("read commit: %w", err)
	}
	return c, nil
}

// ReadHashesWithPrefix returns up to limit commit hashes starting with
// prefix, in insertion order. The prefix is matched literally.
func (s *Store) ReadHashesWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash FROM commits
		WHERE substr(hash, 1, ?) = ?
		ORDER BY seq ASC
		LIMIT ?
	`, len(prefix), prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("query hash prefix: %w", err)
	}
	defer rows.Close()

	hashes := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hashes: %w", err)
	}
	return hashes, nil
}

// ReadCommits returns the commits matching a filter, most recent first.
func (s *Store) ReadCommits(ctx context.Context, f query.Filter) ([]model.Commit, error) {
	sqlText, params, err := query.Compile(f)
	if err != nil {
		return nil, err
	}
	return s.queryCommits(ctx, sqlText, params...)
}

// ReadAllCommits returns every commit in insertion order (seq ASC).
// Used for integrity verification and export.
func (s *Store) ReadAllCommits(ctx context.Context) ([]model.Commit, error) {
	return s.queryCommits(ctx, `
		SELECT `+query.CommitColumns+`
		FROM commits c
		ORDER BY c.seq ASC
	`)
}

// ReadChangesForCommit returns the changes carried by one commit, in the
// order they were recorded. Returns an empty slice for unknown hashes.
func (s *Store) ReadChangesForCommit(ctx context.Context, hash string) ([]model.Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT commit_hash, entity_type, entity_id, change_type, description, before_data, after_data
		FROM changes
		WHERE commit_hash = ?
		ORDER BY ordinal ASC
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []model.Change{}
	for rows.Next() {
		var ch model.Change
		var entityType, changeType string
		var before, after sql.NullString
		if err := rows.Scan(&ch.CommitHash, &entityType, &ch.EntityID, &changeType, &ch.Description, &before, &after); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if err := fillChange(&ch, entityType, changeType, before, after); err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}

// StoredPayloads holds one change's before and after data exactly as stored.
// A nil slice is SQL NULL.
type StoredPayloads struct {
	Before []byte
	After  []byte
}

// ReadStoredPayloads returns the raw payload columns of a commit's changes,
// in the same order as ReadChangesForCommit.
func (s *Store) ReadStoredPayloads(ctx context.Context, hash string) ([]StoredPayloads, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT before_data, after_data
		FROM changes
		WHERE commit_hash = ?
		ORDER BY ordinal ASC
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("query stored payloads: %w", err)
	}
	defer rows.Close()

	out := []StoredPayloads{}
	for rows.Next() {
		var before, after sql.NullString
		if err := rows.Scan(&before, &after); err != nil {
			return nil, fmt.Errorf("scan stored payloads: %w", err)
		}
		var p StoredPayloads
		if before.Valid {
			p.Before = []byte(before.String)
		}
		if after.Valid {
			p.After = []byte(after.String)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stored payloads: %w", err)
	}
	return out, nil
}

// ReadChangesByEntityType returns changes to one entity type, most recent
// first, bounded by limit. A negative limit returns every change.
func (s *Store) ReadChangesByEntityType(ctx context.Context, entityType model.EntityType, limit int) ([]model.ChangeRecord, error) {
	return s.queryChangeRecords(ctx, `
		SELECT `+changeRecordColumns+`
		FROM changes ch
		JOIN commits c ON c.hash = ch.commit_hash
		WHERE ch.entity_type = ?
		ORDER BY c.seq DESC, ch.ordinal DESC
		LIMIT ?
	`, string(entityType), sqlLimit(limit))
}

// ReadChangesByEntity returns the full history of one entity, most recent first.
func (s *Store) ReadChangesByEntity(ctx context.Context, entityType model.EntityType, entityID string) ([]model.ChangeRecord, error) {
	return s.queryChangeRecords(ctx, `
		SELECT `+changeRecordColumns+`
		FROM changes ch
		JOIN commits c ON c.hash = ch.commit_hash
		WHERE ch.entity_type = ? AND ch.entity_id = ?
		ORDER BY c.seq DESC, ch.ordinal DESC
	`, string(entityType), entityID)
}

// ReadRecentChanges returns the most recent changes across all entities.
// A negative limit returns every change.
func (s *Store) ReadRecentChanges(ctx context.Context, limit int) ([]model.ChangeRecord, error) {
	return s.queryChangeRecords(ctx, `
		SELECT `+changeRecordColumns+`
		FROM changes ch
		JOIN commits c ON c.hash = ch.commit_hash
		ORDER BY c.seq DESC, ch.ordinal DESC
		LIMIT ?
	`, sqlLimit(limit))
}

// LatestChangeForEntity returns the most recent change to one entity.
// Returns ErrNotFound if the entity has no history.
func (s *Store) LatestChangeForEntity(ctx context.Context, entityType model.EntityType, entityID string) (model.ChangeRecord, error) {
	records, err := s.queryChangeRecords(ctx, `
		SELECT `+changeRecordColumns+`
		FROM changes ch
		JOIN commits c ON c.hash = ch.commit_hash
		WHERE ch.entity_type = ? AND ch.entity_id = ?
		ORDER BY c.seq DESC, ch.ordinal DESC
		LIMIT 1
	`, string(entityType), entityID)
	if err != nil {
		return model.ChangeRecord{}, err
	}
	if len(records) == 0 {
		return model.ChangeRecord{}, fmt.Errorf("%s %s: %w", entityType, entityID, ErrNotFound)
	}
	return records[0], nil
}

func (s *Store) queryCommits(ctx context.Context, sqlText string, args ...any) ([]model.Commit, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	commits := []model.Commit{}
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return commits, nil
}

func (s *Store) queryChangeRecords(ctx context.Context, sqlText string, args ...any) ([]model.ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	records := []model.ChangeRecord{}
	for rows.Next() {
		var r model.ChangeRecord
		var entityType, changeType string
		var before, after sql.NullString
		if err := rows.Scan(
			&r.CommitHash, &entityType, &r.EntityID, &changeType, &r.Description,
			&before, &after, &r.Seq, &r.Timestamp, &r.Author, &r.Message,
		); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if err := fillChange(&r.Change, entityType, changeType, before, after); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanCommit scans one row selected with query.CommitColumns.
func scanCommit(row scanner) (model.Commit, error) {
	var c model.Commit
	err := row.Scan(
		&c.Seq, &c.Hash, &c.Timestamp, &c.Message, &c.Author,
		&c.ParentHash, &c.EncryptedSnapshot, &c.DeviceFingerprint,
	)
	return c, err
}

func fillChange(ch *model.Change, entityType, changeType string, before, after sql.NullString) error {
	ch.EntityType = model.EntityType(entityType)
	ch.ChangeType = model.ChangeType(changeType)

	var err error
	if ch.BeforeData, err = unmarshalPayload(ch.EntityType, before); err != nil {
		return fmt.Errorf("change %s/%s beforeData: %w", entityType, ch.EntityID, err)
	}
	if ch.AfterData, err = unmarshalPayload(ch.EntityType, after); err != nil {
		return fmt.Errorf("change %s/%s afterData: %w", entityType, ch.EntityID, err)
	}
	return nil
}

// sqlLimit maps the "all" convention (any negative limit) to SQLite's -1.
func sqlLimit(limit int) int {
	if limit < 0 {
		return -1
	}
	return limit
}
