package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/roach88/tally/internal/model"
)

// IntegrityReport is the outcome of VerifyIntegrity.
//
// A failed verification is a diagnostic result, not an error: Valid is
// false and the first offending commit is identified.
type IntegrityReport struct {
	Valid            bool   `json:"valid"`
	FirstInvalidHash string `json:"firstInvalidHash,omitempty"`
	Seq              int64  `json:"seq,omitempty"`    // Seq of the first invalid commit
	Reason           string `json:"reason,omitempty"` // Why verification failed
	Checked          int    `json:"checked"`          // Commits verified before stopping
}

// VerifyIntegrity walks the history in insertion order, recomputing each
// commit's hash from its stored fields and checking that every parent hash
// names the previous commit.
//
// Verification stops at the first problem. Read failures are reported as an
// invalid result with a reason.
func (t *Tracker) VerifyIntegrity(ctx context.Context) IntegrityReport {
	commits, err := t.store.ReadAllCommits(ctx)
	if err != nil {
		t.log.Error("verify integrity: read commits failed", "error", err)
		return IntegrityReport{Reason: fmt.Sprintf("read history: %v", err)}
	}

	var prev *model.Commit
	for i := range commits {
		c := commits[i]

		changes, err := t.store.ReadChangesForCommit(ctx, c.Hash)
		if err != nil {
			return t.invalid(c, i, fmt.Sprintf("read changes: %v", err))
		}
		if len(changes) == 0 {
			return t.invalid(c, i, "commit has no changes")
		}

		if reason := t.checkStoredPayloads(ctx, c.Hash, changes); reason != "" {
			return t.invalid(c, i, reason)
		}

		computed, err := model.CommitHash(c, changes)
		if err != nil {
			return t.invalid(c, i, fmt.Sprintf("recompute hash: %v", err))
		}
		if computed != c.Hash {
			return t.invalid(c, i, fmt.Sprintf("hash mismatch: stored %s, computed %s",
				model.ShortHash(c.Hash), model.ShortHash(computed)))
		}

		if c.ParentHash != "" {
			if prev == nil {
				return t.invalid(c, i, fmt.Sprintf("parent %s precedes the first commit", model.ShortHash(c.ParentHash)))
			}
			if c.ParentHash != prev.Hash {
				return t.invalid(c, i, fmt.Sprintf("parent mismatch: parent %s, previous commit %s",
					model.ShortHash(c.ParentHash), model.ShortHash(prev.Hash)))
			}
		}
		prev = &commits[i]
	}

	t.log.Info("history integrity verified", "commits", len(commits))
	return IntegrityReport{Valid: true, Checked: len(commits)}
}

// checkStoredPayloads compares every stored payload column with the canonical
// form of its decoded value. The hash covers decoded payloads, so bytes that
// decode to the same value (an extra key, reordered keys) are caught here.
func (t *Tracker) checkStoredPayloads(ctx context.Context, hash string, changes []model.Change) string {
	stored, err := t.store.ReadStoredPayloads(ctx, hash)
	if err != nil {
		return fmt.Sprintf("read changes: %v", err)
	}
	if len(stored) != len(changes) {
		return fmt.Sprintf("change count mismatch: %d stored payload rows, %d changes", len(stored), len(changes))
	}
	for i, ch := range changes {
		for _, col := range []struct {
			name string
			raw  []byte
			p    model.Payload
		}{
			{"beforeData", stored[i].Before, ch.BeforeData},
			{"afterData", stored[i].After, ch.AfterData},
		} {
			if col.p == nil {
				if col.raw != nil && !bytes.Equal(bytes.TrimSpace(col.raw), []byte("null")) {
					return fmt.Sprintf("payload mismatch: change %d %s", i, col.name)
				}
				continue
			}
			canonical, err := model.MarshalCanonical(col.p)
			if err != nil {
				return fmt.Sprintf("recompute payload: %v", err)
			}
			if !bytes.Equal(col.raw, canonical) {
				return fmt.Sprintf("payload mismatch: change %d %s is not the canonical form of its value", i, col.name)
			}
		}
	}
	return ""
}

func (t *Tracker) invalid(c model.Commit, checked int, reason string) IntegrityReport {
	t.log.Warn("history integrity violation", "hash", c.Hash, "seq", c.Seq, "reason", reason)
	return IntegrityReport{
		FirstInvalidHash: c.Hash,
		Seq:              c.Seq,
		Reason:           reason,
		Checked:          checked,
	}
}
