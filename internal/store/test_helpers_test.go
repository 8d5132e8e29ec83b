package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/tally/internal/model"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testCommit builds a commit with a hash derived from n. The store does not
// recompute hashes, so any unique value works here.
func testCommit(n int, parent string) model.Commit {
	return model.Commit{
		Hash:              fmt.Sprintf("%064x", n),
		Timestamp:         int64(1760000000000 + n),
		Message:           fmt.Sprintf("commit %d", n),
		Author:            "Alice",
		ParentHash:        parent,
		EncryptedSnapshot: "sealed",
		DeviceFingerprint: "device-1",
	}
}

func debtChange(changeType model.ChangeType, id, name string) model.Change {
	d := model.Debt{ID: id, Name: name, CurrentBalance: 1200000}
	ch := model.Change{
		EntityType:  model.EntityDebt,
		EntityID:    id,
		ChangeType:  changeType,
		Description: string(changeType) + " " + name,
	}
	switch changeType {
	case model.ChangeAdd:
		ch.AfterData = d
	case model.ChangeDelete:
		ch.BeforeData = d
	default:
		ch.BeforeData = d
		ch.AfterData = d
	}
	return ch
}

func cashChange(prev, next model.Amount) model.Change {
	return model.Change{
		EntityType:  model.EntityUnassignedCash,
		EntityID:    model.SingletonID,
		ChangeType:  model.ChangeModify,
		Description: "cash",
		BeforeData:  model.UnassignedCash{Amount: prev},
		AfterData:   model.UnassignedCash{Amount: next},
	}
}

// appendTest appends a commit linked to the current head.
func appendTest(t *testing.T, s *Store, n int, changes ...model.Change) model.Commit {
	t.Helper()
	c, _, err := s.AppendCommit(context.Background(), func(head Head) (model.Commit, []model.Change, error) {
		return testCommit(n, head.Hash), changes, nil
	})
	if err != nil {
		t.Fatalf("AppendCommit(%d) failed: %v", n, err)
	}
	return c
}
