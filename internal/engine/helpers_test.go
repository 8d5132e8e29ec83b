package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
)

// openTestStore opens a fresh history database in a temp dir.
func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	return s
}

// newTestTracker creates a tracker over a fresh store with a deterministic
// clock, the fixture key and the fixture identity.
func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *store.Store) {
	t.Helper()
	s := openTestStore(t)
	t.Cleanup(func() { s.Close() })
	return newTrackerOn(s, StaticKey(testutil.Key()), opts...), s
}

func newTrackerOn(s *store.Store, keys KeyProvider, opts ...Option) *Tracker {
	base := []Option{
		WithClock(testutil.NewStepClock(0, 0)),
		WithIdentity(StaticIdentity{User: testutil.TestAuthor, Device: testutil.TestDevice}),
		WithLogger(DiscardLogger()),
	}
	return New(s, keys, append(base, opts...)...)
}

func trackCash(t *testing.T, tr *Tracker, prev, next model.Amount) model.Commit {
	t.Helper()
	c, err := tr.TrackUnassignedCashChange(context.Background(), UnassignedCashChange{
		PreviousAmount: prev,
		NewAmount:      next,
		Author:         "Alice",
	})
	require.NoError(t, err)
	return c
}

func trackDebt(t *testing.T, tr *Tracker, ct model.ChangeType, prev, next *model.Debt) model.Commit {
	t.Helper()
	id := ""
	if next != nil {
		id = next.ID
	} else if prev != nil {
		id = prev.ID
	}
	c, err := tr.TrackDebtChange(context.Background(), DebtChange{
		DebtID:       id,
		ChangeType:   ct,
		PreviousData: prev,
		NewData:      next,
	})
	require.NoError(t, err)
	return c
}

func commitCount(t *testing.T, s *store.Store) int64 {
	t.Helper()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	return n
}
