package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/recorder"
	"github.com/roach88/tally/internal/testutil"
)

func TestTrackUnassignedCashChange(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	c := trackCash(t, tr, 10000, 25000)

	assert.Len(t, c.Hash, 64)
	assert.Equal(t, int64(1), c.Seq)
	assert.Equal(t, "Alice", c.Author)
	assert.Equal(t, testutil.TestDevice, c.DeviceFingerprint)
	assert.Equal(t, testutil.DefaultEpoch, c.Timestamp)
	assert.Empty(t, c.ParentHash)
	assert.NotEmpty(t, c.EncryptedSnapshot)

	details, ok := tr.GetCommitDetails(ctx, c.Hash)
	require.True(t, ok)
	require.Len(t, details.Changes, 1)

	ch := details.Changes[0]
	assert.Equal(t, model.ChangeModify, ch.ChangeType)
	assert.Equal(t, model.EntityUnassignedCash, ch.EntityType)
	assert.Equal(t, model.SingletonID, ch.EntityID)
	assert.Contains(t, ch.Description, "$100.00")
	assert.Contains(t, ch.Description, "$250.00")
	assert.Equal(t, ch.Description, details.Commit.Message)
}

func TestTrackUnassignedCashChange_Distribution(t *testing.T) {
	tr, _ := newTestTracker(t)

	c, err := tr.TrackUnassignedCashChange(context.Background(), UnassignedCashChange{
		PreviousAmount: 50000,
		NewAmount:      20000,
		Source:         recorder.SourceDistribution,
	})
	require.NoError(t, err)
	assert.Equal(t, "Distributed $300.00 to envelopes", c.Message)
	assert.Equal(t, testutil.TestAuthor, c.Author, "author falls back to identity")
}

func TestTrackActualBalanceChange(t *testing.T) {
	tr, _ := newTestTracker(t)

	c, err := tr.TrackActualBalanceChange(context.Background(), ActualBalanceChange{
		PreviousBalance: 100000,
		NewBalance:      98000,
		IsManual:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Manually updated actual balance from $1,000.00 to $980.00", c.Message)
}

func TestTrackDebtChange_AddThenDelete(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	loan := &model.Debt{ID: "debt-car", Name: "Car Loan", CurrentBalance: 1200000}

	added := trackDebt(t, tr, model.ChangeAdd, nil, loan)
	details, ok := tr.GetCommitDetails(ctx, added.Hash)
	require.True(t, ok)
	require.Len(t, details.Changes, 1)
	assert.Equal(t, model.ChangeAdd, details.Changes[0].ChangeType)
	assert.Nil(t, details.Changes[0].BeforeData)
	require.IsType(t, model.Debt{}, details.Changes[0].AfterData)
	assert.Equal(t, "Car Loan", details.Changes[0].AfterData.(model.Debt).Name)

	deleted := trackDebt(t, tr, model.ChangeDelete, loan, nil)
	assert.Equal(t, added.Hash, deleted.ParentHash)

	details, ok = tr.GetCommitDetails(ctx, deleted.Hash)
	require.True(t, ok)
	require.Len(t, details.Changes, 1)
	assert.Equal(t, model.ChangeDelete, details.Changes[0].ChangeType)
	assert.Nil(t, details.Changes[0].AfterData)
	require.IsType(t, model.Debt{}, details.Changes[0].BeforeData)
	assert.Equal(t, "Car Loan", details.Changes[0].BeforeData.(model.Debt).Name)
	assert.Equal(t, "Deleted debt: Car Loan", deleted.Message)
}

func TestTrackDebtChange_PayloadWithoutID(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	c, err := tr.TrackDebtChange(ctx, DebtChange{
		DebtID:     "debt-car",
		ChangeType: model.ChangeAdd,
		NewData:    &model.Debt{Name: "Car Loan", CurrentBalance: 1200000},
	})
	require.NoError(t, err)
	assert.Equal(t, "Added debt: Car Loan", c.Message)

	history := tr.GetEntityHistory(ctx, model.EntityDebt, "debt-car")
	require.Len(t, history, 1)
	assert.Equal(t, model.Debt{ID: "debt-car", Name: "Car Loan", CurrentBalance: 1200000}, history[0].AfterData)
	assert.Len(t, tr.GetObjectHistory(ctx, "debt-car", 10), 1)
}

func TestTrackDebtChange_ConflictingIDs(t *testing.T) {
	tr, s := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.TrackDebtChange(ctx, DebtChange{
		DebtID:     "debt-a",
		ChangeType: model.ChangeAdd,
		NewData:    &model.Debt{ID: "debt-b", Name: "Car Loan"},
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, model.ErrInvalidChange)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTrack_ConcurrentWritersStayLinear(t *testing.T) {
	tr, s := newTestTracker(t)
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.TrackUnassignedCashChange(ctx, UnassignedCashChange{
				PreviousAmount: model.Amount(i * 100),
				NewAmount:      model.Amount((i + 1) * 100),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), n)

	report := tr.VerifyIntegrity(ctx)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, writers, report.Checked)

	// Every commit but the root has a distinct parent
	parents := make(map[string]bool)
	for _, c := range tr.GetHistory(ctx, HistoryOptions{Limit: -1}) {
		assert.False(t, parents[c.ParentHash], "parent %q shared", c.ParentHash)
		parents[c.ParentHash] = true
	}
}

func TestTrackEntityChange(t *testing.T) {
	tr, _ := newTestTracker(t)
	env := testutil.Envelope("env-food", "Food")

	c, err := tr.TrackEntityChange(context.Background(), EntityChange{
		EntityType: model.EntityEnvelope,
		ChangeType: model.ChangeAdd,
		After:      env,
	})
	require.NoError(t, err)
	assert.Equal(t, "Added envelope: Food", c.Message)
}

func TestTrack_ChainsParents(t *testing.T) {
	tr, _ := newTestTracker(t)

	c1 := trackCash(t, tr, 0, 100)
	c2 := trackCash(t, tr, 100, 200)
	c3 := trackCash(t, tr, 200, 300)

	assert.Empty(t, c1.ParentHash)
	assert.Equal(t, c1.Hash, c2.ParentHash)
	assert.Equal(t, c2.Hash, c3.ParentHash)
	assert.Less(t, c1.Timestamp, c2.Timestamp)
}

func TestTrack_ExplicitParent(t *testing.T) {
	tr, _ := newTestTracker(t)

	c1 := trackCash(t, tr, 0, 100)
	trackCash(t, tr, 100, 200)

	c3, err := tr.TrackUnassignedCashChange(context.Background(), UnassignedCashChange{
		PreviousAmount: 200,
		NewAmount:      300,
		ParentHash:     c1.Hash,
	})
	require.NoError(t, err)
	assert.Equal(t, c1.Hash, c3.ParentHash)
}

func TestTrack_Deterministic(t *testing.T) {
	run := func() ([]model.Commit, [][]model.Change) {
		tr, s := newTestTracker(t)
		loan := testutil.Debt("debt-1")
		commits := []model.Commit{
			trackCash(t, tr, 10000, 25000),
			trackDebt(t, tr, model.ChangeAdd, nil, loan),
			trackDebt(t, tr, model.ChangeDelete, loan, nil),
		}
		changes := make([][]model.Change, len(commits))
		for i, c := range commits {
			stored, err := s.ReadChangesForCommit(context.Background(), c.Hash)
			require.NoError(t, err)
			changes[i] = stored
		}
		return commits, changes
	}

	a, aChanges := run()
	b, bChanges := run()
	assert.Equal(t, aChanges, bChanges)

	for i := range a {
		assert.Equal(t, a[i].Message, b[i].Message)
		assert.Equal(t, a[i].Timestamp, b[i].Timestamp)
		assert.Equal(t, a[i].Author, b[i].Author)

		// Same stored fields, same hash
		assert.Equal(t, a[i].Hash, model.MustCommitHash(a[i], aChanges[i]))

		// Snapshots use a fresh nonce, so the sealed form differs
		assert.NotEqual(t, a[i].EncryptedSnapshot, b[i].EncryptedSnapshot)
	}
}

func TestTrack_ValidationErrorLeavesNoCommit(t *testing.T) {
	tr, s := newTestTracker(t)

	// Add without after state
	_, err := tr.TrackDebtChange(context.Background(), DebtChange{
		DebtID:     "debt-1",
		ChangeType: model.ChangeAdd,
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, int64(0), commitCount(t, s))

	// Payload rejected by the schema
	bad := testutil.Transaction("tx-1")
	bad.Date = "October 1st"
	_, err = tr.TrackEntityChange(context.Background(), EntityChange{
		EntityType: model.EntityTransaction,
		ChangeType: model.ChangeAdd,
		After:      bad,
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, int64(0), commitCount(t, s))
}

func TestTrack_EncryptionFailureIsAtomic(t *testing.T) {
	tests := []struct {
		name string
		keys KeyProvider
	}{
		{"missing key", StaticKey(nil)},
		{"weak key", StaticKey(make([]byte, 32))},
		{"bad key length", StaticKey([]byte("short"))},
		{"provider error", KeyFunc(func(context.Context) ([]byte, error) {
			return nil, errors.New("keychain locked")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			t.Cleanup(func() { s.Close() })
			tr := newTrackerOn(s, tt.keys)

			_, err := tr.TrackUnassignedCashChange(context.Background(), UnassignedCashChange{
				PreviousAmount: 100,
				NewAmount:      200,
			})
			require.Error(t, err)
			assert.True(t, IsEncryption(err), "got %v", err)
			assert.Equal(t, int64(0), commitCount(t, s))
		})
	}
}

func TestTrack_CancelledContext(t *testing.T) {
	tr, s := newTestTracker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.TrackUnassignedCashChange(ctx, UnassignedCashChange{PreviousAmount: 1, NewAmount: 2})
	require.Error(t, err)
	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), commitCount(t, s))
}

func TestTrack_StorageFailure(t *testing.T) {
	s := openTestStore(t)
	tr := newTrackerOn(s, StaticKey(testutil.Key()))
	require.NoError(t, s.Close())

	_, err := tr.TrackUnassignedCashChange(context.Background(), UnassignedCashChange{PreviousAmount: 1, NewAmount: 2})
	require.Error(t, err)
	assert.True(t, IsStorage(err))

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, model.EntityUnassignedCash, te.EntityType)
	assert.Equal(t, model.SingletonID, te.EntityID)
}
