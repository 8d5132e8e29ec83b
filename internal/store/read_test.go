package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/query"
)

func TestReadCommit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := appendTest(t, s, 1, cashChange(0, 100))

	got, err := s.ReadCommit(ctx, want.Hash)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadCommit_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadCommit(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadChangesForCommit_PreservesPayloads(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	add := debtChange(model.ChangeAdd, "d1", "Car Loan")
	c := appendTest(t, s, 1, cashChange(100, 50), add)

	changes, err := s.ReadChangesForCommit(ctx, c.Hash)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, model.UnassignedCash{Amount: 100}, changes[0].BeforeData)
	assert.Equal(t, model.UnassignedCash{Amount: 50}, changes[0].AfterData)

	assert.Equal(t, model.ChangeAdd, changes[1].ChangeType)
	assert.Nil(t, changes[1].BeforeData)
	assert.Equal(t, "Car Loan", changes[1].AfterData.(model.Debt).Name)
	assert.Equal(t, c.Hash, changes[1].CommitHash)

	none, err := s.ReadChangesForCommit(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReadStoredPayloads(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := appendTest(t, s, 1, cashChange(100, 50), debtChange(model.ChangeAdd, "d1", "Car Loan"))

	stored, err := s.ReadStoredPayloads(ctx, c.Hash)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "100", string(stored[0].Before))
	assert.Equal(t, "50", string(stored[0].After))
	assert.Nil(t, stored[1].Before)
	assert.Equal(t, `{"currentBalance":1200000,"id":"d1","name":"Car Loan"}`, string(stored[1].After))

	none, err := s.ReadStoredPayloads(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReadHashesWithPrefix(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c1 := appendTest(t, s, 0x10, cashChange(0, 100))
	c2 := appendTest(t, s, 0x11, cashChange(100, 200))

	got, err := s.ReadHashesWithPrefix(ctx, c1.Hash[:63], 2)
	require.NoError(t, err)
	assert.Equal(t, []string{c1.Hash, c2.Hash}, got)

	got, err = s.ReadHashesWithPrefix(ctx, c2.Hash, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{c2.Hash}, got)

	got, err = s.ReadHashesWithPrefix(ctx, "f", 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadChangesByEntity_MostRecentFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	appendTest(t, s, 1, debtChange(model.ChangeAdd, "d1", "Car Loan"))
	appendTest(t, s, 2, debtChange(model.ChangeAdd, "d2", "Card"))
	appendTest(t, s, 3, debtChange(model.ChangeModify, "d1", "Car Loan"))
	appendTest(t, s, 4, debtChange(model.ChangeDelete, "d1", "Car Loan"))

	records, err := s.ReadChangesByEntity(ctx, model.EntityDebt, "d1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, model.ChangeDelete, records[0].ChangeType)
	assert.Equal(t, model.ChangeModify, records[1].ChangeType)
	assert.Equal(t, model.ChangeAdd, records[2].ChangeType)
	assert.Equal(t, int64(4), records[0].Seq)
	assert.Equal(t, "Alice", records[0].Author)
	assert.Equal(t, "commit 4", records[0].Message)
}

func TestReadChangesByEntityType_Limit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	appendTest(t, s, 1, debtChange(model.ChangeAdd, "d1", "A"))
	appendTest(t, s, 2, cashChange(0, 1))
	appendTest(t, s, 3, debtChange(model.ChangeAdd, "d2", "B"))
	appendTest(t, s, 4, debtChange(model.ChangeAdd, "d3", "C"))

	records, err := s.ReadChangesByEntityType(ctx, model.EntityDebt, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "d3", records[0].EntityID)
	assert.Equal(t, "d2", records[1].EntityID)

	all, err := s.ReadChangesByEntityType(ctx, model.EntityDebt, -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReadRecentChanges(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	appendTest(t, s, 1, cashChange(0, 1))
	appendTest(t, s, 2, cashChange(1, 2))
	appendTest(t, s, 3, cashChange(2, 3))

	records, err := s.ReadRecentChanges(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.UnassignedCash{Amount: 3}, records[0].AfterData)
	assert.Equal(t, model.UnassignedCash{Amount: 2}, records[1].AfterData)
}

func TestLatestChangeForEntity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.LatestChangeForEntity(ctx, model.EntityDebt, "d1")
	assert.ErrorIs(t, err, ErrNotFound)

	appendTest(t, s, 1, debtChange(model.ChangeAdd, "d1", "Car Loan"))
	appendTest(t, s, 2, debtChange(model.ChangeDelete, "d1", "Car Loan"))

	latest, err := s.LatestChangeForEntity(ctx, model.EntityDebt, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.ChangeDelete, latest.ChangeType)
	assert.Nil(t, latest.AfterData)
}

func TestReadAllCommits_InsertionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Timestamps go backwards; seq still decides the order
	for i, n := range []int{30, 20, 10} {
		c := testCommit(n, "")
		_, err := s.WriteCommit(ctx, c, []model.Change{cashChange(0, model.Amount(i))})
		require.NoError(t, err)
	}

	commits, err := s.ReadAllCommits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{commits[0].Seq, commits[1].Seq, commits[2].Seq})
	assert.Equal(t, testCommit(30, "").Hash, commits[0].Hash)
}

func TestReadCommits_Filter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	appendTest(t, s, 1, debtChange(model.ChangeAdd, "d1", "Car Loan"))
	c2 := appendTest(t, s, 2, cashChange(0, 100))
	c3 := appendTest(t, s, 3, debtChange(model.ChangeDelete, "d1", "Car Loan"))

	commits, err := s.ReadCommits(ctx, query.Filter{Limit: query.NoLimit})
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, c3.Hash, commits[0].Hash)

	commits, err = s.ReadCommits(ctx, query.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, c3.Hash, commits[0].Hash)

	commits, err = s.ReadCommits(ctx, query.Filter{EntityType: model.EntityUnassignedCash})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, c2.Hash, commits[0].Hash)

	commits, err = s.ReadCommits(ctx, query.Filter{EntityType: model.EntityDebt, EntityID: "d1"})
	require.NoError(t, err)
	assert.Len(t, commits, 2)

	commits, err = s.ReadCommits(ctx, query.Filter{Since: c2.Timestamp, Until: c2.Timestamp})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, c2.Hash, commits[0].Hash)

	commits, err = s.ReadCommits(ctx, query.Filter{Author: "Bob"})
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestReadCommits_ObjectIDInsidePayload(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// The entity id differs from the id carried inside the payload
	tx := model.Transaction{ID: "t-77", Date: "2026-10-01", Description: "Rent", Amount: -150000}
	appendTest(t, s, 1, model.Change{
		EntityType:  model.EntityTransaction,
		EntityID:    "row-1",
		ChangeType:  model.ChangeAdd,
		Description: "Added transaction: Rent",
		AfterData:   tx,
	})
	appendTest(t, s, 2, cashChange(0, 1))

	commits, err := s.ReadCommits(ctx, query.Filter{ObjectID: "t-77"})
	require.NoError(t, err)
	require.Len(t, commits, 1)

	commits, err = s.ReadCommits(ctx, query.Filter{ObjectID: "row-1"})
	require.NoError(t, err)
	assert.Len(t, commits, 1)

	commits, err = s.ReadCommits(ctx, query.Filter{ObjectID: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestReadCommits_InvalidFilter(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadCommits(context.Background(), query.Filter{Limit: -5})
	assert.ErrorIs(t, err, query.ErrInvalidFilter)
}

func TestReadRecentChanges_QueryFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM changes ch`).WillReturnError(errors.New("database disk image is malformed"))

	_, err := s.ReadRecentChanges(context.Background(), 10)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadChangesForCommit_BadPayload(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"commit_hash", "entity_type", "entity_id", "change_type", "description", "before_data", "after_data",
	}).AddRow("abc", "unassignedCash", "main", "modify", "cash", `"not a number"`, `5`)
	mock.ExpectQuery(`FROM changes`).WillReturnRows(rows)

	_, err := s.ReadChangesForCommit(context.Background(), "abc")
	assert.Error(t, err)
}
