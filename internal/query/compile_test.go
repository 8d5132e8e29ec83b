package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/model"
)

const selectCommits = "SELECT " + CommitColumns + " FROM commits c"

func TestCompileEmptyFilter(t *testing.T) {
	sql, params, err := Compile(Filter{})
	require.NoError(t, err)
	assert.Equal(t, selectCommits+" ORDER BY c.seq DESC LIMIT ?", sql)
	assert.Equal(t, []any{DefaultLimit}, params)
}

func TestCompileNoLimit(t *testing.T) {
	sql, params, err := Compile(Filter{Limit: NoLimit})
	require.NoError(t, err)
	assert.Equal(t, selectCommits+" ORDER BY c.seq DESC", sql)
	assert.Empty(t, params)
}

func TestCompileEntityAndAuthor(t *testing.T) {
	sql, params, err := Compile(Filter{
		EntityType: model.EntityDebt,
		EntityID:   "d1",
		Author:     "Alice",
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, selectCommits+
		" WHERE (EXISTS (SELECT 1 FROM changes ch WHERE ch.commit_hash = c.hash"+
		" AND (ch.entity_type = ? AND ch.entity_id = ?)) AND c.author = ?)"+
		" ORDER BY c.seq DESC LIMIT ?", sql)
	assert.Equal(t, []any{"debt", "d1", "Alice", 10}, params)
}

func TestCompileObjectFilter(t *testing.T) {
	sql, params, err := Compile(Filter{ObjectID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, selectCommits+
		" WHERE EXISTS (SELECT 1 FROM changes ch WHERE ch.commit_hash = c.hash"+
		" AND (ch.entity_id = ? OR json_extract(ch.before_data, '$.id') = ?"+
		" OR json_extract(ch.after_data, '$.id') = ?))"+
		" ORDER BY c.seq DESC LIMIT ?", sql)
	assert.Equal(t, []any{"d1", "d1", "d1", DefaultLimit}, params)
}

func TestCompileTimeRange(t *testing.T) {
	sql, params, err := Compile(Filter{Since: 100, Until: 200, Limit: NoLimit})
	require.NoError(t, err)
	assert.Equal(t, selectCommits+
		" WHERE (c.timestamp >= ? AND c.timestamp <= ?) ORDER BY c.seq DESC", sql)
	assert.Equal(t, []any{int64(100), int64(200)}, params)
}

func TestCompileNeverInterpolatesValues(t *testing.T) {
	evil := "x'; DROP TABLE commits; --"
	sql, params, err := Compile(Filter{Author: evil, ObjectID: evil})
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP TABLE")
	assert.Contains(t, params, evil)
}

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
	}{
		{"unknown entity type", Filter{EntityType: "goal"}},
		{"entity id without type", Filter{EntityID: "d1"}},
		{"limit below -1", Filter{Limit: -2}},
		{"negative since", Filter{Since: -1}},
		{"inverted range", Filter{Since: 200, Until: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.f.Validate(), ErrInvalidFilter)
			_, _, err := Compile(tt.f)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}

	assert.NoError(t, Filter{EntityType: model.EntityBill, EntityID: "b1", Limit: NoLimit}.Validate())
}

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, Filter{}.EffectiveLimit())
	assert.Equal(t, NoLimit, Filter{Limit: NoLimit}.EffectiveLimit())
	assert.Equal(t, 5, Filter{Limit: 5}.EffectiveLimit())
}

func TestCompilePredicateRejectsUnknownColumns(t *testing.T) {
	_, _, err := CompilePredicate(Equals{Column: "c.seq; DROP TABLE commits", Value: 1})
	assert.Error(t, err)

	// Change columns are only reachable through HasChange
	_, _, err = CompilePredicate(Equals{Column: ColEntityID, Value: "d1"})
	assert.Error(t, err)

	// Nested HasChange is not allowed
	_, _, err = CompilePredicate(HasChange{Filter: HasChange{}})
	assert.Error(t, err)

	_, _, err = CompilePredicate(HasChange{Filter: JSONEquals{Column: ColAfterData, Path: "$.id') OR 1=1 --", Value: "x"}})
	assert.Error(t, err)
}

func TestCompilePredicateJunctions(t *testing.T) {
	sql, params, err := CompilePredicate(Or{})
	require.NoError(t, err)
	assert.Equal(t, "1 = 0", sql)
	assert.Empty(t, params)

	sql, _, err = CompilePredicate(And{})
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", sql)

	sql, params, err = CompilePredicate(HasChange{})
	require.NoError(t, err)
	assert.Equal(t, "EXISTS (SELECT 1 FROM changes ch WHERE ch.commit_hash = c.hash)", sql)
	assert.Empty(t, params)

	sql, params, err = CompilePredicate(Or{Predicates: []Predicate{
		Equals{Column: ColAuthor, Value: "Alice"},
		Equals{Column: ColAuthor, Value: "Bob"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "(c.author = ? OR c.author = ?)", sql)
	assert.Equal(t, []any{"Alice", "Bob"}, params)
}
