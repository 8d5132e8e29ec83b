package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
)

func TestScenariosMatchGolden(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.Len(t, files, 4)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_TraceIsReproducible(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/restore_cash.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := TraceJSON(scenario.Name, first)
	require.NoError(t, err)
	b, err := TraceJSON(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	// Hashes differ between runs; the trace must not carry any of them
	assert.NotEqual(t, first.Commits["c1"].Hash, second.Commits["c1"].Hash)
	for _, c := range first.Commits {
		assert.NotContains(t, string(a), model.ShortHash(c.Hash))
	}
}

func TestRun_RecordsCommitsAndRestores(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/restore_cash.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.Len(t, result.Commits, 5)
	assert.Equal(t, result.Commits["c4"].Hash, result.Commits["r1"].ParentHash)

	res, ok := result.Restores["r1"]
	require.True(t, ok)
	assert.Equal(t, result.Commits["c1"].Hash, res.Source.Hash)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, model.UnassignedCash{Amount: 25000}, res.Changes[0].AfterData)
}

func TestRun_ExpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "restore_after_clear",
		Description: "restore a commit that was cleared",
		Steps: []Step{
			{Label: "c1", Op: OpCash, Prev: "0", Next: "10.00"},
			{Op: OpClear},
			{Op: OpRestore, Commit: "c1", ExpectError: string(engine.KindNotFound)},
		},
		Assertions: []Assertion{{Type: AssertCommitCount, Count: ptr(0)}},
	}
	require.NoError(t, validateScenario(scenario))

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, string(engine.KindNotFound), result.Trace[2].Error)
	assert.True(t, result.Integrity.Valid)
}

func TestRun_UnexpectedOutcomes(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{
			name: "failure not expected",
			step: Step{Op: OpDebt, ID: "d1", Change: "add", After: map[string]any{"id": "d1", "currentBalance": 100}},
			want: "unexpected ValidationError",
		},
		{
			name: "success when failure expected",
			step: Step{Op: OpCash, Prev: "1", Next: "2", ExpectError: string(engine.KindDecryption)},
			want: "expected DecryptionError, got success",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "unexpected",
				Description: tt.name,
				Steps:       []Step{tt.step},
				Assertions:  []Assertion{{Type: AssertIntegrityValid, Valid: ptr(true)}},
			}
			result, err := Run(scenario)
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.want)
		})
	}
}

func TestRun_TamperColumns(t *testing.T) {
	for column := range TamperColumns {
		t.Run(column, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "tamper_" + column,
				Description: "tamper with " + column,
				Steps: []Step{
					{Label: "c1", Op: OpCash, Prev: "0", Next: "1.00"},
					{Label: "c2", Op: OpCash, Prev: "1.00", Next: "2.00"},
					{Op: OpTamper, Commit: "c2", Column: column},
				},
				Assertions: []Assertion{{Type: AssertIntegrityValid, Valid: ptr(false), FirstInvalid: "c2"}},
			}
			require.NoError(t, validateScenario(scenario))

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Equal(t, 1, result.Integrity.Checked)
		})
	}
}

func TestRun_ScenarioKey(t *testing.T) {
	scenario := &Scenario{
		Name:        "custom_key",
		Description: "custom key",
		Key:         strings.Repeat("ab", 32),
		Steps: []Step{
			{Label: "c1", Op: OpCash, Prev: "0", Next: "5.00"},
			{Label: "r1", Op: OpRestore, Commit: "c1"},
		},
		Assertions: []Assertion{{Type: AssertRestoreAmount, Commit: "r1", Amount: "5.00"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// Nothing changed since c1, so the restore records nothing
	assert.Nil(t, result.Restores["r1"].Commit)
	assert.Len(t, result.Commits, 1)
}

func TestRun_EntityStep(t *testing.T) {
	scenario := &Scenario{
		Name:        "envelope",
		Description: "envelope add",
		Author:      "Carol",
		Steps: []Step{{
			Label:  "e1",
			Op:     OpEntity,
			Entity: "envelope",
			ID:     "env-food",
			Change: "add",
			After:  map[string]any{"id": "env-food", "name": "Groceries", "balance": 40000},
		}},
		Assertions: []Assertion{
			{Type: AssertDescriptionContains, Commit: "e1", Text: "Added envelope: Groceries"},
			{Type: AssertEntityHistory, EntityType: "envelope", EntityID: "env-food", Changes: []string{"add"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "Carol", result.Trace[0].Author)
	assert.Equal(t, model.Envelope{ID: "env-food", Name: "Groceries", Balance: 40000}, result.Trace[0].Changes[0].AfterData)
}

func TestRedact(t *testing.T) {
	hash := strings.Repeat("0123456789abcdef", 4)
	result := NewResult()
	result.Commits["c1"] = model.Commit{Hash: hash}
	result.Trace = []TraceEvent{{
		Message: "Restored debt d1 to commit " + model.ShortHash(hash),
		Changes: []TraceChange{{Description: "full " + hash}},
	}}
	result.Errors = []string{"bad " + model.ShortHash(hash)}

	redact(result)
	assert.Equal(t, "Restored debt d1 to commit @c1", result.Trace[0].Message)
	assert.Equal(t, "full @c1", result.Trace[0].Changes[0].Description)
	assert.Equal(t, "bad @c1", result.Errors[0])
}

func ptr[T any](v T) *T { return &v }
