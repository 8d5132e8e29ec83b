package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/query"
)

// AssertionContext carries what assertions need to query history.
type AssertionContext struct {
	Tracker *engine.Tracker
	Ctx     context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch {
		case event.Error != "":
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Step, event.Op, event.Error)
		case event.Message != "":
			fmt.Fprintf(&buf, "  [%d] %s %q\n", event.Step, event.Op, event.Message)
		default:
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Step, event.Op)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCommitCount:
			err = assertCommitCount(result, a, actx)
		case AssertChangeType:
			err = assertChangeType(result, a, actx)
		case AssertDescriptionContains:
			err = assertDescriptionContains(result, a, actx)
		case AssertIntegrityValid:
			err = assertIntegrityValid(result, a)
		case AssertRestoreAmount:
			err = assertRestoreAmount(result, a)
		case AssertEntityHistory:
			err = assertEntityHistory(result, a, actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

// assertCommitCount checks the number of commits in history.
func assertCommitCount(result *Result, a Assertion, actx *AssertionContext) error {
	commits := actx.Tracker.GetHistory(actx.Ctx, engine.HistoryOptions{Limit: query.NoLimit})
	if len(commits) != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d commits", *a.Count),
			Actual:   fmt.Sprintf("%d commits", len(commits)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// details loads the labeled commit with its changes.
func details(result *Result, a Assertion, actx *AssertionContext) (engine.CommitDetails, error) {
	c, ok := result.Commits[a.Commit]
	if !ok {
		return engine.CommitDetails{}, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("a commit labeled %s", a.Commit),
			Actual:   "the step created no commit",
			Trace:    result.Trace,
		}
	}
	d, ok := actx.Tracker.GetCommitDetails(actx.Ctx, c.Hash)
	if !ok || len(d.Changes) == 0 {
		return engine.CommitDetails{}, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("commit %s in history", a.Commit),
			Actual:   "not found",
			Trace:    result.Trace,
		}
	}
	return d, nil
}

// assertChangeType checks the change type of a commit's first change.
func assertChangeType(result *Result, a Assertion, actx *AssertionContext) error {
	d, err := details(result, a, actx)
	if err != nil {
		return err
	}
	if got := string(d.Changes[0].ChangeType); got != a.Expect {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s change in %s", a.Expect, a.Commit),
			Actual:   got,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertDescriptionContains checks that the commit message or one of its
// change descriptions contains the text.
func assertDescriptionContains(result *Result, a Assertion, actx *AssertionContext) error {
	d, err := details(result, a, actx)
	if err != nil {
		return err
	}
	texts := []string{d.Commit.Message}
	for _, ch := range d.Changes {
		texts = append(texts, ch.Description)
	}
	for _, text := range texts {
		if strings.Contains(text, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s description containing %q", a.Commit, a.Text),
		Actual:   fmt.Sprintf("%q", texts),
		Trace:    result.Trace,
	}
}

// assertIntegrityValid checks the verification report taken after the
// last step, and optionally which commit broke the chain.
func assertIntegrityValid(result *Result, a Assertion) error {
	report := result.Integrity
	if report.Valid != *a.Valid {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("valid=%t", *a.Valid),
			Actual:   fmt.Sprintf("valid=%t (%s)", report.Valid, report.Reason),
			Trace:    result.Trace,
		}
	}
	if a.FirstInvalid != "" {
		if got := result.labelFor(report.FirstInvalidHash); got != a.FirstInvalid {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("first invalid commit %s", a.FirstInvalid),
				Actual:   fmt.Sprintf("first invalid commit %q", got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertRestoreAmount checks the unassigned cash in the snapshot a restore
// step brought back.
func assertRestoreAmount(result *Result, a Assertion) error {
	res, ok := result.Restores[a.Commit]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("restore step labeled %s", a.Commit),
			Actual:   "no restore result",
			Trace:    result.Trace,
		}
	}

	want, _ := model.ParseAmount(a.Amount)
	actual := "no unassigned cash in snapshot"
	if p, ok := res.Snapshot.Get(model.EntityUnassignedCash, model.SingletonID); ok {
		if cash, ok := p.(model.UnassignedCash); ok {
			if cash.Amount == want {
				return nil
			}
			actual = cash.Amount.String()
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: want.String(),
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// assertEntityHistory checks the change types recorded for one entity,
// most recent first.
func assertEntityHistory(result *Result, a Assertion, actx *AssertionContext) error {
	entityType, _ := model.ParseEntityType(a.EntityType)
	records := actx.Tracker.GetEntityHistory(actx.Ctx, entityType, a.EntityID)

	got := make([]string, len(records))
	for i, r := range records {
		got[i] = string(r.ChangeType)
	}
	if !slices.Equal(got, a.Changes) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s changes %v", a.EntityType, a.EntityID, a.Changes),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}
