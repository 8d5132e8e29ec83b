package harness

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
)

// Identity used when a scenario names none.
const (
	DefaultAuthor = "Harness"
	DefaultDevice = "harness-device"
)

// TamperColumns maps each tamperable field to the statement that corrupts
// it for one commit. Only these statements ever run against the database.
var TamperColumns = map[string]string{
	"message":     `UPDATE commits SET message = message || ' (edited)' WHERE hash = ?`,
	"author":      `UPDATE commits SET author = 'Mallory' WHERE hash = ?`,
	"timestamp":   `UPDATE commits SET timestamp = timestamp + 1 WHERE hash = ?`,
	"parent_hash": `UPDATE commits SET parent_hash = 'forged' || parent_hash WHERE hash = ?`,
	"snapshot":    `UPDATE commits SET encrypted_snapshot = 'AAAA' || encrypted_snapshot WHERE hash = ?`,
	"description": `UPDATE changes SET description = description || ' (edited)' WHERE commit_hash = ?`,
}

// Harness runs one scenario against a fresh tracker.
type Harness struct {
	store   *store.Store
	tracker *engine.Tracker
	logger  *slog.Logger
	result  *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a step clock and a
// fixed identity, so everything but commit hashes is reproducible. Hashes
// also depend on the random snapshot nonce and are redacted from the trace.
//
// Execution flow:
//  1. Open an in-memory store and build the tracker
//  2. Execute steps in order, checking expected failures
//  3. Verify the chain
//  4. Evaluate assertions
//  5. Replace commit hashes in the trace with step labels
//
// Run returns an error only when the scenario cannot be executed at all.
// Failed expectations are reported through Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	key := testutil.Key()
	if scenario.Key != "" {
		var err error
		if key, err = hex.DecodeString(scenario.Key); err != nil {
			return nil, fmt.Errorf("scenario key: %w", err)
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	author := scenario.Author
	if author == "" {
		author = DefaultAuthor
	}
	device := scenario.Device
	if device == "" {
		device = DefaultDevice
	}

	logger := engine.DiscardLogger() // Suppress logs in tests
	h := &Harness{
		store: st,
		tracker: engine.New(st, engine.StaticKey(key),
			engine.WithClock(testutil.NewStepClock(0, 0)),
			engine.WithIdentity(engine.StaticIdentity{User: author, Device: device}),
			engine.WithLogger(logger),
		),
		logger: logger,
		result: NewResult(),
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	h.result.Integrity = h.tracker.VerifyIntegrity(ctx)

	actx := &AssertionContext{Tracker: h.tracker, Ctx: ctx}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	redact(h.result)
	return h.result, nil
}

// executeStep runs one step and appends its trace event.
// Tracker failures are checked against ExpectError; anything else aborts.
func (h *Harness) executeStep(ctx context.Context, i int, step Step) error {
	event := TraceEvent{Step: i, Op: step.Op, Label: step.Label}

	var (
		commit  *model.Commit
		stepErr error
	)
	switch step.Op {
	case OpCash:
		c, err := h.tracker.TrackUnassignedCashChange(ctx, engine.UnassignedCashChange{
			PreviousAmount: mustAmount(step.Prev),
			NewAmount:      mustAmount(step.Next),
			Author:         step.Author,
			Source:         step.Source,
		})
		commit, stepErr = committed(c, err)

	case OpBalance:
		c, err := h.tracker.TrackActualBalanceChange(ctx, engine.ActualBalanceChange{
			PreviousBalance: mustAmount(step.Prev),
			NewBalance:      mustAmount(step.Next),
			IsManual:        step.Manual,
			Author:          step.Author,
		})
		commit, stepErr = committed(c, err)

	case OpDebt:
		before, after, err := decodeDebts(step)
		if err != nil {
			return err
		}
		changeType, _ := model.ParseChangeType(step.Change)
		c, err := h.tracker.TrackDebtChange(ctx, engine.DebtChange{
			DebtID:       step.ID,
			ChangeType:   changeType,
			PreviousData: before,
			NewData:      after,
			Author:       step.Author,
		})
		commit, stepErr = committed(c, err)

	case OpEntity:
		entityType, _ := model.ParseEntityType(step.Entity)
		before, err := decodePayload(entityType, step.Before)
		if err != nil {
			return fmt.Errorf("before: %w", err)
		}
		after, err := decodePayload(entityType, step.After)
		if err != nil {
			return fmt.Errorf("after: %w", err)
		}
		changeType, _ := model.ParseChangeType(step.Change)
		c, err := h.tracker.TrackEntityChange(ctx, engine.EntityChange{
			EntityType: entityType,
			EntityID:   step.ID,
			ChangeType: changeType,
			Before:     before,
			After:      after,
			Author:     step.Author,
		})
		commit, stepErr = committed(c, err)

	case OpRestore:
		event.Target = step.Commit
		res, err := h.tracker.RestoreFromHistory(ctx, h.result.Commits[step.Commit].Hash)
		if err == nil {
			if step.Label != "" {
				h.result.Restores[step.Label] = res
			}
			commit = res.Commit
		}
		stepErr = err

	case OpTamper:
		event.Target = step.Commit
		event.Column = step.Column
		if err := h.tamper(ctx, step); err != nil {
			return err
		}

	case OpClear:
		stepErr = h.tracker.ClearHistory(ctx)

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if stepErr != nil {
		kind := engine.KindOf(stepErr)
		if kind == "" {
			return stepErr
		}
		event.Error = string(kind)
		if step.ExpectError != string(kind) {
			h.result.AddError(fmt.Sprintf("step %d (%s): unexpected %s: %v", i, step.Op, kind, stepErr))
		}
	} else if step.ExpectError != "" {
		h.result.AddError(fmt.Sprintf("step %d (%s): expected %s, got success", i, step.Op, step.ExpectError))
	}

	if commit != nil {
		if step.Label != "" {
			h.result.Commits[step.Label] = *commit
		}
		event.Seq = commit.Seq
		event.Author = commit.Author
		event.Message = commit.Message
		if details, ok := h.tracker.GetCommitDetails(ctx, commit.Hash); ok {
			event.Changes = traceChanges(details.Changes)
		}
	}

	h.result.Trace = append(h.result.Trace, event)
	h.logger.Info("scenario step completed", "step", i, "op", step.Op, "label", step.Label)
	return nil
}

// tamper rewrites one stored field of a labeled commit behind the
// tracker's back.
func (h *Harness) tamper(ctx context.Context, step Step) error {
	stmt, ok := TamperColumns[step.Column]
	if !ok {
		return fmt.Errorf("cannot tamper with column %q", step.Column)
	}
	target, ok := h.result.Commits[step.Commit]
	if !ok {
		return fmt.Errorf("no commit labeled %q", step.Commit)
	}

	res, err := h.store.DB().ExecContext(ctx, stmt, target.Hash)
	if err != nil {
		return fmt.Errorf("tamper %s: %w", step.Column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tamper %s: %w", step.Column, err)
	}
	if n == 0 {
		return fmt.Errorf("tamper %s: commit %q has no rows to modify", step.Column, step.Commit)
	}
	return nil
}

func committed(c model.Commit, err error) (*model.Commit, error) {
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// mustAmount parses an amount already checked by validateScenario.
func mustAmount(s string) model.Amount {
	a, err := model.ParseAmount(s)
	if err != nil {
		panic(fmt.Sprintf("harness: unvalidated amount %q: %v", s, err))
	}
	return a
}

// decodePayload converts a YAML mapping into the payload variant for
// entityType by way of JSON. A missing mapping is a nil payload.
func decodePayload(entityType model.EntityType, fields map[string]any) (model.Payload, error) {
	if fields == nil {
		return nil, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return model.DecodePayload(entityType, data)
}

func decodeDebts(step Step) (before, after *model.Debt, err error) {
	toDebt := func(fields map[string]any) (*model.Debt, error) {
		p, err := decodePayload(model.EntityDebt, fields)
		if err != nil || p == nil {
			return nil, err
		}
		d, ok := p.(model.Debt)
		if !ok {
			return nil, errors.New("not a debt payload")
		}
		return &d, nil
	}
	if before, err = toDebt(step.Before); err != nil {
		return nil, nil, fmt.Errorf("before: %w", err)
	}
	if after, err = toDebt(step.After); err != nil {
		return nil, nil, fmt.Errorf("after: %w", err)
	}
	return before, after, nil
}

// redact replaces every labeled commit hash in trace text with "@label".
// Full hashes are listed before short ones so the longer match wins.
func redact(r *Result) {
	labels := make([]string, 0, len(r.Commits))
	for label := range r.Commits {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var full, short []string
	for _, label := range labels {
		hash := r.Commits[label].Hash
		full = append(full, hash, "@"+label)
		short = append(short, model.ShortHash(hash), "@"+label)
	}
	replacer := strings.NewReplacer(append(full, short...)...)

	for i := range r.Trace {
		ev := &r.Trace[i]
		ev.Message = replacer.Replace(ev.Message)
		for j := range ev.Changes {
			ev.Changes[j].Description = replacer.Replace(ev.Changes[j].Description)
		}
	}
	for i := range r.Errors {
		r.Errors[i] = replacer.Replace(r.Errors[i])
	}
}

// labelFor returns the label of the commit with the given hash, or "".
func (r *Result) labelFor(hash string) string {
	for label, c := range r.Commits {
		if c.Hash == hash {
			return label
		}
	}
	return ""
}
