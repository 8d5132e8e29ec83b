package harness

import (
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
)

// TraceEvent records what one step did. Commit hashes never appear here;
// commits are identified by step label and seq.
type TraceEvent struct {
	Step    int           `json:"step"`
	Op      string        `json:"op"`
	Label   string        `json:"label,omitempty"`
	Target  string        `json:"target,omitempty"` // Label a restore or tamper step acts on
	Column  string        `json:"column,omitempty"`
	Seq     int64         `json:"seq,omitempty"`
	Author  string        `json:"author,omitempty"`
	Message string        `json:"message,omitempty"`
	Changes []TraceChange `json:"changes,omitempty"`
	Error   string        `json:"error,omitempty"` // Error kind of a failed step
}

// TraceChange is a change without its commit hash.
type TraceChange struct {
	EntityType  model.EntityType `json:"entityType"`
	EntityID    string           `json:"entityId"`
	ChangeType  model.ChangeType `json:"changeType"`
	Description string           `json:"description"`
	BeforeData  model.Payload    `json:"beforeData"`
	AfterData   model.Payload    `json:"afterData"`
}

func traceChanges(changes []model.Change) []TraceChange {
	out := make([]TraceChange, len(changes))
	for i, ch := range changes {
		out[i] = TraceChange{
			EntityType:  ch.EntityType,
			EntityID:    ch.EntityID,
			ChangeType:  ch.ChangeType,
			Description: ch.Description,
			BeforeData:  ch.BeforeData,
			AfterData:   ch.AfterData,
		}
	}
	return out
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Commits maps step labels to the commits they created.
	Commits map[string]model.Commit `json:"-"`

	// Restores maps restore step labels to their results.
	Restores map[string]engine.RestoreResult `json:"-"`

	// Integrity is the verification report taken after the last step.
	Integrity engine.IntegrityReport `json:"integrity"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Commits:  make(map[string]model.Commit),
		Restores: make(map[string]engine.RestoreResult),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
