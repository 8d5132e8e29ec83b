package query

import (
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/model"
)

// DefaultLimit is applied when a filter leaves Limit at zero.
const DefaultLimit = 50

// NoLimit returns every matching commit.
const NoLimit = -1

// ErrInvalidFilter is wrapped by every Validate failure.
var ErrInvalidFilter = errors.New("invalid history filter")

// Filter selects commits from the history.
// Zero-valued fields do not constrain the result.
type Filter struct {
	EntityType model.EntityType // Commits with a change to this entity type
	EntityID   string           // Commits with a change to this entity id (requires EntityType)
	ObjectID   string           // Commits whose changes reference this id anywhere
	Author     string
	Since      int64 // Epoch ms, inclusive
	Until      int64 // Epoch ms, inclusive
	Limit      int   // 0 = DefaultLimit, NoLimit = all
}

// Validate checks the filter for contradictions.
func (f Filter) Validate() error {
	if f.EntityType != "" && !f.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidFilter, f.EntityType)
	}
	if f.EntityID != "" && f.EntityType == "" {
		return fmt.Errorf("%w: entity id requires an entity type", ErrInvalidFilter)
	}
	if f.Limit < NoLimit {
		return fmt.Errorf("%w: limit %d must be -1, 0 or positive", ErrInvalidFilter, f.Limit)
	}
	if f.Since < 0 || f.Until < 0 {
		return fmt.Errorf("%w: negative time bound", ErrInvalidFilter)
	}
	if f.Since > 0 && f.Until > 0 && f.Since > f.Until {
		return fmt.Errorf("%w: since %d is after until %d", ErrInvalidFilter, f.Since, f.Until)
	}
	return nil
}

// EffectiveLimit resolves the zero value to DefaultLimit.
func (f Filter) EffectiveLimit() int {
	if f.Limit == 0 {
		return DefaultLimit
	}
	return f.Limit
}

// Predicate lowers the filter to a predicate tree over commits.
func (f Filter) Predicate() Predicate {
	var preds []Predicate

	if f.EntityType != "" {
		change := []Predicate{Equals{Column: ColEntityType, Value: string(f.EntityType)}}
		if f.EntityID != "" {
			change = append(change, Equals{Column: ColEntityID, Value: f.EntityID})
		}
		preds = append(preds, HasChange{Filter: And{Predicates: change}})
	}

	if f.ObjectID != "" {
		preds = append(preds, ObjectReference(f.ObjectID))
	}

	if f.Author != "" {
		preds = append(preds, Equals{Column: ColAuthor, Value: f.Author})
	}
	if f.Since > 0 {
		preds = append(preds, AtLeast{Column: ColTimestamp, Value: f.Since})
	}
	if f.Until > 0 {
		preds = append(preds, AtMost{Column: ColTimestamp, Value: f.Until})
	}

	return And{Predicates: preds}
}

// ObjectReference matches commits with a change that references objectID,
// either as its entity id or as the "id" field of its before or after data.
func ObjectReference(objectID string) Predicate {
	return HasChange{Filter: Or{Predicates: []Predicate{
		Equals{Column: ColEntityID, Value: objectID},
		JSONEquals{Column: ColBeforeData, Path: "$.id", Value: objectID},
		JSONEquals{Column: ColAfterData, Path: "$.id", Value: objectID},
	}}}
}
