// Package recorder turns budget mutations into change tuples.
//
// Every function here is pure: the same inputs always produce the same
// model.Change, including its description. Nothing is persisted.
package recorder

import (
	"fmt"
	"strings"

	"github.com/roach88/tally/internal/model"
)

// DefaultAuthor is used when a mutation carries no author.
const DefaultAuthor = "Unknown User"

// Sources of an unassigned cash change.
const (
	SourceManual       = "manual"
	SourceDistribution = "distribution"
)

// Author returns the trimmed author, or DefaultAuthor when it is empty.
func Author(author string) string {
	if a := strings.TrimSpace(author); a != "" {
		return a
	}
	return DefaultAuthor
}

// UnassignedCash records an update of the unassigned cash pool.
//
// A "distribution" source describes money moved into envelopes; any other
// source is treated as a manual edit.
func UnassignedCash(previous, next model.Amount, source string) model.Change {
	desc := fmt.Sprintf("Updated unassigned cash from %s to %s", previous, next)
	if source == SourceDistribution {
		desc = fmt.Sprintf("Distributed %s to envelopes", (previous - next).Abs())
	}
	return model.Change{
		EntityType:  model.EntityUnassignedCash,
		EntityID:    model.SingletonID,
		ChangeType:  model.ChangeModify,
		Description: desc,
		BeforeData:  model.UnassignedCash{Amount: previous},
		AfterData:   model.UnassignedCash{Amount: next},
	}
}

// ActualBalance records an update of the real account balance.
func ActualBalance(previous, next model.Amount, isManual bool) model.Change {
	desc := fmt.Sprintf("Actual balance changed from %s to %s", previous, next)
	if isManual {
		desc = fmt.Sprintf("Manually updated actual balance from %s to %s", previous, next)
	}
	return model.Change{
		EntityType:  model.EntityActualBalance,
		EntityID:    model.SingletonID,
		ChangeType:  model.ChangeModify,
		Description: desc,
		BeforeData:  model.ActualBalance{Balance: previous, IsManual: isManual},
		AfterData:   model.ActualBalance{Balance: next, IsManual: isManual},
	}
}

// Entity records an add, modify or delete of a keyed entity (debt, envelope,
// transaction or bill). The payload that must be absent for the change type
// is dropped, so callers may pass both states unconditionally.
//
// A payload without an id takes entityID; a payload carrying a different id
// is rejected. An empty description is replaced by the generated one ("Added debt: Car Loan").
func Entity(entityType model.EntityType, entityID string, changeType model.ChangeType, before, after model.Payload, description string) (model.Change, error) {
	switch changeType {
	case model.ChangeAdd:
		before = nil
	case model.ChangeDelete:
		after = nil
	}

	if entityID == "" {
		entityID = model.PayloadID(after)
	}
	if entityID == "" {
		entityID = model.PayloadID(before)
	}
	var err error
	if before, err = keyed(before, entityID); err != nil {
		return model.Change{}, err
	}
	if after, err = keyed(after, entityID); err != nil {
		return model.Change{}, err
	}

	ch := model.Change{
		EntityType:  entityType,
		EntityID:    entityID,
		ChangeType:  changeType,
		Description: description,
		BeforeData:  before,
		AfterData:   after,
	}
	if ch.Description == "" {
		ch.Description = Describe(ch)
	}
	if err := ch.Validate(); err != nil {
		return model.Change{}, err
	}
	return ch, nil
}

func keyed(p model.Payload, entityID string) (model.Payload, error) {
	if p == nil || entityID == "" {
		return p, nil
	}
	switch id := model.PayloadID(p); id {
	case "":
		return model.WithPayloadID(p, entityID), nil
	case entityID:
		return p, nil
	default:
		return nil, fmt.Errorf("%w: payload id %q does not match entity id %q", model.ErrInvalidChange, id, entityID)
	}
}

// Debt records a debt mutation. previous and next may be nil where the
// change type has no such state.
func Debt(debtID string, changeType model.ChangeType, previous, next *model.Debt) (model.Change, error) {
	var before, after model.Payload
	if previous != nil {
		before = *previous
	}
	if next != nil {
		after = *next
	}
	return Entity(model.EntityDebt, debtID, changeType, before, after, "")
}

// Describe generates the description of a keyed entity change:
// "Added debt: N", "Updated envelope: N" or "Deleted bill: N".
func Describe(ch model.Change) string {
	verb := "Changed"
	switch ch.ChangeType {
	case model.ChangeAdd:
		verb = "Added"
	case model.ChangeModify:
		verb = "Updated"
	case model.ChangeDelete:
		verb = "Deleted"
	}

	label := ch.EntityID
	if ch.AfterData != nil && ch.AfterData.Label() != "" {
		label = ch.AfterData.Label()
	} else if ch.BeforeData != nil && ch.BeforeData.Label() != "" {
		label = ch.BeforeData.Label()
	}
	return fmt.Sprintf("%s %s: %s", verb, ch.EntityType.Noun(), label)
}

// Restore records the restoration of one entity to the state it had at a
// commit. current is the latest recorded state and target the restored one.
//
// The change type is add when the entity is currently absent and delete when
// the target state is absent. ok is false when both are absent, in which case
// there is nothing to record.
func Restore(entityType model.EntityType, entityID string, current, target model.Payload, commitHash string) (ch model.Change, ok bool) {
	var changeType model.ChangeType
	switch {
	case current == nil && target == nil:
		return model.Change{}, false
	case current == nil:
		changeType = model.ChangeAdd
	case target == nil:
		changeType = model.ChangeDelete
	default:
		changeType = model.ChangeModify
	}

	return model.Change{
		EntityType:  entityType,
		EntityID:    entityID,
		ChangeType:  changeType,
		Description: fmt.Sprintf("Restored %s %s to commit %s", entityType.Noun(), entityID, model.ShortHash(commitHash)),
		BeforeData:  current,
		AfterData:   target,
	}, true
}
