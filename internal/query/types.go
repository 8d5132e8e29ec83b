package query

// Predicate is a filter condition over commits and their changes.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: column = value
//   - JSONEquals: json_extract(column, path) = value
//   - AtLeast / AtMost: inclusive integer bounds
//   - And / Or: conjunction and disjunction
//   - HasChange: the commit has at least one change matching a predicate
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Equals matches rows where Column equals Value.
type Equals struct {
	Column string
	Value  any
}

func (Equals) predicateNode() {}

// JSONEquals matches rows where the JSON value at Path inside Column equals
// Value. Used to find an object id carried inside a snapshot payload.
type JSONEquals struct {
	Column string
	Path   string // e.g. "$.id"
	Value  any
}

func (JSONEquals) predicateNode() {}

// AtLeast matches rows where Column >= Value.
type AtLeast struct {
	Column string
	Value  int64
}

func (AtLeast) predicateNode() {}

// AtMost matches rows where Column <= Value.
type AtMost struct {
	Column string
	Value  int64
}

func (AtMost) predicateNode() {}

// And matches when every predicate matches. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or matches when any predicate matches. Empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// HasChange matches commits with at least one change satisfying Filter.
// Columns inside Filter refer to the changes table (alias ch).
type HasChange struct {
	Filter Predicate
}

func (HasChange) predicateNode() {}

// Commit columns (alias c).
const (
	ColSeq       = "c.seq"
	ColHash      = "c.hash"
	ColTimestamp = "c.timestamp"
	ColAuthor    = "c.author"
	ColDevice    = "c.device_fingerprint"
)

// Change columns (alias ch).
const (
	ColEntityType = "ch.entity_type"
	ColEntityID   = "ch.entity_id"
	ColChangeType = "ch.change_type"
	ColBeforeData = "ch.before_data"
	ColAfterData  = "ch.after_data"
)

// CommitColumns is the select list shared by every commit query, in the
// order scanned by the store.
const CommitColumns = "c.seq, c.hash, c.timestamp, c.message, c.author, c.parent_hash, c.encrypted_snapshot, c.device_fingerprint"

var commitColumns = map[string]bool{
	ColSeq:       true,
	ColHash:      true,
	ColTimestamp: true,
	ColAuthor:    true,
	ColDevice:    true,
}

var changeColumns = map[string]bool{
	ColEntityType: true,
	ColEntityID:   true,
	ColChangeType: true,
	ColBeforeData: true,
	ColAfterData:  true,
}
