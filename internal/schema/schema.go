// Package schema validates entity payloads against CUE definitions.
//
// The definitions live in entities.cue and are embedded at build time.
// Definitions are closed: a payload carrying an unknown field is rejected.
package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/tally/internal/model"
)

//go:embed entities.cue
var entitiesCUE []byte

// ErrInvalidPayload is wrapped by every validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

var definitions = map[model.EntityType]string{
	model.EntityUnassignedCash: "#UnassignedCash",
	model.EntityActualBalance:  "#ActualBalance",
	model.EntityDebt:           "#Debt",
	model.EntityEnvelope:       "#Envelope",
	model.EntityTransaction:    "#Transaction",
	model.EntityBill:           "#Bill",
}

// Validator checks payloads against the embedded definitions.
// A cue.Context is not safe for concurrent use, so calls are serialized.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[model.EntityType]cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(entitiesCUE, cue.Filename("entities.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile entity schema: %w", formatCUEError(err))
	}

	defs := make(map[model.EntityType]cue.Value, len(definitions))
	for et, name := range definitions {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return nil, fmt.Errorf("entity schema: missing definition %s", name)
		}
		defs[et] = def
	}
	return &Validator{ctx: ctx, defs: defs}, nil
}

// MustNew is like New but panics on error.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks one payload. A nil payload is always valid.
func (v *Validator) Validate(p model.Payload) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrInvalidPayload, p.EntityType(), err)
	}
	return v.ValidateJSON(p.EntityType(), data)
}

// ValidateJSON checks the JSON form of a payload for the given entity type.
func (v *Validator) ValidateJSON(entityType model.EntityType, data []byte) error {
	def, ok := v.defs[entityType]
	if !ok {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidPayload, entityType)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.CompileBytes(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, entityType, formatCUEError(err))
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, entityType, formatCUEError(err))
	}
	return nil
}

// ValidateChange checks both payloads of a change.
func (v *Validator) ValidateChange(ch model.Change) error {
	if err := v.Validate(ch.BeforeData); err != nil {
		return fmt.Errorf("beforeData: %w", err)
	}
	if err := v.Validate(ch.AfterData); err != nil {
		return fmt.Errorf("afterData: %w", err)
	}
	return nil
}

// formatCUEError keeps only the first of possibly many CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return errors.New(errs[0].Error())
}
