package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is a sealed interface over the entity snapshots a change can carry.
// Only the variants in this file implement it, one per EntityType.
//
// A nil Payload means "no data" (beforeData on add, afterData on delete).
type Payload interface {
	// EntityType returns the entity type this payload belongs to.
	EntityType() EntityType

	// Label returns a short human name used in descriptions.
	Label() string

	payload() // Sealed
}

// UnassignedCash is the singleton pool of money not yet assigned to envelopes.
// It serializes as a bare cents number.
type UnassignedCash struct {
	Amount Amount
}

func (UnassignedCash) payload()               {}
func (UnassignedCash) EntityType() EntityType { return EntityUnassignedCash }
func (p UnassignedCash) Label() string        { return p.Amount.String() }

// MarshalJSON encodes the payload as its amount in cents.
func (p UnassignedCash) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(p.Amount))
}

// UnmarshalJSON decodes a cents number.
func (p *UnassignedCash) UnmarshalJSON(data []byte) error {
	var cents int64
	if err := json.Unmarshal(data, &cents); err != nil {
		return fmt.Errorf("unassigned cash: %w", err)
	}
	p.Amount = Amount(cents)
	return nil
}

// ActualBalance is the singleton real-world account balance.
type ActualBalance struct {
	Balance  Amount `json:"balance"`
	IsManual bool   `json:"isManual"`
}

func (ActualBalance) payload()               {}
func (ActualBalance) EntityType() EntityType { return EntityActualBalance }
func (p ActualBalance) Label() string        { return p.Balance.String() }

// Debt is a tracked liability.
type Debt struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Creditor        string `json:"creditor,omitempty"`
	Type            string `json:"type,omitempty"`
	CurrentBalance  Amount `json:"currentBalance"`
	MinimumPayment  Amount `json:"minimumPayment,omitempty"`
	InterestRateBps int64  `json:"interestRateBps,omitempty"` // Basis points: 525 = 5.25%
}

func (Debt) payload()               {}
func (Debt) EntityType() EntityType { return EntityDebt }
func (p Debt) Label() string        { return p.Name }

// Envelope is a named spending bucket.
type Envelope struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	Balance       Amount `json:"balance"`
	MonthlyBudget Amount `json:"monthlyBudget,omitempty"`
	Archived      bool   `json:"archived,omitempty"`
}

func (Envelope) payload()               {}
func (Envelope) EntityType() EntityType { return EntityEnvelope }
func (p Envelope) Label() string        { return p.Name }

// Transaction is a single money movement.
type Transaction struct {
	ID          string `json:"id"`
	Date        string `json:"date"` // YYYY-MM-DD
	Description string `json:"description"`
	Amount      Amount `json:"amount"`
	EnvelopeID  string `json:"envelopeId,omitempty"`
	Category    string `json:"category,omitempty"`
}

func (Transaction) payload()               {}
func (Transaction) EntityType() EntityType { return EntityTransaction }
func (p Transaction) Label() string        { return p.Description }

// Bill is a recurring obligation.
type Bill struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Amount     Amount `json:"amount"`
	DueDate    string `json:"dueDate,omitempty"` // YYYY-MM-DD
	Frequency  string `json:"frequency,omitempty"`
	EnvelopeID string `json:"envelopeId,omitempty"`
	IsPaid     bool   `json:"isPaid,omitempty"`
}

func (Bill) payload()               {}
func (Bill) EntityType() EntityType { return EntityBill }
func (p Bill) Label() string        { return p.Name }

// PayloadID returns the "id" field carried inside a payload, or "" for
// singleton payloads that have none.
func PayloadID(p Payload) string {
	switch v := p.(type) {
	case Debt:
		return v.ID
	case Envelope:
		return v.ID
	case Transaction:
		return v.ID
	case Bill:
		return v.ID
	default:
		return ""
	}
}

// WithPayloadID returns p with its "id" field set to id. Singleton payloads
// are returned unchanged.
func WithPayloadID(p Payload, id string) Payload {
	switch v := p.(type) {
	case Debt:
		v.ID = id
		return v
	case Envelope:
		v.ID = id
		return v
	case Transaction:
		v.ID = id
		return v
	case Bill:
		v.ID = id
		return v
	default:
		return p
	}
}

// DecodePayload decodes JSON into the payload variant for entityType.
// Empty input and JSON null both decode to a nil Payload.
func DecodePayload(entityType EntityType, data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var (
		p   Payload
		err error
	)
	switch entityType {
	case EntityUnassignedCash:
		var v UnassignedCash
		err = json.Unmarshal(trimmed, &v)
		p = v
	case EntityActualBalance:
		var v ActualBalance
		err = json.Unmarshal(trimmed, &v)
		p = v
	case EntityDebt:
		var v Debt
		err = json.Unmarshal(trimmed, &v)
		p = v
	case EntityEnvelope:
		var v Envelope
		err = json.Unmarshal(trimmed, &v)
		p = v
	case EntityTransaction:
		var v Transaction
		err = json.Unmarshal(trimmed, &v)
		p = v
	case EntityBill:
		var v Bill
		err = json.Unmarshal(trimmed, &v)
		p = v
	default:
		return nil, fmt.Errorf("decode payload: unknown entity type %q", entityType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", entityType, err)
	}
	return p, nil
}

// UnmarshalJSON decodes a change, resolving payload variants from entityType.
func (c *Change) UnmarshalJSON(data []byte) error {
	var raw struct {
		CommitHash  string          `json:"commitHash"`
		EntityType  EntityType      `json:"entityType"`
		EntityID    string          `json:"entityId"`
		ChangeType  ChangeType      `json:"changeType"`
		Description string          `json:"description"`
		BeforeData  json.RawMessage `json:"beforeData"`
		AfterData   json.RawMessage `json:"afterData"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	before, err := DecodePayload(raw.EntityType, raw.BeforeData)
	if err != nil {
		return fmt.Errorf("beforeData: %w", err)
	}
	after, err := DecodePayload(raw.EntityType, raw.AfterData)
	if err != nil {
		return fmt.Errorf("afterData: %w", err)
	}

	*c = Change{
		CommitHash:  raw.CommitHash,
		EntityType:  raw.EntityType,
		EntityID:    raw.EntityID,
		ChangeType:  raw.ChangeType,
		Description: raw.Description,
		BeforeData:  before,
		AfterData:   after,
	}
	return nil
}
