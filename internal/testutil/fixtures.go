package testutil

import (
	"bytes"

	"github.com/roach88/tally/internal/model"
)

// Key returns a fixed 32-byte snapshot key.
func Key() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

// OtherKey returns a valid key that differs from Key.
func OtherKey() []byte {
	return bytes.Repeat([]byte{0xA5, 0x5A}, 16)
}

// TestAuthor and TestDevice are the identity used by fixtures.
const (
	TestAuthor = "Test User"
	TestDevice = "device-test-0001"
)

// Debt returns a sample debt with the given id.
func Debt(id string) *model.Debt {
	return &model.Debt{
		ID:              id,
		Name:            "Visa",
		Creditor:        "Chase",
		Type:            "credit_card",
		CurrentBalance:  model.Amount(150000),
		MinimumPayment:  model.Amount(3500),
		InterestRateBps: 2199,
	}
}

// Envelope returns a sample envelope with the given id and name.
func Envelope(id, name string) model.Envelope {
	return model.Envelope{
		ID:            id,
		Name:          name,
		Category:      "Essentials",
		Balance:       model.Amount(40000),
		MonthlyBudget: model.Amount(60000),
	}
}

// Transaction returns a sample transaction with the given id.
func Transaction(id string) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        "2025-10-01",
		Description: "Groceries",
		Amount:      model.Amount(-8421),
		EnvelopeID:  "env-food",
	}
}
