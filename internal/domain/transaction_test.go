package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.True(t, StatusPending.CanTransitionTo(StatusSuccess))
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))

	for _, terminal := range []Status{StatusSuccess, StatusFailed} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []Status{StatusPending, StatusSuccess, StatusFailed} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}

	assert.False(t, Status("COMPLETED").Valid())
}

func TestView(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	providerID := "abc123"
	tx := &Transaction{
		ID:                    uuid.New(),
		Reference:             "TX-ABCDEFGH",
		Amount:                decimal.NewFromInt(15000),
		CustomerPhone:         "237670000000",
		Operator:              "MTN",
		MerchantID:            "merchant-1",
		Status:                StatusPending,
		ProviderTransactionID: &providerID,
		CreatedAt:             created,
	}

	assert.Equal(t, TransactionView{
		Reference: "TX-ABCDEFGH",
		Amount:    decimal.NewFromInt(15000),
		Status:    StatusPending,
		Operator:  "MTN",
		CreatedAt: created,
	}, tx.View())
}

func TestProviderTransactionID(t *testing.T) {
	cases := []struct {
		name string
		data map[string]any
		want string
	}{
		{"camel case", map[string]any{"transactionId": "abc123"}, "abc123"},
		{"snake case", map[string]any{"transaction_id": "snake-1"}, "snake-1"},
		{"nested pk", map[string]any{"transaction": map[string]any{"pk": "pk-9"}}, "pk-9"},
		{"numeric pk", map[string]any{"transaction": map[string]any{"pk": float64(884213)}}, "884213"},
		{"precedence", map[string]any{
			"transactionId":  "first",
			"transaction_id": "second",
			"transaction":    map[string]any{"pk": "third"},
		}, "first"},
		{"empty falls through", map[string]any{"transactionId": "", "transaction_id": "second"}, "second"},
		{"none", map[string]any{"status": "ok"}, ""},
		{"nil data", nil, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ProviderResult{Success: true, Data: tc.data}.TransactionID())
		})
	}
}
