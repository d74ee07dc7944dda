package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ProviderResult is the immediate answer of the mobile-money provider to a
// charge request. A false Success is an explicit rejection; transport and
// infrastructure failures are reported as errors by the gateway instead.
type ProviderResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// TransactionID extracts the provider's transaction identifier. Providers
// answer with transactionId, transaction_id or a nested transaction.pk; the
// first non-empty one wins in that order.
func (r ProviderResult) TransactionID() string {
	if r.Data == nil {
		return ""
	}
	if id := stringValue(r.Data["transactionId"]); id != "" {
		return id
	}
	if id := stringValue(r.Data["transaction_id"]); id != "" {
		return id
	}
	if nested, ok := r.Data["transaction"].(map[string]any); ok {
		return stringValue(nested["pk"])
	}
	return ""
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// PaymentGateway moves money through the external mobile-money API.
type PaymentGateway interface {
	Charge(ctx context.Context, amount decimal.Decimal, phone, operator string) (*ProviderResult, error)
}

// Notifier sends payer-facing messages.
type Notifier interface {
	SendConfirmation(ctx context.Context, phone string, amount decimal.Decimal, reference string) error
	SendFailure(ctx context.Context, phone string, amount decimal.Decimal, reference, reason string) error
}

// IdempotencyStore maps a caller-supplied idempotency key to a reference.
//
// Reserve binds key to reference when the key is new and returns
// ("", nil). When the key is already bound it returns the existing reference.
// Release drops the binding if it still points at reference.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, reference string) (string, error)
	Release(ctx context.Context, key, reference string) error
}
