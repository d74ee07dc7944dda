package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// MerchantHistoryLimit caps merchant history queries.
const MerchantHistoryLimit = 20

// Metadata keys written by the orchestrator on provider rejection.
const (
	MetadataError         = "error"
	MetadataProviderError = "mesomb_error"
)

// CanTransitionTo reports whether a status change is allowed. Only PENDING
// may move, and only forward to a terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusSuccess || next == StatusFailed
}

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

type Transaction struct {
	ID                    uuid.UUID       `json:"id"`
	Reference             string          `json:"reference"`
	Amount                decimal.Decimal `json:"amount"`
	CustomerPhone         string          `json:"customer_phone"`
	Operator              string          `json:"operator"`
	MerchantID            string          `json:"merchant_id"`
	Metadata              map[string]any  `json:"metadata"`
	Status                Status          `json:"status"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TransactionUpdate is a partial update. Nil fields are left untouched and
// Metadata is merged key by key into the stored map.
type TransactionUpdate struct {
	Status                *Status
	ProviderTransactionID *string
	Metadata              map[string]any
}

// TransactionView is the read model returned to callers.
type TransactionView struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	Operator  string          `json:"operator"`
	CreatedAt time.Time       `json:"created_at"`
}

func (t *Transaction) View() TransactionView {
	return TransactionView{
		Reference: t.Reference,
		Amount:    t.Amount,
		Status:    t.Status,
		Operator:  t.Operator,
		CreatedAt: t.CreatedAt,
	}
}

// TransactionRepository persists transactions.
//
// Create must reject a reference that already exists with
// errors.ErrDuplicateReference and set CreatedAt/UpdatedAt on tx.
// UpdateByID only applies to a record whose status is still PENDING and whose
// provider id is unset when the update carries one; otherwise it returns
// errors.ErrTransactionNotPending. FindByReference returns nil, nil when no
// record matches.
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	UpdateByID(ctx context.Context, id uuid.UUID, update TransactionUpdate) error
	FindByReference(ctx context.Context, reference string) (*Transaction, error)
	FindByMerchant(ctx context.Context, merchantID string, limit int) ([]*Transaction, error)
	Ping(ctx context.Context) error
}
