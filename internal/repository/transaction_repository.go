package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"momo-payments/internal/domain"
	"momo-payments/internal/errors"
)

const transactionColumns = `id, reference, amount, customer_phone, operator, merchant_id, metadata, status, provider_transaction_id, created_at, updated_at`

type transactionRepository struct {
	db     DB
	logger *slog.Logger
}

func NewTransactionRepository(db DB, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, reference, amount, customer_phone, operator, merchant_id, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return errors.NewAppError(errors.InvalidInput, "metadata is not serializable").WithDetails(err.Error())
	}

	err = r.db.QueryRowContext(ctx,
		query,
		tx.ID,
		tx.Reference,
		tx.Amount.String(),
		tx.CustomerPhone,
		tx.Operator,
		tx.MerchantID,
		metadata,
		tx.Status,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate transaction reference", "reference", tx.Reference, "constraint", pqErr.Constraint)
				return errors.ErrDuplicateReference
			}
		}
		r.logger.Error("Failed to create transaction",
			"reference", tx.Reference,
			"merchant_id", tx.MerchantID,
			"amount", tx.Amount,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to create transaction").WithDetails(err.Error())
	}

	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID, "reference", tx.Reference)
	return nil
}

func (r *transactionRepository) UpdateByID(ctx context.Context, id uuid.UUID, update domain.TransactionUpdate) error {
	sets := []string{"updated_at = NOW()"}
	conds := []string{"id = $1", "status = 'PENDING'"}
	args := []interface{}{id}

	if update.Status != nil {
		if !domain.StatusPending.CanTransitionTo(*update.Status) {
			return errors.ErrTransactionNotPending.WithDetails("invalid target status " + string(*update.Status))
		}
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.ProviderTransactionID != nil {
		args = append(args, *update.ProviderTransactionID)
		sets = append(sets, fmt.Sprintf("provider_transaction_id = $%d", len(args)))
		conds = append(conds, "provider_transaction_id IS NULL")
	}
	if len(update.Metadata) > 0 {
		metadata, err := marshalMetadata(update.Metadata)
		if err != nil {
			return errors.NewAppError(errors.InvalidInput, "metadata is not serializable").WithDetails(err.Error())
		}
		args = append(args, metadata)
		sets = append(sets, fmt.Sprintf("metadata = metadata || $%d::jsonb", len(args)))
	}

	query := fmt.Sprintf(`UPDATE transactions SET %s WHERE %s`,
		strings.Join(sets, ", "), strings.Join(conds, " AND "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update transaction", "transaction_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update transaction").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return errors.NewAppError(errors.InternalError, "failed to check transaction").WithDetails(err.Error())
		}
		if !exists {
			r.logger.Warn("No transaction found to update", "transaction_id", id)
			return errors.ErrTransactionNotFound
		}
		r.logger.Warn("Refusing update of settled transaction", "transaction_id", id)
		return errors.ErrTransactionNotPending
	}

	r.logger.Info("Transaction updated", "transaction_id", id)
	return nil
}

func (r *transactionRepository) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, reference))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction", "reference", reference, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}
	return tx, nil
}

func (r *transactionRepository) FindByMerchant(ctx context.Context, merchantID string, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions WHERE merchant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, merchantID, limit)
	if err != nil {
		r.logger.Error("Failed to query merchant transactions", "merchant_id", merchantID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to query transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to read transaction").WithDetails(err.Error())
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to read transactions").WithDetails(err.Error())
	}

	return transactions, nil
}

func (r *transactionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var transaction domain.Transaction
	var amountStr string
	var metadata []byte
	var providerID sql.NullString

	err := row.Scan(
		&transaction.ID,
		&transaction.Reference,
		&amountStr,
		&transaction.CustomerPhone,
		&transaction.Operator,
		&transaction.MerchantID,
		&metadata,
		&transaction.Status,
		&providerID,
		&transaction.CreatedAt,
		&transaction.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amountStr, err)
	}
	transaction.Amount = amount

	transaction.Metadata = map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &transaction.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	if providerID.Valid {
		transaction.ProviderTransactionID = &providerID.String
	}

	return &transaction, nil
}

// marshalMetadata returns JSON text; lib/pq would encode a []byte as bytea.
func marshalMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
