package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"momo-payments/internal/domain"
	"momo-payments/internal/errors"
	"momo-payments/internal/notification"
)

// maxReferenceAttempts bounds regeneration after a reference collision.
const maxReferenceAttempts = 5

type Options struct {
	MinAmount decimal.Decimal
}

// PaymentService orchestrates the lifecycle of a mobile-money charge: it
// persists the transaction, calls the provider once and reconciles the
// provider's immediate answer with the stored record.
type PaymentService struct {
	repo          domain.TransactionRepository
	gateway       domain.PaymentGateway
	notifications *notification.Dispatcher
	idempotency   domain.IdempotencyStore
	minAmount     decimal.Decimal
	logger        *slog.Logger
}

func NewPaymentService(
	repo domain.TransactionRepository,
	gateway domain.PaymentGateway,
	notifier domain.Notifier,
	idempotency domain.IdempotencyStore,
	opts Options,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		repo:          repo,
		gateway:       gateway,
		notifications: notification.NewDispatcher(notifier, logger),
		idempotency:   idempotency,
		minAmount:     opts.MinAmount,
		logger:        logger,
	}
}

type InitiateRequest struct {
	Amount         decimal.Decimal
	CustomerPhone  string
	Operator       string
	MerchantID     string
	Metadata       map[string]any
	IdempotencyKey string
}

type InitiateResult struct {
	Reference             string
	ProviderTransactionID *string
	Status                domain.Status
	Replayed              bool
}

// Initiate creates a PENDING transaction and asks the provider to charge the
// payer. An internal_error returned after the record was created means the
// outcome is unknown; callers reconcile by polling the reference.
func (s *PaymentService) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	s.logger.Info("Initiating payment",
		"amount", req.Amount,
		"operator", req.Operator,
		"merchant_id", req.MerchantID)

	if err := s.validateInitiate(req); err != nil {
		return nil, err
	}

	tx, replay, err := s.createTransaction(ctx, req)
	if err != nil || replay != nil {
		return replay, err
	}

	s.logger.Info("Payment initiated", "reference", tx.Reference, "amount", tx.Amount)
	s.notifications.Confirmation(ctx, tx.CustomerPhone, tx.Amount, tx.Reference)

	result, err := s.gateway.Charge(ctx, tx.Amount, tx.CustomerPhone, tx.Operator)
	if err == nil && result == nil {
		err = fmt.Errorf("provider returned no result")
	}
	if err != nil {
		s.logger.Error("Provider call failed, transaction left pending",
			"reference", tx.Reference, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "payment provider unavailable, check the transaction status later").
			WithDetails(err.Error())
	}

	if !result.Success {
		return nil, s.failTransaction(ctx, tx, result.Error)
	}
	return s.attachProviderID(ctx, tx, result), nil
}

func (s *PaymentService) validateInitiate(req *InitiateRequest) error {
	if !req.Amount.IsInteger() {
		return errors.NewAppError(errors.ValidationError, "amount must be a whole number of FCFA").WithDetails(req.Amount.String())
	}
	if req.Amount.LessThan(s.minAmount) {
		return errors.ErrAmountTooLow.WithDetails(fmt.Sprintf("minimum is %s FCFA", s.minAmount.String()))
	}
	if strings.TrimSpace(req.CustomerPhone) == "" {
		return errors.NewAppError(errors.ValidationError, "customer_phone is required")
	}
	if strings.TrimSpace(req.Operator) == "" {
		return errors.NewAppError(errors.ValidationError, "operator is required")
	}
	if strings.TrimSpace(req.MerchantID) == "" {
		return errors.NewAppError(errors.ValidationError, "merchant_id is required")
	}
	for _, key := range []string{domain.MetadataError, domain.MetadataProviderError} {
		if _, ok := req.Metadata[key]; ok {
			return errors.NewAppErrorf(errors.ValidationError, "metadata key %q is reserved", key)
		}
	}
	return nil
}

// createTransaction persists the PENDING record. When the request carries an
// idempotency key that is already bound, it returns the earlier outcome
// instead and nothing is written.
func (s *PaymentService) createTransaction(ctx context.Context, req *InitiateRequest) (*domain.Transaction, *InitiateResult, error) {
	for attempt := 1; attempt <= maxReferenceAttempts; attempt++ {
		id := uuid.New()
		tx := &domain.Transaction{
			ID:            id,
			Reference:     domain.NewReference(id),
			Amount:        req.Amount,
			CustomerPhone: req.CustomerPhone,
			Operator:      req.Operator,
			MerchantID:    req.MerchantID,
			Metadata:      maps.Clone(req.Metadata),
			Status:        domain.StatusPending,
		}
		if tx.Metadata == nil {
			tx.Metadata = map[string]any{}
		}

		if req.IdempotencyKey != "" {
			existing, err := s.idempotency.Reserve(ctx, req.IdempotencyKey, tx.Reference)
			if err != nil {
				s.logger.Error("Failed to reserve idempotency key", "error", err)
				return nil, nil, errors.NewAppError(errors.InternalError, "failed to reserve idempotency key").WithDetails(err.Error())
			}
			if existing != "" {
				replay, err := s.replay(ctx, existing)
				return nil, replay, err
			}
		}

		err := s.repo.Create(ctx, tx)
		if err == nil {
			return tx, nil, nil
		}

		if req.IdempotencyKey != "" {
			if relErr := s.idempotency.Release(ctx, req.IdempotencyKey, tx.Reference); relErr != nil {
				s.logger.Error("Failed to release idempotency key", "reference", tx.Reference, "error", relErr)
			}
		}
		if !stderrors.Is(err, errors.ErrDuplicateReference) {
			return nil, nil, err
		}
		s.logger.Warn("Reference collision, regenerating", "reference", tx.Reference, "attempt", attempt)
	}

	return nil, nil, errors.NewAppError(errors.InternalError, "failed to allocate a unique reference")
}

func (s *PaymentService) replay(ctx context.Context, reference string) (*InitiateResult, error) {
	tx, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errors.ErrRequestInProgress.WithDetails(reference)
	}

	s.logger.Info("Replaying initiation for idempotency key", "reference", reference, "status", tx.Status)
	if tx.Status == domain.StatusFailed {
		reason, _ := tx.Metadata[domain.MetadataError].(string)
		return nil, errors.NewAppError(errors.ProviderError, "payment initiation failed").WithDetails(reason)
	}
	return &InitiateResult{
		Reference:             tx.Reference,
		ProviderTransactionID: tx.ProviderTransactionID,
		Status:                tx.Status,
		Replayed:              true,
	}, nil
}

func (s *PaymentService) failTransaction(ctx context.Context, tx *domain.Transaction, reason string) error {
	if reason == "" {
		reason = "payment rejected by provider"
	}
	s.logger.Warn("Provider rejected payment", "reference", tx.Reference, "reason", reason)

	failed := domain.StatusFailed
	update := domain.TransactionUpdate{
		Status: &failed,
		Metadata: map[string]any{
			domain.MetadataError:         reason,
			domain.MetadataProviderError: true,
		},
	}
	if err := s.repo.UpdateByID(ctx, tx.ID, update); err != nil {
		s.logger.Error("Failed to mark transaction as failed", "reference", tx.Reference, "error", err)
	}

	s.notifications.Failure(ctx, tx.CustomerPhone, tx.Amount, tx.Reference, reason)

	return errors.NewAppError(errors.ProviderError, "payment initiation failed").WithDetails(reason)
}

// attachProviderID records the provider's identifier. A missing identifier is
// tolerated: the charge was accepted and the caller still gets a reference.
func (s *PaymentService) attachProviderID(ctx context.Context, tx *domain.Transaction, result *domain.ProviderResult) *InitiateResult {
	out := &InitiateResult{
		Reference: tx.Reference,
		Status:    domain.StatusPending,
	}

	providerID := result.TransactionID()
	if providerID == "" {
		s.logger.Warn("Provider returned no transaction id", "reference", tx.Reference)
		return out
	}

	if err := s.repo.UpdateByID(ctx, tx.ID, domain.TransactionUpdate{ProviderTransactionID: &providerID}); err != nil {
		s.logger.Error("Failed to save provider transaction id",
			"reference", tx.Reference, "provider_transaction_id", providerID, "error", err)
	} else {
		s.logger.Info("Transaction saved with provider id", "reference", tx.Reference, "provider_transaction_id", providerID)
	}

	out.ProviderTransactionID = &providerID
	return out
}

// GetStatus reads the stored transaction. It never contacts the provider.
func (s *PaymentService) GetStatus(ctx context.Context, reference string) (*domain.TransactionView, error) {
	tx, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errors.ErrTransactionNotFound.WithDetails(reference)
	}

	view := tx.View()
	return &view, nil
}

// GetMerchantHistory returns the merchant's most recent transactions, newest
// first.
func (s *PaymentService) GetMerchantHistory(ctx context.Context, merchantID string) ([]domain.TransactionView, error) {
	txs, err := s.repo.FindByMerchant(ctx, merchantID, domain.MerchantHistoryLimit)
	if err != nil {
		return nil, err
	}

	views := make([]domain.TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, tx.View())
	}
	return views, nil
}

// Wait blocks until background notifications have been delivered.
func (s *PaymentService) Wait() {
	s.notifications.Wait()
}
