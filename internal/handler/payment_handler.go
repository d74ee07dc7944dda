package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"momo-payments/internal/domain"
	"momo-payments/internal/errors"
	"momo-payments/internal/service"
)

// IdempotencyHeader carries the caller's idempotency key. The body field
// idempotency_key is accepted as a fallback.
const IdempotencyHeader = "Idempotency-Key"

type PaymentHandler struct {
	paymentService *service.PaymentService
	errorWriter
}

func NewPaymentHandler(paymentService *service.PaymentService, exposeInternal bool) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		errorWriter:    errorWriter{exposeInternal: exposeInternal},
	}
}

type InitiatePaymentRequest struct {
	Amount         json.Number    `json:"amount"`
	CustomerPhone  string         `json:"customer_phone"`
	Operator       string         `json:"operator"`
	MerchantID     string         `json:"merchant_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type InitiatePaymentResponse struct {
	Reference     string        `json:"reference"`
	TransactionID *string       `json:"transaction_id,omitempty"`
	Status        domain.Status `json:"status"`
}

type TransactionResponse struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Status    domain.Status   `json:"status"`
	Operator  string          `json:"operator"`
	CreatedAt string          `json:"created_at"`
}

type MerchantTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	if req.Amount == "" {
		h.writeError(w, errors.NewAppError(errors.ValidationError, "amount is required"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		h.writeError(w, errors.NewAppError(errors.ValidationError, "invalid amount format").WithDetails(err.Error()))
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	result, err := h.paymentService.Initiate(r.Context(), &service.InitiateRequest{
		Amount:         amount,
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		Operator:       strings.TrimSpace(req.Operator),
		MerchantID:     strings.TrimSpace(req.MerchantID),
		Metadata:       req.Metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeError(w, errors.As(err))
		return
	}

	message := "payment initiated, confirm on your phone"
	if result.Replayed {
		message = "payment already initiated"
	}
	writeJSON(w, http.StatusOK, message, InitiatePaymentResponse{
		Reference:     result.Reference,
		TransactionID: result.ProviderTransactionID,
		Status:        result.Status,
	})
}

func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]

	view, err := h.paymentService.GetStatus(r.Context(), reference)
	if err != nil {
		h.writeError(w, errors.As(err))
		return
	}

	writeJSON(w, http.StatusOK, "", toTransactionResponse(*view))
}

func (h *PaymentHandler) MerchantHistory(w http.ResponseWriter, r *http.Request) {
	merchantID := mux.Vars(r)["merchant_id"]

	views, err := h.paymentService.GetMerchantHistory(r.Context(), merchantID)
	if err != nil {
		h.writeError(w, errors.As(err))
		return
	}

	response := MerchantTransactionsResponse{Transactions: make([]TransactionResponse, 0, len(views))}
	for _, view := range views {
		response.Transactions = append(response.Transactions, toTransactionResponse(view))
	}
	writeJSON(w, http.StatusOK, "", response)
}

func toTransactionResponse(view domain.TransactionView) TransactionResponse {
	return TransactionResponse{
		Reference: view.Reference,
		Amount:    view.Amount,
		Status:    view.Status,
		Operator:  view.Operator,
		CreatedAt: view.CreatedAt.UTC().Format(time.RFC3339),
	}
}
