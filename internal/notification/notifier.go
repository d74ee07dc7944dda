package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

func confirmationMessage(amount decimal.Decimal, reference string) string {
	return fmt.Sprintf("Payment request of %s FCFA created (ref %s). Please confirm on your phone.", amount.String(), reference)
}

func failureMessage(amount decimal.Decimal, reference, reason string) string {
	return fmt.Sprintf("Payment of %s FCFA (ref %s) failed: %s", amount.String(), reference, reason)
}

// SMSNotifier posts payer messages to an SMS relay webhook.
type SMSNotifier struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func NewSMSNotifier(url, token string, logger *slog.Logger) *SMSNotifier {
	return &SMSNotifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (n *SMSNotifier) SendConfirmation(ctx context.Context, phone string, amount decimal.Decimal, reference string) error {
	return n.send(ctx, phone, confirmationMessage(amount, reference))
}

func (n *SMSNotifier) SendFailure(ctx context.Context, phone string, amount decimal.Decimal, reference, reason string) error {
	return n.send(ctx, phone, failureMessage(amount, reference, reason))
}

func (n *SMSNotifier) send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(smsRequest{To: phone, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms relay request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms relay returned status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// LogNotifier writes payer messages to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendConfirmation(ctx context.Context, phone string, amount decimal.Decimal, reference string) error {
	n.logger.Info("Payer notification", "phone", phone, "message", confirmationMessage(amount, reference))
	return nil
}

func (n *LogNotifier) SendFailure(ctx context.Context, phone string, amount decimal.Decimal, reference, reason string) error {
	n.logger.Info("Payer notification", "phone", phone, "message", failureMessage(amount, reference, reason))
	return nil
}
