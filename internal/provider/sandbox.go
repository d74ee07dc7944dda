package provider

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"momo-payments/internal/domain"
)

// Payer numbers ending with these suffixes trigger simulated outcomes.
const (
	SandboxRejectSuffix  = "0000"
	SandboxNoIDSuffix    = "1111"
	SandboxRejectMessage = "insufficient funds"
)

// SandboxGateway simulates the provider for local development. Charges
// succeed with a generated transaction id unless the payer number ends with
// one of the sandbox suffixes.
type SandboxGateway struct {
	logger *slog.Logger
}

func NewSandboxGateway(logger *slog.Logger) *SandboxGateway {
	return &SandboxGateway{logger: logger}
}

func (g *SandboxGateway) Charge(ctx context.Context, amount decimal.Decimal, phone, operator string) (*domain.ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.logger.Info("Sandbox charge", "amount", amount, "operator", operator)

	switch {
	case strings.HasSuffix(phone, SandboxRejectSuffix):
		return &domain.ProviderResult{Success: false, Error: SandboxRejectMessage}, nil
	case strings.HasSuffix(phone, SandboxNoIDSuffix):
		return &domain.ProviderResult{Success: true, Data: map[string]any{"status": "PENDING"}}, nil
	}

	return &domain.ProviderResult{
		Success: true,
		Data: map[string]any{
			"transactionId": "SBX-" + strings.ToUpper(uuid.NewString()[:12]),
			"status":        "PENDING",
		},
	}, nil
}
