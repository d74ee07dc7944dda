package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"momo-payments/internal/domain"
)

const collectPath = "/payment/collect"

// HTTPConfig holds the provider endpoint and credentials.
type HTTPConfig struct {
	BaseURL   string
	AppKey    string
	AccessKey string
	SecretKey string
	Country   string
	Currency  string
	Timeout   time.Duration
}

// HTTPGateway charges payers through the mobile-money provider's REST API.
// Each Charge performs exactly one request. Consecutive infrastructure
// failures open the breaker so later charges fail fast instead of piling
// up on a dead endpoint; explicit rejections never count as failures.
type HTTPGateway struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

type collectRequest struct {
	Amount   json.Number `json:"amount"`
	Service  string      `json:"service"`
	Payer    string      `json:"payer"`
	Country  string      `json:"country"`
	Currency string      `json:"currency"`
}

func NewHTTPGateway(cfg HTTPConfig, logger *slog.Logger) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "XAF"
	}

	g := &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mobile-money-provider",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Provider circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

func (g *HTTPGateway) Charge(ctx context.Context, amount decimal.Decimal, phone, operator string) (*domain.ProviderResult, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.collect(ctx, amount, phone, operator)
	})
	if err != nil {
		g.logger.Error("Provider charge failed", "operator", operator, "error", err)
		return nil, err
	}
	return result.(*domain.ProviderResult), nil
}

func (g *HTTPGateway) collect(ctx context.Context, amount decimal.Decimal, phone, operator string) (*domain.ProviderResult, error) {
	body, err := json.Marshal(collectRequest{
		Amount:   json.Number(amount.String()),
		Service:  strings.ToUpper(operator),
		Payer:    phone,
		Country:  g.cfg.Country,
		Currency: g.cfg.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("encode collect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(g.cfg.BaseURL, "/")+collectPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build collect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-App-Key", g.cfg.AppKey)
	req.Header.Set("X-Access-Key", g.cfg.AccessKey)
	req.Header.Set("X-Secret-Key", g.cfg.SecretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	// Numbers stay json.Number so large numeric ids keep every digit.
	var payload map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			if resp.StatusCode >= http.StatusBadRequest {
				return &domain.ProviderResult{Success: false, Error: truncate(string(raw), 512)}, nil
			}
			return nil, fmt.Errorf("decode provider response: %w", err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest || payload["success"] == false {
		reason := rejectionReason(payload)
		if reason == "" {
			reason = fmt.Sprintf("provider rejected the charge with status %d", resp.StatusCode)
		}
		g.logger.Warn("Provider rejected charge", "operator", operator, "status", resp.StatusCode, "reason", reason)
		return &domain.ProviderResult{Success: false, Error: reason}, nil
	}

	data := payload
	if nested, ok := payload["data"].(map[string]any); ok {
		data = nested
	}
	return &domain.ProviderResult{Success: true, Data: data}, nil
}

func rejectionReason(payload map[string]any) string {
	for _, key := range []string{"error", "message", "detail"} {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
