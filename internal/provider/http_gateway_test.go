package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*HTTPGateway, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	gw := NewHTTPGateway(HTTPConfig{
		BaseURL:   srv.URL,
		AppKey:    "app",
		AccessKey: "access",
		SecretKey: "secret",
		Country:   "CM",
		Timeout:   2 * time.Second,
	}, discardLogger())
	return gw, &calls
}

func TestChargeSuccessUnwrapsData(t *testing.T) {
	var received collectRequest
	gw, calls := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, collectPath, r.URL.Path)
		assert.Equal(t, "app", r.Header.Get("X-App-Key"))
		assert.Equal(t, "secret", r.Header.Get("X-Secret-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success": true, "data": {"transactionId": "abc123", "status": "PENDING"}}`))
	})

	result, err := gw.Charge(context.Background(), decimal.NewFromInt(15000), "237670000001", "mtn")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "abc123", result.TransactionID())
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	assert.Equal(t, "15000", received.Amount.String())
	assert.Equal(t, "MTN", received.Service)
	assert.Equal(t, "237670000001", received.Payer)
	assert.Equal(t, "XAF", received.Currency)
}

func TestChargeSuccessWithoutEnvelope(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transaction": {"pk": "pk-42"}}`))
	})

	result, err := gw.Charge(context.Background(), decimal.NewFromInt(100), "237670000001", "ORANGE")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "pk-42", result.TransactionID())
}

func TestChargeKeepsLargeNumericIDs(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"transaction":{"pk":9007199254740993}}}`))
	})

	result, err := gw.Charge(context.Background(), decimal.NewFromInt(10000), "237670000001", "MTN")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "9007199254740993", result.TransactionID())
}

func TestChargeExplicitRejection(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "insufficient funds"}`))
	})

	result, err := gw.Charge(context.Background(), decimal.NewFromInt(100), "237670000001", "MTN")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "insufficient funds", result.Error)
}

func TestChargeClientErrorIsRejection(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "invalid payer number"}`))
	})

	result, err := gw.Charge(context.Background(), decimal.NewFromInt(100), "123", "MTN")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "invalid payer number", result.Error)
}

func TestChargeServerErrorIsNotRetried(t *testing.T) {
	gw, calls := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	result, err := gw.Charge(context.Background(), decimal.NewFromInt(100), "237670000001", "MTN")
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	gw, calls := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		_, err := gw.Charge(context.Background(), decimal.NewFromInt(100), "237670000001", "MTN")
		assert.Error(t, err)
	}

	_, err := gw.Charge(context.Background(), decimal.NewFromInt(100), "237670000001", "MTN")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), atomic.LoadInt32(calls))
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	gw, calls := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "declined"}`))
	})

	for i := 0; i < 8; i++ {
		result, err := gw.Charge(context.Background(), decimal.NewFromInt(100), "237670000001", "MTN")
		require.NoError(t, err)
		assert.Equal(t, "declined", result.Error)
	}
	assert.Equal(t, int32(8), atomic.LoadInt32(calls))
}

func TestSandboxGateway(t *testing.T) {
	gw := NewSandboxGateway(discardLogger())
	ctx := context.Background()

	ok, err := gw.Charge(ctx, decimal.NewFromInt(100), "237670001234", "MTN")
	require.NoError(t, err)
	assert.True(t, ok.Success)
	assert.NotEmpty(t, ok.TransactionID())

	rejected, err := gw.Charge(ctx, decimal.NewFromInt(100), "237670000000", "MTN")
	require.NoError(t, err)
	assert.False(t, rejected.Success)
	assert.Equal(t, SandboxRejectMessage, rejected.Error)

	noID, err := gw.Charge(ctx, decimal.NewFromInt(100), "237670001111", "MTN")
	require.NoError(t, err)
	assert.True(t, noID.Success)
	assert.Empty(t, noID.TransactionID())
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))

	// "é" is two bytes; cutting inside it drops the whole rune.
	assert.Equal(t, "solde insuffisant ", truncate("solde insuffisant é", 19))
	assert.True(t, utf8.ValidString(truncate("échec: fonds insuffisants", 1)))
	assert.Equal(t, "", truncate("é", 1))
}

func TestServerErrorMessageIsValidUTF8(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("x" + strings.Repeat("é", 300)))
	})

	_, err := gw.Charge(context.Background(), decimal.NewFromInt(100), "237670000001", "MTN")
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
}
