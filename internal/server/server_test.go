package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momo-payments/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Environment:  config.EnvDevelopment,
		ServerPort:   "0",
		StoreDriver:  config.StoreDriverMemory,
		ProviderMode: config.ProviderModeSandbox,
		MinAmount:    decimal.NewFromInt(config.DefaultMinAmount),

		IdempotencyTTL: time.Hour,
	}
}

func TestNewServerMemorySandbox(t *testing.T) {
	srv, err := NewServer(memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop(context.Background()) })

	rec := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, config.StoreDriverMemory, health["store"])

	body := `{"amount":10000,"customer_phone":"237670000001","operator":"ORANGE","merchant_id":"m-1"}`
	rec = httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, httptest.NewRequest("POST", "/payments", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, httptest.NewRequest("DELETE", "/payments", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartAndStop(t *testing.T) {
	srv, port, err := StartServer(memoryConfig())
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)
	assert.Equal(t, "http://localhost:"+port, srv.GetBaseURL())

	resp, err := http.Get(srv.GetBaseURL() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
}

func TestNewServerUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "cassandra"

	_, err := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "cassandra")
}
