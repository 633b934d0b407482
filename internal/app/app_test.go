package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/maelza/maelza-erp/internal/observability"
	"github.com/maelza/maelza-erp/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ADDR", ":9090")
	t.Setenv("DOCUMENT_LOCK_TTL", "5s")
	t.Setenv("LOW_STOCK_ALERTS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.AppAddr)
	require.Equal(t, 5*time.Second, cfg.DocumentLockTTL)
	require.False(t, cfg.LowStockAlerts)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyRetention)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsZeroLockTTL(t *testing.T) {
	t.Setenv("DOCUMENT_LOCK_TTL", "0s")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"}).Info("hidden")
	require.Empty(t, buf.String())

	newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"}).Warn("shown", slog.String("k", "v"))
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"k":"v"`)
}

func TestActorMiddleware(t *testing.T) {
	var seen uuid.UUID
	h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	actor := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, actor.String())
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, actor, seen)

	rr := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "alice")
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestRouterHealthAndMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Logger: logger, Config: &Config{}, Metrics: metrics, Database: fakePinger{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `maelza_http_requests_total{code="200",route="/healthz"} 1`)

	down := NewRouter(RouterParams{Logger: logger, Config: &Config{}, Database: fakePinger{err: errors.New("refused")}})
	rr = httptest.NewRecorder()
	down.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestInTestMode(t *testing.T) {
	t.Setenv("MAELZA_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv("MAELZA_TEST_MODE", "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
