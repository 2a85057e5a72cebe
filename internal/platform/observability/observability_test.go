package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/sgandhi15/ecommerce-api/internal/config"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggerWritesJSONWithServiceName(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, zap.InfoLevel)

	logger.Info("Order created", zap.String("order_number", "ORD-20260101-000001"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Order created", entry["msg"])
	assert.Equal(t, config.ServiceName, entry["service.name"])
	assert.Equal(t, "ORD-20260101-000001", entry["order_number"])
	assert.Contains(t, entry, "caller")
}

func TestLoggerSatisfiesInterface(t *testing.T) {
	var l Logger = newLogger(io.Discard, zap.InfoLevel)
	assert.NotNil(t, l.With(zap.String("k", "v")))
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetrics("storefront-test")
	m.OrdersCreated.WithLabelValues("atomic").Inc()
	m.OrdersDegraded.Inc()
	m.RequestTimeouts.WithLabelValues("user.lookup.request").Add(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestTimeouts.WithLabelValues("user.lookup.request")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `orders_created_total{service="storefront-test",strategy="atomic"} 1`)
	assert.Contains(t, body, "orders_degraded_total")
}

func TestNewMetricsTwiceDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("a")
		NewMetrics("a")
	})
}

func TestSetupTracingSDKShutdown(t *testing.T) {
	cfg := &config.Config{Otel: config.OtelConfig{Endpoint: "localhost:4318"}}
	tp, shutdown, err := SetupTracingSDK(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Export fails against an absent collector; shutdown must still return.
	_ = shutdown(ctx)
	assert.NoError(t, shutdown(context.Background()))
}

func TestShutdownStackRunsInReverseAndJoinsErrors(t *testing.T) {
	var order []string
	errFirst := errors.New("first")
	errSecond := errors.New("second")

	var hooks shutdownStack
	hooks.push(func(context.Context) error { order = append(order, "first"); return errFirst })
	hooks.push(func(context.Context) error { order = append(order, "second"); return errSecond })

	err := hooks.run(context.Background())
	assert.Equal(t, []string{"second", "first"}, order)
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, errSecond)

	assert.NoError(t, hooks.run(context.Background()))
	assert.Len(t, order, 2)
}

func TestAuthHeaders(t *testing.T) {
	assert.Nil(t, authHeaders(&config.Config{}))

	cfg := &config.Config{Otel: config.OtelConfig{AuthHeader: "Basic abc"}}
	assert.Equal(t, map[string]string{"Authorization": "Basic abc"}, authHeaders(cfg))
}
