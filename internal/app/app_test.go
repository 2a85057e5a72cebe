package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/config"
	"github.com/sgandhi15/ecommerce-api/internal/domain"
	"github.com/sgandhi15/ecommerce-api/internal/order"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = `
users:
  - id: u-1
    email: alice@example.com
    name: Alice
  - id: u-2
    email: bob@example.com
    name: Bob
products:
  - id: p-1
    name: Keyboard
    price: "100.00"
    stock: 5
  - id: p-2
    name: Mouse
    price: "50.00"
    stock: 10
carts:
  - user_id: u-1
    items:
      - product_id: p-1
        quantity: 2
      - product_id: p-2
        quantity: 2
  - user_id: u-2
    items:
      - product_id: p-1
        quantity: 9
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestContainer(t *testing.T, seed string) *Container {
	t.Helper()
	t.Setenv("STORE_DRIVER", config.StoreMemory)
	t.Setenv("CART_DRIVER", config.CartMemory)
	t.Setenv("KAFKA_BROKER", "")
	t.Setenv("OTEL_ENDPOINT", "")
	t.Setenv("OPS_ADDR", "127.0.0.1:0")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("SEED_FILE", writeSeed(t, seed))

	cfg, err := config.Load("")
	require.NoError(t, err)

	c, err := newContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c
}

func address() *domain.ShippingAddress {
	return &domain.ShippingAddress{
		Street:     "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
	}
}

func TestCreateOrderEndToEnd(t *testing.T) {
	c := newTestContainer(t, testSeed)
	ctx := context.Background()

	created, err := c.Orchestrator().CreateOrder(ctx, order.CreateOrderInput{
		UserEmail:       "alice@example.com",
		ShippingAddress: address(),
	})
	require.NoError(t, err)

	assert.Equal(t, "u-1", created.UserID)
	assert.Equal(t, domain.OrderStatusPending, created.Status)
	assert.True(t, created.TotalAmount.Equal(decimal.NewFromInt(300)), "total was %s", created.TotalAmount)
	assert.Regexp(t, `^ORD-\d{8}-\d{6}$`, created.OrderNumber)
	assert.Len(t, created.Items, 2)

	cart, err := c.carts.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	require.Eventually(t, func() bool {
		p, err := c.products.FindByID(ctx, "p-1")
		return err == nil && p.Stock == 3
	}, 2*time.Second, 10*time.Millisecond)

	p2, err := c.products.FindByID(ctx, "p-2")
	require.NoError(t, err)
	assert.Equal(t, 8, p2.Stock)

	orders, err := c.Orchestrator().ListUserOrders(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, created.OrderNumber, orders[0].OrderNumber)

	fetched, err := c.Orchestrator().GetUserOrder(ctx, "alice@example.com", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderNumber, fetched.OrderNumber)

	_, err = c.Orchestrator().GetUserOrder(ctx, "bob@example.com", created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics().OrdersCreated.WithLabelValues("best_effort")))
	assert.Zero(t, c.correlator.Pending())
}

func TestCreateOrderTwiceFindsEmptyCart(t *testing.T) {
	c := newTestContainer(t, testSeed)
	ctx := context.Background()
	in := order.CreateOrderInput{UserEmail: "alice@example.com", ShippingAddress: address()}

	_, err := c.Orchestrator().CreateOrder(ctx, in)
	require.NoError(t, err)

	_, err = c.Orchestrator().CreateOrder(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrEmptyCart)
}

func TestCreateOrderInsufficientStockLeavesStateUntouched(t *testing.T) {
	c := newTestContainer(t, testSeed)
	ctx := context.Background()

	_, err := c.Orchestrator().CreateOrder(ctx, order.CreateOrderInput{
		UserEmail:       "bob@example.com",
		ShippingAddress: address(),
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Insufficient stock for Keyboard. Available: 5, Requested: 9")

	cart, err := c.carts.Get(ctx, "u-2")
	require.NoError(t, err)
	assert.False(t, cart.IsEmpty())

	p, err := c.products.FindByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	orders, err := c.Orchestrator().ListUserOrders(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderUnknownUserIsNotFound(t *testing.T) {
	c := newTestContainer(t, testSeed)

	// Either lookup can fail first; both must classify as not found.
	for i := 0; i < 50; i++ {
		_, err := c.Orchestrator().CreateOrder(context.Background(), order.CreateOrderInput{
			UserEmail:       "nobody@example.com",
			ShippingAddress: address(),
		})
		require.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Equal(t, "not_found", apperr.Kind(err))
		assert.Contains(t, err.Error(), "nobody@example.com")
	}
}

func TestNewContainerRejectsBadSeed(t *testing.T) {
	t.Setenv("STORE_DRIVER", config.StoreMemory)
	t.Setenv("CART_DRIVER", config.CartMemory)
	t.Setenv("KAFKA_BROKER", "")
	t.Setenv("OTEL_ENDPOINT", "")
	t.Setenv("SEED_FILE", writeSeed(t, `
products:
  - id: p-1
    name: Keyboard
    price: "100.00"
    stock: 1
carts:
  - user_id: u-1
    items:
      - product_id: p-404
        quantity: 1
`))

	cfg, err := config.Load("")
	require.NoError(t, err)

	_, err = newContainer(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown product p-404")
}

func TestOpsHandler(t *testing.T) {
	c := newTestContainer(t, testSeed)
	srv := httptest.NewServer(c.opsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	c.Metrics().OrdersDegraded.Inc()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "correlator_in_flight_requests")
	assert.Contains(t, string(body), `service="storefront"`)
}

func TestServeStopsOnCancel(t *testing.T) {
	c := newTestContainer(t, testSeed)
	ctx, cancel := context.WithCancel(context.Background())
	application := &Application{ctx: ctx, cancel: cancel, container: c}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- application.serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
