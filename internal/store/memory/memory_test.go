package memory

import (
	"context"
	"testing"
	"time"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStore(t *testing.T) {
	s := NewUserStore(domain.User{ID: "u-1", Email: "ann@example.com", Name: "Ann"})

	u, err := s.FindByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)

	_, err = s.FindByEmail(context.Background(), "bob@example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProductStoreDecrement(t *testing.T) {
	ctx := context.Background()
	s := NewProductStore(domain.Product{ID: "p-1", Name: "Mug", Price: decimal.NewFromInt(5), Stock: 10})

	require.NoError(t, s.DecrementStock(ctx, "p-1", 3))
	p, err := s.FindByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)

	assert.ErrorIs(t, s.DecrementStock(ctx, "p-9", 1), apperr.ErrNotFound)
}

func TestCartStoreRoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewCartStore()

	missing, err := s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	cart := domain.NewCart("u-1", domain.NewCartLine("p-1", "Mug", 2, decimal.NewFromInt(5)))
	require.NoError(t, s.Save(ctx, cart))

	got, err := s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(10)))

	require.NoError(t, s.Clear(ctx, "u-1"))
	got, err = s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
	assert.True(t, got.TotalAmount.IsZero())
}

func TestOrderStore(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()
	assert.False(t, s.SupportsTransactions(ctx))
	assert.ErrorIs(t, s.WithinTx(ctx, func(context.Context) error { return nil }), ErrTxUnsupported)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := &domain.Order{ID: "o-1", UserID: "u-1", OrderNumber: "ORD-20260301-000001", CreatedAt: base}
	newer := &domain.Order{ID: "o-2", UserID: "u-1", OrderNumber: "ORD-20260301-000002", CreatedAt: base.Add(time.Minute)}
	other := &domain.Order{ID: "o-3", UserID: "u-2", OrderNumber: "ORD-20260301-000003", CreatedAt: base}

	for _, o := range []*domain.Order{older, newer, other} {
		require.NoError(t, s.Insert(ctx, o))
	}

	dup := &domain.Order{ID: "o-4", UserID: "u-1", OrderNumber: "ORD-20260301-000001"}
	assert.ErrorIs(t, s.Insert(ctx, dup), apperr.ErrConflict)

	orders, err := s.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o-2", orders[0].ID)
	assert.Equal(t, "o-1", orders[1].ID)
	assert.Equal(t, 3, s.Count())

	found, err := s.FindByID(ctx, "o-3")
	require.NoError(t, err)
	assert.Equal(t, "u-2", found.UserID)

	_, err = s.FindByID(ctx, "o-404")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
