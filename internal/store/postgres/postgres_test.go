package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewDB(sqlx.NewDb(mockDB, "postgres")), mock
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:          "o-1",
		UserID:      "u-1",
		OrderNumber: "ORD-20260301-123456",
		Items: domain.SnapshotLines([]domain.CartLine{
			domain.NewCartLine("p-1", "Mug", 3, decimal.NewFromInt(100)),
		}),
		TotalAmount:     decimal.NewFromInt(300),
		Status:          domain.OrderStatusPending,
		ShippingAddress: domain.ShippingAddress{Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"},
		CreatedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestOrderStore_SupportsTransactions(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())

	mock.ExpectQuery(`SHOW transaction_isolation`).
		WillReturnRows(sqlmock.NewRows([]string{"transaction_isolation"}).AddRow("read committed"))
	assert.True(t, store.SupportsTransactions(context.Background()))

	mock.ExpectQuery(`SHOW transaction_isolation`).WillReturnError(errors.New("connection refused"))
	assert.False(t, store.SupportsTransactions(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_InsertWithinTx(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())
	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(o.ID, o.UserID, o.OrderNumber, "PENDING", sqlmock.AnyArg(), sqlmock.AnyArg(), o.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(o.ID, 0, "p-1", "Mug", 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		return store.Insert(ctx, o)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_InsertRollsBackOnLineFailure(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		return store.Insert(ctx, sampleOrder())
	})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_InsertWithoutTx(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())

	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.Insert(context.Background(), sampleOrder()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_DuplicateOrderNumberIsConflict(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())

	mock.ExpectExec(`INSERT INTO orders`).WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := store.Insert(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "conflict", apperr.Kind(err))
}

func TestOrderStore_ListByUser(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())

	newer := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	address := []byte(`{"street":"1 Main St","city":"Springfield","state":"IL","postalCode":"62701","country":"US"}`)

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "order_number", "status", "total_amount", "shipping_address", "created_at"}).
			AddRow("o-2", "u-1", "ORD-20260302-000002", "PENDING", "20", address, newer).
			AddRow("o-1", "u-1", "ORD-20260301-000001", "PENDING", "300", address, older))
	mock.ExpectQuery(`SELECT .+ FROM order_items WHERE order_id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "product_id", "product_name", "quantity", "unit_price", "total_price"}).
			AddRow("o-1", "p-1", "Mug", 3, "100", "300").
			AddRow("o-2", "p-2", "Spoon", 4, "5", "20"))

	orders, err := store.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "o-2", orders[0].ID)
	assert.Equal(t, "o-1", orders[1].ID)
	require.Len(t, orders[1].Items, 1)
	assert.Equal(t, "Mug", orders[1].Items[0].ProductName)
	assert.True(t, orders[1].TotalAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "Springfield", orders[0].ShippingAddress.City)
	assert.Equal(t, domain.OrderStatusPending, orders[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_ListByUserEmpty(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())

	mock.ExpectQuery(`SELECT .+ FROM orders`).
		WithArgs("u-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "order_number", "status", "total_amount", "shipping_address", "created_at"}))

	orders, err := store.ListByUser(context.Background(), "u-9")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductStore_FindByID(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewProductStore(db)

	mock.ExpectQuery(`SELECT id, name, price, stock FROM products WHERE id = \$1`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock"}).AddRow("p-1", "Mug", "12.50", 4))

	p, err := store.FindByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Stock)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.5")))

	mock.ExpectQuery(`SELECT id, name, price, stock FROM products`).
		WithArgs("p-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock"}))

	_, err = store.FindByID(context.Background(), "p-9")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductStore_DecrementStock(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewProductStore(db)

	mock.ExpectExec(`UPDATE products SET stock = stock - \$2 WHERE id = \$1`).
		WithArgs("p-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, store.DecrementStock(context.Background(), "p-1", 3))

	mock.ExpectExec(`UPDATE products`).
		WithArgs("p-9", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.DecrementStock(context.Background(), "p-9", 1), apperr.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_FindByID(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	address := []byte(`{"street":"1 Main St","city":"Springfield","state":"IL","postalCode":"62701","country":"US"}`)

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id = \$1`).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "order_number", "status", "total_amount", "shipping_address", "created_at"}).
			AddRow("o-1", "u-1", "ORD-20260301-000001", "PENDING", "300", address, created))
	mock.ExpectQuery(`SELECT .+ FROM order_items WHERE order_id = \$1 ORDER BY line_no`).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "product_id", "product_name", "quantity", "unit_price", "total_price"}).
			AddRow("o-1", "p-1", "Mug", 3, "100", "300"))

	o, err := store.FindByID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", o.UserID)
	assert.Equal(t, "ORD-20260301-000001", o.OrderNumber)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "US", o.ShippingAddress.Country)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_FindByIDMissing(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewOrderStore(db, zap.NewNop())

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id = \$1`).
		WithArgs("o-404").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "order_number", "status", "total_amount", "shipping_address", "created_at"}))

	_, err := store.FindByID(context.Background(), "o-404")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollsBackOnPanic(t *testing.T) {
	db, mock := newTestDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = db.WithinTx(context.Background(), func(context.Context) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
