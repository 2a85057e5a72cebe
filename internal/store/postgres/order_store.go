package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderStore struct {
	db     *DB
	logger *zap.Logger
}

func NewOrderStore(db *DB, logger *zap.Logger) *OrderStore {
	return &OrderStore{db: db, logger: logger}
}

// SupportsTransactions probes the server for transaction support. Any probe
// failure counts as "no" so the caller degrades instead of failing.
func (s *OrderStore) SupportsTransactions(ctx context.Context) bool {
	var level string
	if err := s.db.conn.GetContext(ctx, &level, `SHOW transaction_isolation`); err != nil {
		s.logger.Warn("Transaction capability probe failed", zap.Error(err))
		return false
	}
	return level != ""
}

func (s *OrderStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithinTx(ctx, fn)
}

// Insert writes the order row and its lines. Outside a transaction a
// failure on a line leaves the order row behind.
func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	ext := s.db.ext(ctx)
	_, err = ext.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, order_number, status, total_amount, shipping_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.UserID, o.OrderNumber, string(o.Status), o.TotalAmount, address, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("order number %s already exists", o.OrderNumber)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, l := range o.Items {
		_, err := ext.ExecContext(ctx,
			`INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price, total_price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, i, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice, l.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order line %d: %w", i, err)
		}
	}
	return nil
}

type orderRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	OrderNumber     string          `db:"order_number"`
	Status          string          `db:"status"`
	TotalAmount     decimal.Decimal `db:"total_amount"`
	ShippingAddress []byte          `db:"shipping_address"`
	CreatedAt       time.Time       `db:"created_at"`
}

type orderItemRow struct {
	OrderID     string          `db:"order_id"`
	ProductID   string          `db:"product_id"`
	ProductName string          `db:"product_name"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price"`
}

// ListByUser returns the user's orders with their lines, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	ext := s.db.ext(ctx)

	var rows []orderRow
	err := sqlx.SelectContext(ctx, ext, &rows,
		`SELECT id, user_id, order_number, status, total_amount, shipping_address, created_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	var items []orderItemRow
	err = sqlx.SelectContext(ctx, ext, &items,
		`SELECT order_id, product_id, product_name, quantity, unit_price, total_price
		 FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}

	lines := groupLines(items)
	orders := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.toOrder(lines[r.ID])
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// FindByID returns one order with its lines, or apperr.ErrNotFound.
func (s *OrderStore) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	ext := s.db.ext(ctx)

	var row orderRow
	err := sqlx.GetContext(ctx, ext, &row,
		`SELECT id, user_id, order_number, status, total_amount, shipping_address, created_at
		 FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}

	var items []orderItemRow
	err = sqlx.SelectContext(ctx, ext, &items,
		`SELECT order_id, product_id, product_name, quantity, unit_price, total_price
		 FROM order_items WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines of %s: %w", id, err)
	}

	o, err := row.toOrder(groupLines(items)[id])
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func groupLines(items []orderItemRow) map[string][]domain.OrderLine {
	lines := make(map[string][]domain.OrderLine)
	for _, it := range items {
		lines[it.OrderID] = append(lines[it.OrderID], domain.OrderLine{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		})
	}
	return lines
}

func (r orderRow) toOrder(lines []domain.OrderLine) (domain.Order, error) {
	var addr domain.ShippingAddress
	if len(r.ShippingAddress) > 0 {
		if err := json.Unmarshal(r.ShippingAddress, &addr); err != nil {
			return domain.Order{}, fmt.Errorf("failed to decode shipping address of %s: %w", r.ID, err)
		}
	}
	return domain.Order{
		ID:              r.ID,
		UserID:          r.UserID,
		OrderNumber:     r.OrderNumber,
		Items:           lines,
		TotalAmount:     r.TotalAmount,
		Status:          domain.OrderStatus(r.Status),
		ShippingAddress: addr,
		CreatedAt:       r.CreatedAt,
	}, nil
}
