package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type ProductStore struct {
	db *DB
}

func NewProductStore(db *DB) *ProductStore {
	return &ProductStore{db: db}
}

type productRow struct {
	ID    string          `db:"id"`
	Name  string          `db:"name"`
	Price decimal.Decimal `db:"price"`
	Stock int             `db:"stock"`
}

func (s *ProductStore) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, s.db.ext(ctx), &row,
		`SELECT id, name, price, stock FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product %s", id)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &domain.Product{ID: row.ID, Name: row.Name, Price: row.Price, Stock: row.Stock}, nil
}

// DecrementStock subtracts quantity without checking the remaining stock.
func (s *ProductStore) DecrementStock(ctx context.Context, id string, quantity int) error {
	res, err := s.db.ext(ctx).ExecContext(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1`, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("product %s", id)
	}
	return nil
}
