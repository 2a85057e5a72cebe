package app

import (
	"context"
	"fmt"
	"os"

	"github.com/sgandhi15/ecommerce-api/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Users    []seedUser    `yaml:"users"`
	Products []seedProduct `yaml:"products"`
	Carts    []seedCart    `yaml:"carts"`
}

type seedUser struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

type seedProduct struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Stock int    `yaml:"stock"`
}

type seedCart struct {
	UserID string         `yaml:"user_id"`
	Items  []seedCartItem `yaml:"items"`
}

type seedCartItem struct {
	ProductID string `yaml:"product_id"`
	Quantity  int    `yaml:"quantity"`
}

type seedTargets struct {
	putUser    func(domain.User)
	putProduct func(domain.Product)
	saveCart   func(context.Context, *domain.Cart) error
}

// loadSeed reads the fixture at path into the stores. Cart lines are priced
// from the seeded catalog.
func loadSeed(ctx context.Context, path string, to seedTargets) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, u := range seed.Users {
		to.putUser(domain.User{ID: u.ID, Email: u.Email, Name: u.Name})
	}

	catalog := make(map[string]domain.Product, len(seed.Products))
	for _, p := range seed.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return fmt.Errorf("invalid price for product %s: %w", p.ID, err)
		}
		product := domain.Product{ID: p.ID, Name: p.Name, Price: price, Stock: p.Stock}
		catalog[p.ID] = product
		if to.putProduct != nil {
			to.putProduct(product)
		}
	}

	for _, c := range seed.Carts {
		lines := make([]domain.CartLine, 0, len(c.Items))
		for _, it := range c.Items {
			p, ok := catalog[it.ProductID]
			if !ok {
				return fmt.Errorf("cart of %s references unknown product %s", c.UserID, it.ProductID)
			}
			lines = append(lines, domain.NewCartLine(p.ID, p.Name, it.Quantity, p.Price))
		}
		if err := to.saveCart(ctx, domain.NewCart(c.UserID, lines...)); err != nil {
			return fmt.Errorf("failed to seed cart of %s: %w", c.UserID, err)
		}
	}
	return nil
}
