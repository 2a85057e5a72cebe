// Package memory keeps users, products, carts and orders in process memory.
// None of its stores support transactions, so orders placed against it run
// in best-effort mode.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/domain"
)

var ErrTxUnsupported = errors.New("memory store does not support transactions")

type UserStore struct {
	mu      sync.RWMutex
	byEmail map[string]domain.User
}

func NewUserStore(users ...domain.User) *UserStore {
	s := &UserStore{byEmail: make(map[string]domain.User)}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

func (s *UserStore) Put(u domain.User) {
	s.mu.Lock()
	s.byEmail[u.Email] = u
	s.mu.Unlock()
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, apperr.NotFound("user %s", email)
	}
	return &u, nil
}

type ProductStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewProductStore(products ...domain.Product) *ProductStore {
	s := &ProductStore{products: make(map[string]domain.Product)}
	for _, p := range products {
		s.Put(p)
	}
	return s
}

func (s *ProductStore) Put(p domain.Product) {
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
}

func (s *ProductStore) FindByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product %s", id)
	}
	return &p, nil
}

// DecrementStock subtracts quantity unconditionally; callers check
// availability first.
func (s *ProductStore) DecrementStock(_ context.Context, id string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return apperr.NotFound("product %s", id)
	}
	p.Stock -= quantity
	s.products[id] = p
	return nil
}

type CartStore struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]domain.Cart)}
}

// Get returns nil without error when the user has no cart yet.
func (s *CartStore) Get(_ context.Context, userID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[userID]
	if !ok {
		return nil, nil
	}
	lines := make([]domain.CartLine, len(c.Items))
	copy(lines, c.Items)
	return domain.NewCart(c.UserID, lines...), nil
}

func (s *CartStore) Save(_ context.Context, cart *domain.Cart) error {
	lines := make([]domain.CartLine, len(cart.Items))
	copy(lines, cart.Items)
	s.mu.Lock()
	s.carts[cart.UserID] = *domain.NewCart(cart.UserID, lines...)
	s.mu.Unlock()
	return nil
}

func (s *CartStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[userID]; ok {
		c.SetLines(nil)
		s.carts[userID] = c
	}
	return nil
}

type OrderStore struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	byNumber map[string]string
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:   make(map[string]domain.Order),
		byNumber: make(map[string]string),
	}
}

func (s *OrderStore) SupportsTransactions(context.Context) bool { return false }

func (s *OrderStore) WithinTx(context.Context, func(context.Context) error) error {
	return ErrTxUnsupported
}

func (s *OrderStore) Insert(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNumber[o.OrderNumber]; ok {
		return apperr.Conflict("order number %s already exists", o.OrderNumber)
	}
	if _, ok := s.orders[o.ID]; ok {
		return apperr.Conflict("order %s already exists", o.ID)
	}
	stored := *o
	stored.Items = append([]domain.OrderLine(nil), o.Items...)
	s.orders[o.ID] = stored
	s.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (s *OrderStore) FindByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %s", id)
	}
	o.Items = append([]domain.OrderLine(nil), o.Items...)
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *OrderStore) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Count reports how many orders are stored.
func (s *OrderStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
