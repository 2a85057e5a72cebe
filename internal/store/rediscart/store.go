// Package rediscart keeps shopping carts in Redis as msgpack documents.
package rediscart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sgandhi15/ecommerce-api/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

const defaultPrefix = "cart"

type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL expires idle carts; zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL parses a redis:// URL and connects lazily.
func NewFromURL(rawURL string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return New(redis.NewClient(o), opts...), nil
}

func (s *Store) key(userID string) string {
	if s.prefix == "" {
		return userID
	}
	return s.prefix + ":" + userID
}

type lineRecord struct {
	ProductID   string `msgpack:"product_id"`
	ProductName string `msgpack:"product_name"`
	Quantity    int    `msgpack:"quantity"`
	UnitPrice   string `msgpack:"unit_price"`
}

type cartRecord struct {
	UserID string       `msgpack:"user_id"`
	Items  []lineRecord `msgpack:"items"`
}

// Get returns nil without error when the user has no cart.
func (s *Store) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	var rec cartRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(rec.Items))
	for _, it := range rec.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to decode price of %s: %w", it.ProductID, err)
		}
		lines = append(lines, domain.NewCartLine(it.ProductID, it.ProductName, it.Quantity, price))
	}
	return domain.NewCart(rec.UserID, lines...), nil
}

func (s *Store) Save(ctx context.Context, cart *domain.Cart) error {
	rec := cartRecord{UserID: cart.UserID, Items: make([]lineRecord, 0, len(cart.Items))}
	for _, l := range cart.Items {
		rec.Items = append(rec.Items, lineRecord{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.String(),
		})
	}

	raw, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.client.Set(ctx, s.key(cart.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cart: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
