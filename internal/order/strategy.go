package order

import (
	"context"

	"github.com/sgandhi15/ecommerce-api/internal/domain"
)

// Store persists orders. Stores that cannot run transactions report it
// through SupportsTransactions and are only ever used in best-effort mode.
type Store interface {
	SupportsTransactions(ctx context.Context) bool
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	Insert(ctx context.Context, o *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// Strategy decides how the persistence step of an attempt is executed.
// Both strategies run the same steps; only the transaction scope differs.
type Strategy interface {
	Name() string
	Persist(ctx context.Context, store Store, o *domain.Order) error
}

type atomicStrategy struct{}

func (atomicStrategy) Name() string { return "atomic" }

func (atomicStrategy) Persist(ctx context.Context, store Store, o *domain.Order) error {
	return store.WithinTx(ctx, func(ctx context.Context) error {
		return store.Insert(ctx, o)
	})
}

type bestEffortStrategy struct{}

func (bestEffortStrategy) Name() string { return "best_effort" }

func (bestEffortStrategy) Persist(ctx context.Context, store Store, o *domain.Order) error {
	return store.Insert(ctx, o)
}

var (
	Atomic     Strategy = atomicStrategy{}
	BestEffort Strategy = bestEffortStrategy{}
)

// SelectStrategy probes the store once per attempt.
func SelectStrategy(ctx context.Context, store Store) Strategy {
	if store.SupportsTransactions(ctx) {
		return Atomic
	}
	return BestEffort
}
