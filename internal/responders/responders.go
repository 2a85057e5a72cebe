// Package responders answers the correlated lookup requests of the user,
// catalog and cart modules from their stores.
package responders

import (
	"context"
	"errors"
	"fmt"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/bus"
	"github.com/sgandhi15/ecommerce-api/internal/contracts"
	"github.com/sgandhi15/ecommerce-api/internal/domain"

	"go.uber.org/zap"
)

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

type ProductStore interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
}

type CartStore interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// Replier publishes the answer to a request on its reply topic.
type Replier interface {
	Reply(ctx context.Context, req bus.Envelope, payload any, err error) error
}

type Subscriber interface {
	Subscribe(topic bus.Topic, handler bus.Handler) *bus.Subscription
}

type Responders struct {
	users    UserStore
	products ProductStore
	carts    CartStore
	replier  Replier
	logger   *zap.Logger
	subs     []*bus.Subscription
}

func New(users UserStore, products ProductStore, carts CartStore, replier Replier, logger *zap.Logger) *Responders {
	return &Responders{
		users:    users,
		products: products,
		carts:    carts,
		replier:  replier,
		logger:   logger,
	}
}

// Register subscribes one handler per request topic.
func (r *Responders) Register(s Subscriber) {
	r.subs = append(r.subs,
		s.Subscribe(bus.TopicUserLookupRequest, r.handleUserLookup),
		s.Subscribe(bus.TopicProductLookupRequest, r.handleProductLookup),
		s.Subscribe(bus.TopicStockValidationRequest, r.handleStockValidation),
		s.Subscribe(bus.TopicCartLookupRequest, r.handleCartLookup),
		s.Subscribe(bus.TopicCartClearRequest, r.handleCartClear),
	)
}

func (r *Responders) Close() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
}

func (r *Responders) fail(ctx context.Context, req bus.Envelope, err error) error {
	r.logger.Error("Request failed",
		zap.String("topic", string(req.Topic)),
		zap.String("request_id", req.RequestID),
		zap.Error(err),
	)
	return r.replier.Reply(ctx, req, nil, err)
}

func invalidPayload(req bus.Envelope) error {
	return fmt.Errorf("unexpected payload %T on %s", req.Payload, req.Topic)
}

func (r *Responders) handleUserLookup(ctx context.Context, req bus.Envelope) error {
	in, ok := req.Payload.(contracts.UserLookupRequest)
	if !ok {
		return r.fail(ctx, req, invalidPayload(req))
	}

	user, err := r.users.FindByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return r.fail(ctx, req, err)
	}
	return r.replier.Reply(ctx, req, contracts.UserLookupReply{User: user}, nil)
}

func (r *Responders) handleProductLookup(ctx context.Context, req bus.Envelope) error {
	in, ok := req.Payload.(contracts.ProductLookupRequest)
	if !ok {
		return r.fail(ctx, req, invalidPayload(req))
	}

	product, err := r.products.FindByID(ctx, in.ProductID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return r.fail(ctx, req, err)
	}
	return r.replier.Reply(ctx, req, contracts.ProductLookupReply{Product: product}, nil)
}

// handleStockValidation checks every line on its own so the reply lists all
// failures, not just the first.
func (r *Responders) handleStockValidation(ctx context.Context, req bus.Envelope) error {
	in, ok := req.Payload.(contracts.StockValidationRequest)
	if !ok {
		return r.fail(ctx, req, invalidPayload(req))
	}

	reply := contracts.StockValidationReply{AllValid: true}
	for _, item := range in.Items {
		res := contracts.StockValidationResult{
			ProductID:         item.ProductID,
			RequestedQuantity: item.Quantity,
		}

		product, err := r.products.FindByID(ctx, item.ProductID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			res.Error = fmt.Sprintf("Product %s not found", item.ProductID)
		case err != nil:
			return r.fail(ctx, req, err)
		default:
			res.AvailableStock = product.Stock
			if product.Stock >= item.Quantity {
				res.IsValid = true
			} else {
				res.Error = fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d",
					product.Name, product.Stock, item.Quantity)
			}
		}

		if !res.IsValid {
			reply.AllValid = false
		}
		reply.ValidationResults = append(reply.ValidationResults, res)
	}
	return r.replier.Reply(ctx, req, reply, nil)
}

// handleCartLookup answers with an empty cart when the user has none yet and
// with no cart at all when the user is unknown.
func (r *Responders) handleCartLookup(ctx context.Context, req bus.Envelope) error {
	in, ok := req.Payload.(contracts.CartLookupRequest)
	if !ok {
		return r.fail(ctx, req, invalidPayload(req))
	}

	user, err := r.users.FindByEmail(ctx, in.UserEmail)
	if errors.Is(err, apperr.ErrNotFound) {
		return r.replier.Reply(ctx, req, contracts.CartLookupReply{}, nil)
	}
	if err != nil {
		return r.fail(ctx, req, err)
	}

	cart, err := r.carts.Get(ctx, user.ID)
	if err != nil {
		return r.fail(ctx, req, err)
	}
	if cart == nil {
		cart = domain.NewCart(user.ID)
	}
	return r.replier.Reply(ctx, req, contracts.CartLookupReply{Cart: cart}, nil)
}

func (r *Responders) handleCartClear(ctx context.Context, req bus.Envelope) error {
	in, ok := req.Payload.(contracts.CartClearRequest)
	if !ok {
		return r.fail(ctx, req, invalidPayload(req))
	}

	user, err := r.users.FindByEmail(ctx, in.UserEmail)
	if err != nil {
		return r.fail(ctx, req, err)
	}
	if err := r.carts.Clear(ctx, user.ID); err != nil {
		return r.fail(ctx, req, err)
	}
	return r.replier.Reply(ctx, req, contracts.CartClearReply{Success: true}, nil)
}
