// Package order places orders by coordinating correlated requests to the
// user, cart and catalog modules around a local persistence write.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/bus"
	"github.com/sgandhi15/ecommerce-api/internal/contracts"
	"github.com/sgandhi15/ecommerce-api/internal/correlator"
	"github.com/sgandhi15/ecommerce-api/internal/domain"
	"github.com/sgandhi15/ecommerce-api/internal/platform/observability"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Broadcaster publishes a message without waiting for its handlers.
type Broadcaster interface {
	PublishAsync(ctx context.Context, env bus.Envelope) error
}

type CreateOrderInput struct {
	UserEmail       string                  `validate:"required"`
	ShippingAddress *domain.ShippingAddress `validate:"required"`
}

type Orchestrator struct {
	requester correlator.Requester
	broadcast Broadcaster
	store     Store
	validate  *validator.Validate
	now       func() time.Time
	timeout   time.Duration
	logger    *zap.Logger
	tracer    observability.Tracer
	metrics   *observability.Metrics
}

type Option func(*Orchestrator)

// WithClock replaces the wall clock used for order numbers and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRequestTimeout overrides the correlator's default per-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func New(requester correlator.Requester, broadcast Broadcaster, store Store, logger *zap.Logger, tracer observability.Tracer, metrics *observability.Metrics, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		requester: requester,
		broadcast: broadcast,
		store:     store,
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		tracer:    tracer,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// attempt is the state gathered during one CreateOrder call.
type attempt struct {
	phase    Phase
	span     trace.Span
	user     *domain.User
	cart     *domain.Cart
	strategy Strategy
}

func (a *attempt) reach(p Phase) {
	a.phase = p
	a.span.AddEvent(string(p))
}

// CreateOrder runs one order attempt. There are no retries: any failing step
// ends the attempt with its error, except clearing the cart, which is only
// logged because the order already exists by then.
func (o *Orchestrator) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	ctx, span := o.tracer.Start(ctx, "order.create")
	defer span.End()
	span.SetAttributes(attribute.String("user.email", in.UserEmail))

	a := &attempt{phase: PhaseStart, span: span}
	order, err := o.run(ctx, a, in)
	if err != nil {
		kind := apperr.Kind(err)
		o.metrics.OrdersFailed.WithLabelValues(kind).Inc()
		span.SetAttributes(
			attribute.String("order.failed_after", string(a.phase)),
			attribute.String("error.kind", kind),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("Order creation failed",
			zap.String("user_email", in.UserEmail),
			zap.String("failed_after", string(a.phase)),
			zap.String("error_kind", kind),
			zap.Error(err),
		)
		a.reach(PhaseFailed)
		return nil, err
	}

	a.reach(PhaseDone)
	span.SetStatus(codes.Ok, "Order created")
	return order, nil
}

func (o *Orchestrator) run(ctx context.Context, a *attempt, in CreateOrderInput) (*domain.Order, error) {
	if err := o.validateInput(in); err != nil {
		return nil, err
	}

	if err := o.resolveUserAndCart(ctx, a, in.UserEmail); err != nil {
		return nil, err
	}

	if a.cart.IsEmpty() {
		return nil, apperr.ErrEmptyCart
	}

	if err := o.validateStock(ctx, a.cart); err != nil {
		return nil, err
	}
	a.reach(PhaseStockValidated)

	now := o.now()
	order := &domain.Order{
		ID:              uuid.New().String(),
		UserID:          a.user.ID,
		OrderNumber:     NewOrderNumber(now),
		Items:           domain.SnapshotLines(a.cart.Items),
		TotalAmount:     a.cart.TotalAmount,
		Status:          domain.OrderStatusPending,
		ShippingAddress: *in.ShippingAddress,
		CreatedAt:       now,
	}

	if err := o.persist(ctx, a, order); err != nil {
		return nil, err
	}
	a.reach(PhaseOrderPersisted)

	if o.clearCart(ctx, in.UserEmail, order) {
		a.reach(PhaseCartCleared)
	}

	o.announce(ctx, order)
	return order, nil
}

func (o *Orchestrator) validateInput(in CreateOrderInput) error {
	err := o.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.InvalidInput("%s is required", verrs[0].Namespace())
	}
	return apperr.InvalidInput("%v", err)
}

// resolveUserAndCart issues both lookups at once. The first failure cancels
// the shared context, which releases the other wait immediately.
func (o *Orchestrator) resolveUserAndCart(ctx context.Context, a *attempt, email string) error {
	g, gctx := errgroup.WithContext(ctx)

	var user *domain.User
	var cart *domain.Cart

	g.Go(func() error {
		reply, err := correlator.Request[contracts.UserLookupReply](gctx, o.requester,
			bus.TopicUserLookupRequest, contracts.UserLookupRequest{Email: email}, o.timeout)
		if err != nil {
			return fmt.Errorf("resolve user: %w", err)
		}
		if reply.User == nil {
			return apperr.NotFound("user %s", email)
		}
		user = reply.User
		return nil
	})

	g.Go(func() error {
		reply, err := correlator.Request[contracts.CartLookupReply](gctx, o.requester,
			bus.TopicCartLookupRequest, contracts.CartLookupRequest{UserEmail: email}, o.timeout)
		if err != nil {
			return fmt.Errorf("resolve cart: %w", err)
		}
		if reply.Cart == nil {
			return apperr.NotFound("cart of %s", email)
		}
		cart = reply.Cart
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	a.user = user
	a.reach(PhaseUserResolved)
	a.cart = cart
	a.reach(PhaseCartResolved)
	a.span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Int("cart.lines", len(cart.Items)),
	)
	return nil
}

func (o *Orchestrator) validateStock(ctx context.Context, cart *domain.Cart) error {
	reply, err := correlator.Request[contracts.StockValidationReply](ctx, o.requester,
		bus.TopicStockValidationRequest,
		contracts.StockValidationRequest{Items: contracts.StockItemsFromCart(cart)},
		o.timeout)
	if err != nil {
		return fmt.Errorf("validate stock: %w", err)
	}
	if !reply.AllValid {
		return apperr.InsufficientStock(reply.FailureReasons())
	}
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, a *attempt, order *domain.Order) error {
	ctx, span := o.tracer.Start(ctx, "order.persist")
	defer span.End()

	a.strategy = SelectStrategy(ctx, o.store)
	span.SetAttributes(
		attribute.String("order.number", order.OrderNumber),
		attribute.String("order.strategy", a.strategy.Name()),
	)
	a.span.SetAttributes(attribute.String("order.strategy", a.strategy.Name()))

	if a.strategy == BestEffort {
		o.metrics.OrdersDegraded.Inc()
		o.logger.Warn("Store does not support transactions, persisting order without atomicity",
			zap.String("order_number", order.OrderNumber),
		)
	}

	if err := a.strategy.Persist(ctx, o.store, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("persist order %s: %w", order.OrderNumber, err)
	}

	o.metrics.OrdersCreated.WithLabelValues(a.strategy.Name()).Inc()
	o.logger.Info("Order persisted",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("strategy", a.strategy.Name()),
		zap.String("total_amount", order.TotalAmount.String()),
	)
	return nil
}

// clearCart reports whether the cart was emptied. A failure leaves the order
// in place next to a populated cart.
func (o *Orchestrator) clearCart(ctx context.Context, email string, order *domain.Order) bool {
	reply, err := correlator.Request[contracts.CartClearReply](ctx, o.requester,
		bus.TopicCartClearRequest, contracts.CartClearRequest{UserEmail: email}, o.timeout)
	if err == nil && !reply.Success {
		err = errors.New("cart clear reported no success")
	}
	if err != nil {
		o.metrics.CartClearFailures.Inc()
		o.logger.Warn("Failed to clear cart after order creation",
			zap.String("order_number", order.OrderNumber),
			zap.String("user_email", email),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (o *Orchestrator) announce(ctx context.Context, order *domain.Order) {
	err := o.broadcast.PublishAsync(ctx, bus.Envelope{
		Topic:   bus.TopicOrderCreated,
		Payload: contracts.NewOrderCreated(order),
	})
	if err != nil {
		o.logger.Warn("Failed to broadcast order created",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
	}
}

// ListUserOrders returns the orders of the user with that email, newest first.
func (o *Orchestrator) ListUserOrders(ctx context.Context, email string) ([]domain.Order, error) {
	ctx, span := o.tracer.Start(ctx, "order.list")
	defer span.End()

	user, err := o.resolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	orders, err := o.store.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	span.SetAttributes(attribute.Int("order.count", len(orders)))
	return orders, nil
}

// GetUserOrder returns one order of the user with that email. An order that
// does not exist and one owned by someone else both yield NotFound.
func (o *Orchestrator) GetUserOrder(ctx context.Context, email, orderID string) (*domain.Order, error) {
	ctx, span := o.tracer.Start(ctx, "order.get")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	user, err := o.resolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.NotFound("order %s", orderID)
	}
	order, err := o.store.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.UserID != user.ID {
		o.logger.Warn("Order requested by a user who does not own it",
			zap.String("order_id", orderID),
			zap.String("user_id", user.ID),
		)
		return nil, apperr.NotFound("order %s", orderID)
	}
	return order, nil
}

func (o *Orchestrator) resolveUser(ctx context.Context, email string) (*domain.User, error) {
	reply, err := correlator.Request[contracts.UserLookupReply](ctx, o.requester,
		bus.TopicUserLookupRequest, contracts.UserLookupRequest{Email: email}, o.timeout)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if reply.User == nil {
		return nil, apperr.NotFound("user %s", email)
	}
	return reply.User, nil
}
