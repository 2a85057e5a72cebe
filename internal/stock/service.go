// Package stock keeps catalog stock in line with placed orders by reacting
// to order.created broadcasts.
package stock

import (
	"context"
	"errors"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/contracts"
	"github.com/sgandhi15/ecommerce-api/internal/domain"
	"github.com/sgandhi15/ecommerce-api/internal/platform/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type ProductStore interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	DecrementStock(ctx context.Context, id string, quantity int) error
}

// Service defines the stock follow-up to a placed order.
type Service interface {
	ProcessOrderCreated(ctx context.Context, order contracts.OrderCreated) Result
}

// Result lists the product ids of the lines that were decremented and of
// the ones that were skipped.
type Result struct {
	Decremented []string
	Skipped     []string
}

// DefaultService decrements stock line by line. It never fails as a whole:
// the order is already committed, so a bad line is logged and skipped.
//
// Delivering the same order twice decrements twice. Validation and
// decrement are separate reads, so concurrent orders can oversell.
type DefaultService struct {
	products ProductStore
	logger   *zap.Logger
	tracer   observability.Tracer
	metrics  *observability.Metrics
}

func NewService(products ProductStore, logger *zap.Logger, tracer observability.Tracer, metrics *observability.Metrics) *DefaultService {
	return &DefaultService{
		products: products,
		logger:   logger,
		tracer:   tracer,
		metrics:  metrics,
	}
}

func (s *DefaultService) ProcessOrderCreated(ctx context.Context, order contracts.OrderCreated) Result {
	ctx, span := s.tracer.Start(ctx, "stock_update")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("order.number", order.OrderNumber),
		attribute.Int("order.lines", len(order.Items)),
	)

	var res Result
	for _, line := range order.Items {
		if s.updateLine(ctx, order, line) {
			res.Decremented = append(res.Decremented, line.ProductID)
		} else {
			res.Skipped = append(res.Skipped, line.ProductID)
		}
	}

	span.SetAttributes(
		attribute.Int("stock.decremented", len(res.Decremented)),
		attribute.Int("stock.skipped", len(res.Skipped)),
	)
	if len(res.Skipped) > 0 {
		span.SetStatus(codes.Error, "Some lines were not decremented")
	} else {
		span.SetStatus(codes.Ok, "Stock updated")
	}
	return res
}

func (s *DefaultService) updateLine(ctx context.Context, order contracts.OrderCreated, line contracts.OrderCreatedLine) bool {
	log := s.logger.With(
		zap.String("order_number", order.OrderNumber),
		zap.String("product_id", line.ProductID),
		zap.Int("quantity", line.Quantity),
	)

	product, err := s.products.FindByID(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.metrics.StockUpdates.WithLabelValues("missing").Inc()
			log.Warn("Product not found, skipping stock update")
			return false
		}
		s.metrics.StockUpdates.WithLabelValues("error").Inc()
		log.Error("Failed to load product for stock update", zap.Error(err))
		return false
	}

	if product.Stock < line.Quantity {
		s.metrics.StockUpdates.WithLabelValues("insufficient").Inc()
		log.Error("Insufficient stock to fulfil order line",
			zap.Int("available", product.Stock),
		)
		return false
	}

	if err := s.products.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
		s.metrics.StockUpdates.WithLabelValues("error").Inc()
		log.Error("Failed to decrement stock", zap.Error(err))
		return false
	}

	s.metrics.StockUpdates.WithLabelValues("decremented").Inc()
	log.Info("Stock decremented", zap.Int("remaining", product.Stock-line.Quantity))
	return true
}
