package stock

import (
	"context"
	"fmt"

	"github.com/sgandhi15/ecommerce-api/internal/bus"
	"github.com/sgandhi15/ecommerce-api/internal/contracts"

	"go.uber.org/zap"
)

type Subscriber interface {
	Subscribe(topic bus.Topic, handler bus.Handler) *bus.Subscription
}

// MessageHandler turns order.created envelopes into stock updates.
type MessageHandler struct {
	service Service
	logger  *zap.Logger
}

func NewMessageHandler(service Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{service: service, logger: logger}
}

// Register subscribes the handler. The broadcast is published
// asynchronously, so the handler runs off the orchestrator's goroutine.
func (h *MessageHandler) Register(s Subscriber) *bus.Subscription {
	return s.Subscribe(bus.TopicOrderCreated, h.HandleOrderCreated)
}

func (h *MessageHandler) HandleOrderCreated(ctx context.Context, env bus.Envelope) error {
	order, ok := env.Payload.(contracts.OrderCreated)
	if !ok {
		err := fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Topic)
		h.logger.Error("Invalid order created event", zap.Error(err))
		return err
	}

	h.logger.Info("Received order created event",
		zap.String("order_id", order.OrderID),
		zap.String("order_number", order.OrderNumber),
	)

	res := h.service.ProcessOrderCreated(ctx, order)

	h.logger.Info("Stock update finished",
		zap.String("order_number", order.OrderNumber),
		zap.Strings("decremented", res.Decremented),
		zap.Strings("skipped", res.Skipped),
	)
	return nil
}
