// Package kafka mirrors order broadcasts from the in-process bus to a Kafka
// topic for consumers outside this process.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sgandhi15/ecommerce-api/internal/bus"
	"github.com/sgandhi15/ecommerce-api/internal/contracts"
	"github.com/sgandhi15/ecommerce-api/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const eventTypeHeader = "event-type"

type Subscriber interface {
	Subscribe(topic bus.Topic, handler bus.Handler) *bus.Subscription
}

// Forwarder writes every order.created broadcast to Kafka, keyed by order id.
// A failed write is logged and counted; it never affects the order.
type Forwarder struct {
	producer Producer
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewForwarder(producer Producer, logger *zap.Logger, metrics *observability.Metrics) *Forwarder {
	return &Forwarder{producer: producer, logger: logger, metrics: metrics}
}

func (f *Forwarder) Register(s Subscriber) *bus.Subscription {
	return s.Subscribe(bus.TopicOrderCreated, f.HandleOrderCreated)
}

func (f *Forwarder) HandleOrderCreated(ctx context.Context, env bus.Envelope) error {
	order, ok := env.Payload.(contracts.OrderCreated)
	if !ok {
		f.metrics.KafkaForwarded.WithLabelValues("invalid").Inc()
		return fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Topic)
	}

	payload, err := json.Marshal(order)
	if err != nil {
		f.metrics.KafkaForwarded.WithLabelValues("invalid").Inc()
		f.logger.Error("Failed to serialize order created event",
			zap.Error(err),
			zap.String("order_id", order.OrderID),
		)
		return err
	}

	// WriteMessage, not WriteMessages, so the writer injects the trace context.
	msg := kafkago.Message{
		Key:   []byte(order.OrderID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: eventTypeHeader, Value: []byte(bus.TopicOrderCreated)},
		},
	}
	if err := f.producer.WriteMessage(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			f.logger.Info("Context done, aborting Kafka write", zap.Error(err))
		} else {
			f.logger.Error("Failed to publish order created event",
				zap.Error(err),
				zap.String("order_id", order.OrderID),
			)
		}
		f.metrics.KafkaForwarded.WithLabelValues("error").Inc()
		return err
	}

	f.metrics.KafkaForwarded.WithLabelValues("ok").Inc()
	f.logger.Info("Sent order created event",
		zap.String("order_id", order.OrderID),
		zap.String("order_number", order.OrderNumber),
	)
	return nil
}
