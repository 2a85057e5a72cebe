// Package correlator turns the fire-and-forget bus into a call/response API.
// A request is published with a fresh token and the caller waits until a
// reply carrying the same token shows up on the mirrored reply topic, or the
// deadline passes.
package correlator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sgandhi15/ecommerce-api/internal/apperr"
	"github.com/sgandhi15/ecommerce-api/internal/bus"
	"github.com/sgandhi15/ecommerce-api/internal/platform/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Bus is the part of the message bus the correlator needs.
type Bus interface {
	Publish(ctx context.Context, env bus.Envelope)
	PublishAsync(ctx context.Context, env bus.Envelope) error
	Subscribe(topic bus.Topic, handler bus.Handler) *bus.Subscription
}

// Requester is satisfied by *Correlator; callers depend on it so tests can
// script replies.
type Requester interface {
	SendRequest(ctx context.Context, topic bus.Topic, payload any, timeout time.Duration) (any, error)
}

type result struct {
	payload any
	err     error
}

type pending struct {
	topic  bus.Topic
	result chan result
	timer  *time.Timer
}

type Correlator struct {
	bus     Bus
	timeout time.Duration
	logger  *zap.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics

	mu       sync.Mutex
	inFlight map[string]*pending
	subs     map[bus.Topic]*bus.Subscription
	closed   bool
}

// New builds a Correlator. defaultTimeout applies whenever SendRequest is
// called with a non-positive timeout.
func New(b Bus, defaultTimeout time.Duration, logger *zap.Logger, tracer observability.Tracer, metrics *observability.Metrics) *Correlator {
	return &Correlator{
		bus:      b,
		timeout:  defaultTimeout,
		logger:   logger,
		tracer:   tracer,
		metrics:  metrics,
		inFlight: make(map[string]*pending),
		subs:     make(map[bus.Topic]*bus.Subscription),
	}
}

// SendRequest publishes payload on topic and blocks until the matching reply
// arrives, the timeout fires or ctx ends. A reply carrying an error string
// yields *apperr.DomainError; an expired deadline yields apperr.ErrTimeout.
func (c *Correlator) SendRequest(ctx context.Context, topic bus.Topic, payload any, timeout time.Duration) (any, error) {
	replyTopic, ok := bus.ReplyTopic(topic)
	if !ok {
		return nil, fmt.Errorf("topic %s does not expect a reply", topic)
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	ctx, span := c.tracer.Start(ctx, "correlator.request")
	defer span.End()

	token := uuid.New().String()
	span.SetAttributes(
		attribute.String("messaging.destination.name", string(topic)),
		attribute.String("messaging.reply_to", string(replyTopic)),
		attribute.String("messaging.message.id", token),
	)

	p := &pending{topic: topic, result: make(chan result, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, apperr.ErrClosed
	}
	c.subscribeLocked(replyTopic)
	c.inFlight[token] = p
	p.timer = time.AfterFunc(timeout, func() { c.expire(token, timeout) })
	c.mu.Unlock()
	c.metrics.InFlightRequests.Inc()

	// Responders run on a bus goroutine; the caller only ever blocks in the
	// select below.
	start := time.Now()
	if err := c.bus.PublishAsync(ctx, bus.Envelope{Topic: topic, RequestID: token, Payload: payload}); err != nil {
		if c.take(token) != nil {
			p.timer.Stop()
		}
		return nil, fmt.Errorf("publish %s: %w (%w)", topic, apperr.ErrClosed, err)
	}

	var r result
	select {
	case r = <-p.result:
	case <-ctx.Done():
		if c.take(token) != nil {
			p.timer.Stop()
			r = result{err: ctx.Err()}
		} else {
			// A reply or the timer won the race; its result is already buffered.
			r = <-p.result
		}
	}

	outcome := "ok"
	if r.err != nil {
		outcome = apperr.Kind(r.err)
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
	}
	c.metrics.RequestDuration.WithLabelValues(string(topic), outcome).Observe(time.Since(start).Seconds())
	return r.payload, r.err
}

// subscribeLocked installs the single shared handler for replyTopic the
// first time it is needed. c.mu must be held.
func (c *Correlator) subscribeLocked(replyTopic bus.Topic) {
	if _, ok := c.subs[replyTopic]; ok {
		return
	}
	c.subs[replyTopic] = c.bus.Subscribe(replyTopic, c.onReply)
}

func (c *Correlator) onReply(_ context.Context, env bus.Envelope) error {
	p := c.take(env.RequestID)
	if p == nil {
		c.metrics.LateReplies.WithLabelValues(string(env.Topic)).Inc()
		c.logger.Debug("Dropping reply with no waiting request",
			zap.String("topic", string(env.Topic)),
			zap.String("request_id", env.RequestID),
		)
		return nil
	}
	p.timer.Stop()

	if env.Error != "" {
		p.result <- result{err: apperr.NewDomainError(string(env.Topic), env.Error)}
		return nil
	}
	p.result <- result{payload: env.Payload}
	return nil
}

func (c *Correlator) expire(token string, timeout time.Duration) {
	p := c.take(token)
	if p == nil {
		return
	}
	c.metrics.RequestTimeouts.WithLabelValues(string(p.topic)).Inc()
	c.logger.Warn("Request timed out",
		zap.String("topic", string(p.topic)),
		zap.String("request_id", token),
		zap.Duration("timeout", timeout),
	)
	p.result <- result{err: fmt.Errorf("%s after %s: %w", p.topic, timeout, apperr.ErrTimeout)}
}

// take removes and returns the entry for token. Exactly one caller gets a
// non-nil entry; everyone racing it afterwards sees nil.
func (c *Correlator) take(token string) *pending {
	c.mu.Lock()
	p, ok := c.inFlight[token]
	if ok {
		delete(c.inFlight, token)
	}
	c.mu.Unlock()

	if ok {
		c.metrics.InFlightRequests.Dec()
		return p
	}
	return nil
}

// Pending reports how many requests are waiting for a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// PublishReply answers a request. It does no bookkeeping; the requesting
// side matches the reply by RequestID.
func (c *Correlator) PublishReply(ctx context.Context, reply bus.Envelope) {
	c.bus.Publish(ctx, reply)
}

// Reply answers req on its mirrored reply topic with payload, or with the
// error text of err when err is non-nil.
func (c *Correlator) Reply(ctx context.Context, req bus.Envelope, payload any, err error) error {
	replyTopic, ok := bus.ReplyTopic(req.Topic)
	if !ok {
		return fmt.Errorf("topic %s does not expect a reply", req.Topic)
	}
	reply := bus.Envelope{Topic: replyTopic, RequestID: req.RequestID, Payload: payload}
	if err != nil {
		reply.Payload = nil
		reply.Error = err.Error()
	}
	c.PublishReply(ctx, reply)
	return nil
}

// Close fails every waiting request with apperr.ErrClosed, drops the reply
// subscriptions and refuses new requests.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	waiting := c.inFlight
	c.inFlight = make(map[string]*pending)
	subs := c.subs
	c.subs = make(map[bus.Topic]*bus.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	for _, p := range waiting {
		p.timer.Stop()
		c.metrics.InFlightRequests.Dec()
		p.result <- result{err: apperr.ErrClosed}
	}
}

// Request is SendRequest with the reply payload asserted to T.
func Request[T any](ctx context.Context, r Requester, topic bus.Topic, payload any, timeout time.Duration) (T, error) {
	var zero T
	raw, err := r.SendRequest(ctx, topic, payload, timeout)
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected reply payload %T", topic, raw)
	}
	return v, nil
}
