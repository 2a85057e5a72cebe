// Package apperr defines the error taxonomy shared by the correlator, the
// order orchestrator and the domain responders.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTimeout           = errors.New("request timed out")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrClosed            = errors.New("correlator closed")
)

// kinder is satisfied by errors that carry their own classification.
type kinder interface {
	Kind() string
}

// DomainError is an error string sent back by a responder inside a reply.
type DomainError struct {
	Topic   string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Topic, e.Message)
}

func (e *DomainError) Kind() string { return "domain" }

// NewDomainError builds the error for a reply that carried an error string.
func NewDomainError(topic, message string) *DomainError {
	return &DomainError{Topic: topic, Message: message}
}

// InvalidInput wraps ErrInvalidInput with a reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InsufficientStock wraps ErrInsufficientStock with the joined per-line reasons.
func InsufficientStock(reasons string) error {
	return fmt.Errorf("%w: %s", ErrInsufficientStock, reasons)
}

// Conflict wraps ErrConflict with the clashing key.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Kind classifies err into a short stable label used for logs, span
// attributes and metric labels.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

// IsDomain reports whether err came from a responder's error reply.
func IsDomain(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
