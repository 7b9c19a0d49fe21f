package errors

import (
	stderrors "errors"
	"fmt"
)

// Error categories. Every error leaving runtime wraps exactly one of them.
var (
	ErrValidation  = fmt.Errorf("validation error")
	ErrNotFound    = fmt.Errorf("not found")
	ErrPersistence = fmt.Errorf("persistence error")
	ErrDelivery    = fmt.Errorf("delivery error")
	ErrForbidden   = fmt.Errorf("forbidden")
)

var (
	ErrWorkerPanic            = fmt.Errorf("worker panic")
	ErrEmptyWords             = fmt.Errorf("no words have been found")
	ErrMalformedMessageID     = fmt.Errorf("%w: malformed message id", ErrValidation)
	ErrMessageNotFound        = fmt.Errorf("%w: message", ErrNotFound)
	ErrMessageDeleted         = fmt.Errorf("%w: message is deleted", ErrValidation)
	ErrContentTooLong         = fmt.Errorf("%w: content too long", ErrValidation)
	ErrUnknownEvent           = fmt.Errorf("%w: unknown event", ErrValidation)
	ErrConnectionAlreadyBound = fmt.Errorf("connection already bound to another user")
	ErrConnectionClosed       = fmt.Errorf("%w: connection closed", ErrDelivery)
	ErrBackpressure           = fmt.Errorf("%w: outbound queue full", ErrDelivery)
	ErrPersistQueueFull       = fmt.Errorf("%w: persistence queue full", ErrPersistence)
	ErrShuttingDown           = fmt.Errorf("%w: server is shutting down", ErrPersistence)
	ErrNotChatMember          = fmt.Errorf("%w: not a member of this chat", ErrForbidden)
	ErrInvalidToken           = fmt.Errorf("invalid or expired token")
)

// Code classifies err into the short code sent to clients in operation-failed events.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrValidation):
		return "validation"
	case stderrors.Is(err, ErrNotFound):
		return "not_found"
	case stderrors.Is(err, ErrPersistence):
		return "persistence"
	case stderrors.Is(err, ErrDelivery):
		return "delivery"
	case stderrors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}

// Persistence wraps a storage failure so that it classifies as ErrPersistence.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Delivery wraps a per-connection send failure.
func Delivery(connectionID string, err error) error {
	if stderrors.Is(err, ErrDelivery) {
		return fmt.Errorf("connection %s: %w", connectionID, err)
	}
	return fmt.Errorf("%w: connection %s: %w", ErrDelivery, connectionID, err)
}

// Validation wraps a payload validation failure.
func Validation(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
