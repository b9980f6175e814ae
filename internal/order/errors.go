package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrInvalidRequest    = errors.New("invalid order request")
	ErrDuplicateNumber   = errors.New("duplicate order number")
	ErrSealed            = errors.New("order is sealed")
)

// NotFoundError names the order key that did not match.
type NotFoundError struct {
	Field string
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order with %s %s not found", e.Field, e.Value)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransitionError is returned when op is not allowed from the current status.
type TransitionError struct {
	From Status
	Op   string
}

func (e *TransitionError) Error() string {
	switch e.From {
	case StatusCancelled:
		return fmt.Sprintf("cannot %s: order already cancelled", e.Op)
	case StatusShipped, StatusDelivered, StatusCompleted:
		return fmt.Sprintf("cannot %s: order already shipped (%s)", e.Op, e.From)
	}
	return fmt.Sprintf("cannot %s order in status %s", e.Op, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
