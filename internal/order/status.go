package order

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPaid       Status = "PAID"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var statusDescriptions = map[Status]string{
	StatusPending:    "awaiting payment",
	StatusPaid:       "paid",
	StatusProcessing: "processing",
	StatusShipped:    "shipped",
	StatusDelivered:  "delivered",
	StatusCompleted:  "completed",
	StatusCancelled:  "cancelled",
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusPaid, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCompleted, StatusCancelled,
	}
}

func (s Status) Valid() bool {
	_, ok := statusDescriptions[s]
	return ok
}

func (s Status) Description() string { return statusDescriptions[s] }

func (s Status) String() string { return string(s) }

// Cancellable reports whether the guarded cancel transition accepts s.
// Goods that left the warehouse and orders already cancelled cannot be cancelled.
func (s Status) Cancellable() bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing:
		return true
	default:
		return false
	}
}

// ParseStatus accepts any casing and surrounding spaces.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, v)
	}
	return s, nil
}
