package order

import "time"

type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventCancelled     EventType = "order.cancelled"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is published after the transaction that produced it has committed.
type Event struct {
	Type        EventType `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Status      Status    `json:"status"`
	Total       string    `json:"total_amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewEvent(t EventType, o *Order, at time.Time) Event {
	return Event{
		Type:        t,
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      o.Status,
		Total:       o.Total.StringFixed(2),
		OccurredAt:  at,
	}
}
