package order

import (
	"time"

	"github.com/MikeMC777/ordenes-stock/internal/product"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string
	Number          string
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	Status          Status
	Total           decimal.Decimal
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time

	sealed bool
}

// Item snapshots the product name and unit price at placement time so later
// catalog edits never change what the customer was charged.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// NewItem builds an item from the product as it is right now.
func NewItem(id string, p *product.Product, qty int) Item {
	return Item{
		ID:          id,
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    qty,
		UnitPrice:   p.Price,
	}
}

func (it Item) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// New returns an empty PENDING order ready to receive items.
func New(id, number string, customer Customer, now time.Time) *Order {
	return &Order{
		ID:              id,
		Number:          number,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		ShippingAddress: customer.ShippingAddress,
		Status:          StatusPending,
		Total:           decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AddItem appends it and points it back at o. Items keep insertion order.
func (o *Order) AddItem(it Item) error {
	if o.sealed {
		return ErrSealed
	}
	it.OrderID = o.ID
	o.Items = append(o.Items, it)
	return nil
}

// CalculateTotal sets Total to the exact sum of the item subtotals and seals
// the item list.
func (o *Order) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	o.Total = total
	o.sealed = true
	return total
}

// Seal forbids further AddItem calls. Repositories call it on loaded orders.
func (o *Order) Seal() { o.sealed = true }

func (o *Order) Sealed() bool { return o.sealed }

// Cancel is the guarded transition used by customer and timeout cancellation.
// It only changes the status; restoring stock is the caller's job.
func (o *Order) Cancel(now time.Time) error {
	if !o.Status.Cancellable() {
		return &TransitionError{From: o.Status, Op: "cancel"}
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}

// SetStatus is the administrative override: any known status is accepted
// regardless of the current one.
func (o *Order) SetStatus(s Status, now time.Time) error {
	if !s.Valid() {
		return ErrUnknownStatus
	}
	o.Status = s
	o.UpdatedAt = now
	return nil
}

// Quantities sums item quantities per product. Repeated lines for one product
// collapse into a single entry.
func (o *Order) Quantities() map[string]int {
	out := make(map[string]int, len(o.Items))
	for _, it := range o.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

// Clone returns a deep copy; the item slice is not shared.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}
