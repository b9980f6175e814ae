package order

import (
	"fmt"
	"strings"
	"time"
)

const (
	MaxItemsPerOrder = 50
	MaxQuantity      = 99
)

// Customer datos de contacto y envío.
type Customer struct {
	Name            string `json:"customer_name"    binding:"required,max=100" example:"Ana Pérez"`
	Email           string `json:"customer_email"   binding:"required,email"   example:"ana@example.com"`
	ShippingAddress string `json:"shipping_address" binding:"required,max=500" example:"Av. Siempre Viva 742"`
}

// LineRequest payload de ítem.
// swagger:model LineRequest
type LineRequest struct {
	ProductID string `json:"product_id" binding:"required"             example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"   binding:"required,min=1,max=99" example:"2"`
}

// PlaceRequest payload de creación de orden.
// swagger:model PlaceRequest
type PlaceRequest struct {
	Customer
	Items []LineRequest `json:"items" binding:"required,min=1,max=50,dive"`
}

// Validate is the minimal guard the engine applies regardless of transport.
func (r PlaceRequest) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidRequest)
	}
	if len(r.Items) > MaxItemsPerOrder {
		return fmt.Errorf("%w: at most %d items per order", ErrInvalidRequest, MaxItemsPerOrder)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("%w: customer email is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ShippingAddress) == "" {
		return fmt.Errorf("%w: shipping address is required", ErrInvalidRequest)
	}
	for i, l := range r.Items {
		if strings.TrimSpace(l.ProductID) == "" {
			return fmt.Errorf("%w: item %d: product id is required", ErrInvalidRequest, i)
		}
		if l.Quantity < 1 || l.Quantity > MaxQuantity {
			return fmt.Errorf("%w: item %d: quantity must be between 1 and %d", ErrInvalidRequest, i, MaxQuantity)
		}
	}
	return nil
}

// ProductIDs returns the distinct product ids in request order.
func (r PlaceRequest) ProductIDs() []string {
	seen := make(map[string]bool, len(r.Items))
	out := make([]string, 0, len(r.Items))
	for _, l := range r.Items {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			out = append(out, l.ProductID)
		}
	}
	return out
}

// UpdateStatusRequest payload de cambio de estado.
// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required" example:"PAID"`
}

// ItemView is the JSON shape of an order item.
// swagger:model ItemView
type ItemView struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price" example:"35900.00"`
	Subtotal    string `json:"subtotal"   example:"71800.00"`
}

// View is the JSON shape of an order.
// swagger:model OrderView
type View struct {
	ID                string     `json:"id"`
	OrderNumber       string     `json:"order_number" example:"ORD-20240115-A1B2C3D4"`
	CustomerName      string     `json:"customer_name"`
	CustomerEmail     string     `json:"customer_email"`
	ShippingAddress   string     `json:"shipping_address"`
	Status            Status     `json:"status" example:"PENDING"`
	StatusDescription string     `json:"status_description"`
	Total             string     `json:"total_amount" example:"71800.00"`
	Items             []ItemView `json:"items"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func ToView(o *Order) View {
	v := View{
		ID:                o.ID,
		OrderNumber:       o.Number,
		CustomerName:      o.CustomerName,
		CustomerEmail:     o.CustomerEmail,
		ShippingAddress:   o.ShippingAddress,
		Status:            o.Status,
		StatusDescription: o.Status.Description(),
		Total:             o.Total.StringFixed(2),
		Items:             make([]ItemView, 0, len(o.Items)),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, ItemView{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Subtotal:    it.Subtotal().StringFixed(2),
		})
	}
	return v
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest selects a zero-based page of a customer's orders.
type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 || p.Size > MaxPageSize {
		p.Size = DefaultPageSize
	}
	return p
}

func (p PageRequest) Offset() int { return p.Page * p.Size }

// Page is one slice of a customer's orders, newest first.
type Page struct {
	Orders []*Order
	Page   int
	Size   int
	Total  int
}

// PageView is the JSON shape of Page.
// swagger:model OrderPage
type PageView struct {
	Items []View `json:"items"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Total int    `json:"total"`
}

func ToPageView(p *Page) PageView {
	out := PageView{Items: make([]View, 0, len(p.Orders)), Page: p.Page, Size: p.Size, Total: p.Total}
	for _, o := range p.Orders {
		out.Items = append(out.Items, ToView(o))
	}
	return out
}
