package product

import (
	"context"
	"fmt"
)

// Store exposes the stock operations order placement and cancellation rely on.
// It must be built from a Repository bound to the caller's unit of work, and
// the caller is expected to hold the row locks of the products it mutates.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store { return &Store{repo: repo} }

func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Store) HasSufficientStock(p *Product, qty int) bool {
	return p.HasStock(qty)
}

// DecreaseStock removes qty units from p and returns the updated product.
func (s *Store) DecreaseStock(ctx context.Context, p *Product, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalid, qty)
	}
	if !p.HasStock(qty) {
		return nil, &StockExhaustedError{ProductID: p.ID, Requested: qty, Available: p.Stock}
	}
	stock, err := s.repo.AddStock(ctx, p.ID, -qty)
	if err != nil {
		return nil, err
	}
	out := *p
	out.Stock = stock
	return &out, nil
}

// IncreaseStock returns qty units to p and returns the updated product.
func (s *Store) IncreaseStock(ctx context.Context, p *Product, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalid, qty)
	}
	stock, err := s.repo.AddStock(ctx, p.ID, qty)
	if err != nil {
		return nil, err
	}
	out := *p
	out.Stock = stock
	return &out, nil
}
