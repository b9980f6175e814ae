package product

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("product not found")
	ErrStockExhausted = errors.New("insufficient stock")
	ErrInvalid        = errors.New("invalid product")
)

// NotFoundError names the missing product.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("product %s not found", e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StockExhaustedError reports a request that exceeds the available stock.
type StockExhaustedError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockExhaustedError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockExhaustedError) Is(target error) bool { return target == ErrStockExhausted }
