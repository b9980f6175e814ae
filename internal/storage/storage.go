// Package storage defines the unit of work every stock-affecting operation runs in.
package storage

import (
	"context"
	"errors"

	"github.com/MikeMC777/ordenes-stock/internal/order"
	"github.com/MikeMC777/ordenes-stock/internal/product"
)

// ErrConflict marks a transient contention failure (serialization failure,
// deadlock, lock timeout). The whole unit of work may be retried.
var ErrConflict = errors.New("storage: transaction conflict")

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("storage: read-only transaction")

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Products() product.Repository
	Orders() order.Repository
}

// UnitOfWork runs fn inside a transaction. Run commits when fn returns nil
// and rolls back otherwise, so either every write made through tx becomes
// visible or none does. View runs fn in a read-only transaction.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
