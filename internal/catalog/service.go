// Package catalog manages products. Stock edits take the same row lock as
// order placement so they never interleave with a reservation.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-stock/internal/product"
	"github.com/MikeMC777/ordenes-stock/internal/storage"
)

const DefaultLowStockThreshold = 10

// Prices fit NUMERIC(12,2) with at most 8 integer digits.
const (
	priceIntegerDigits  = 8
	priceFractionDigits = 2
)

var maxPriceExclusive = decimal.New(1, priceIntegerDigits)

type Service struct {
	uow    storage.UnitOfWork
	logger *zap.Logger
	clock  func() time.Time
	newID  func() string
}

func NewService(uow storage.UnitOfWork, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		uow:    uow,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", product.ErrInvalid, fmt.Sprintf(format, args...))
}

func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, invalid("price %q is not a decimal", s)
	}
	if d.IsNegative() {
		return decimal.Zero, invalid("price must not be negative")
	}
	if !d.Equal(d.Truncate(priceFractionDigits)) {
		return decimal.Zero, invalid("price %q has more than %d decimal places", s, priceFractionDigits)
	}
	if d.GreaterThanOrEqual(maxPriceExclusive) {
		return decimal.Zero, invalid("price %q has more than %d integer digits", s, priceIntegerDigits)
	}
	return d.Truncate(priceFractionDigits), nil
}

func (s *Service) Create(ctx context.Context, req product.CreateProductRequest) (*product.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if req.Stock < 0 {
		return nil, invalid("stock must not be negative")
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	p := &product.Product{
		ID:          s.newID(),
		Name:        name,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.uow.Run(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Products().Create(ctx, p)
	}); err != nil {
		return nil, err
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*product.Product, error) {
	var p *product.Product
	err := s.uow.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		p, err = tx.Products().GetByID(ctx, id)
		return err
	})
	return p, err
}

// List returns active products, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]product.Product, error) {
	return s.query(ctx, product.Query{Limit: limit, Offset: offset})
}

// Search matches q against name and description, case-insensitively.
func (s *Service) Search(ctx context.Context, q string, limit, offset int) ([]product.Product, error) {
	if len(strings.TrimSpace(q)) < 2 {
		return nil, invalid("search term must have at least 2 characters")
	}
	return s.query(ctx, product.Query{Q: q, Limit: limit, Offset: offset})
}

func (s *Service) query(ctx context.Context, q product.Query) ([]product.Product, error) {
	var out []product.Product
	err := s.uow.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Products().List(ctx, q)
		return err
	})
	return out, err
}

// Update applies the non-nil fields of req under the product's row lock.
func (s *Service) Update(ctx context.Context, id string, req product.UpdateProductRequest) (*product.Product, error) {
	var price *decimal.Decimal
	if req.Price != nil {
		d, err := parsePrice(*req.Price)
		if err != nil {
			return nil, err
		}
		price = &d
	}
	if req.Stock != nil && *req.Stock < 0 {
		return nil, invalid("stock must not be negative")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, invalid("name must not be blank")
	}

	var updated *product.Product
	err := s.uow.Run(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Products().LockByIDs(ctx, []string{id}); err != nil {
			return err
		}
		p, err := tx.Products().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if price != nil {
			p.Price = *price
		}
		if req.Stock != nil {
			p.Stock = *req.Stock
		}
		if req.Active != nil {
			p.Active = *req.Active
		}
		p.UpdatedAt = s.clock()
		if err := tx.Products().Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AdjustStock adds delta to the stock; the result never drops below zero.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int) (*product.Product, error) {
	if delta == 0 {
		return s.Get(ctx, id)
	}
	var updated *product.Product
	err := s.uow.Run(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Products().LockByIDs(ctx, []string{id}); err != nil {
			return err
		}
		store := product.NewStore(tx.Products())
		p, err := store.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if delta > 0 {
			updated, err = store.IncreaseStock(ctx, p, delta)
		} else {
			updated, err = store.DecreaseStock(ctx, p, -delta)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("stock adjusted",
		zap.String("product_id", id),
		zap.Int("delta", delta),
		zap.Int("stock", updated.Stock))
	return updated, nil
}

// Deactivate is the soft delete: the row stays so order items keep their
// reference, but it no longer shows in listings. It reports false when the
// product does not exist.
func (s *Service) Deactivate(ctx context.Context, id string) (bool, error) {
	inactive := false
	_, err := s.Update(ctx, id, product.UpdateProductRequest{Active: &inactive})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	s.logger.Info("product deactivated", zap.String("product_id", id))
	return true, nil
}

func (s *Service) LowStock(ctx context.Context, threshold int) ([]product.Product, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	var out []product.Product
	err := s.uow.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Products().LowStock(ctx, threshold)
		return err
	})
	return out, err
}

func isNotFound(err error) bool { return errors.Is(err, product.ErrNotFound) }
