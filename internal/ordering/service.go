// Package ordering places and cancels orders. Every operation that touches
// stock runs in a single unit of work: either every stock change and the
// order write commit together or nothing does.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-stock/internal/order"
	"github.com/MikeMC777/ordenes-stock/internal/product"
	"github.com/MikeMC777/ordenes-stock/internal/storage"
)

// ErrRetriesExhausted wraps the last transient error once the retry budget is spent.
var ErrRetriesExhausted = errors.New("ordering: retries exhausted")

// Publisher receives lifecycle events after commit.
type Publisher interface {
	Publish(ctx context.Context, ev order.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, order.Event) error { return nil }

// Deps wires the engine. Only UnitOfWork is required.
type Deps struct {
	UnitOfWork storage.UnitOfWork
	Publisher  Publisher
	Logger     *zap.Logger
	Tracer     trace.Tracer
	Clock      func() time.Time
	NewID      func() string
	Numbers    order.NumberGenerator
	// MaxRetries bounds how many times a conflicting unit of work is re-run.
	MaxRetries int
	// RetryInterval is the first backoff wait; later waits grow exponentially.
	RetryInterval time.Duration
}

type Service struct {
	uow           storage.UnitOfWork
	publisher     Publisher
	logger        *zap.Logger
	tracer        trace.Tracer
	clock         func() time.Time
	newID         func() string
	numbers       order.NumberGenerator
	maxRetries    int
	retryInterval time.Duration
}

func NewService(deps Deps) (*Service, error) {
	if deps.UnitOfWork == nil {
		return nil, errors.New("ordering: unit of work is required")
	}
	s := &Service{
		uow:           deps.UnitOfWork,
		publisher:     deps.Publisher,
		logger:        deps.Logger,
		tracer:        deps.Tracer,
		clock:         deps.Clock,
		newID:         deps.NewID,
		numbers:       deps.Numbers,
		maxRetries:    deps.MaxRetries,
		retryInterval: deps.RetryInterval,
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("ordenes-stock/ordering")
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.numbers == nil {
		s.numbers = order.RandomNumbers(nil)
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 3
	}
	if s.retryInterval <= 0 {
		s.retryInterval = 20 * time.Millisecond
	}
	return s, nil
}

// retry re-runs op while it fails with a transient conflict or an order
// number collision. Any other error is returned as is.
func (s *Service) retry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryInterval
	eb.MaxInterval = 20 * s.retryInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.maxRetries)), ctx)

	var transient error
	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, order.ErrDuplicateNumber) {
			transient = err
			return err
		}
		return backoff.Permanent(err)
	}, b)
	if err != nil && transient != nil && errors.Is(err, transient) {
		return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	return err
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *Service) publish(ctx context.Context, t order.EventType, o *order.Order) {
	if err := s.publisher.Publish(ctx, order.NewEvent(t, o, s.clock())); err != nil {
		s.logger.Warn("failed to publish order event",
			zap.String("event", string(t)),
			zap.String("order_number", o.Number),
			zap.Error(err))
	}
}

// PlaceOrder reserves stock for every line and persists a PENDING order.
// Products are locked in ascending id order before any stock is read, so the
// check and the decrement see the same value.
func (s *Service) PlaceOrder(ctx context.Context, req order.PlaceRequest) (_ *order.Order, err error) {
	ctx, span := s.startSpan(ctx, "order.place",
		attribute.String("customer.email", req.Email),
		attribute.Int("order.lines", len(req.Items)))
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var placed *order.Order
	err = s.retry(ctx, func() error {
		o, err := s.placeOnce(ctx, req)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("order.number", placed.Number))
	s.logger.Info("order placed",
		zap.String("order_id", placed.ID),
		zap.String("order_number", placed.Number),
		zap.String("total", placed.Total.StringFixed(2)),
		zap.Int("items", len(placed.Items)))
	s.publish(ctx, order.EventPlaced, placed)
	return placed, nil
}

func (s *Service) placeOnce(ctx context.Context, req order.PlaceRequest) (*order.Order, error) {
	now := s.clock()
	number, err := s.numbers(now)
	if err != nil {
		return nil, err
	}
	o := order.New(s.newID(), number, req.Customer, now)

	err = s.uow.Run(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Products().LockByIDs(ctx, req.ProductIDs()); err != nil {
			return err
		}
		store := product.NewStore(tx.Products())
		for _, line := range req.Items {
			p, err := store.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if !store.HasSufficientStock(p, line.Quantity) {
				return &product.StockExhaustedError{ProductID: p.ID, Requested: line.Quantity, Available: p.Stock}
			}
			if _, err := store.DecreaseStock(ctx, p, line.Quantity); err != nil {
				return err
			}
			if err := o.AddItem(order.NewItem(s.newID(), p, line.Quantity)); err != nil {
				return err
			}
		}
		o.CalculateTotal()
		return tx.Orders().Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CancelOrder applies the guarded cancel transition and returns every item's
// quantity to stock in the same unit of work.
func (s *Service) CancelOrder(ctx context.Context, id string) (_ *order.Order, err error) {
	ctx, span := s.startSpan(ctx, "order.cancel", attribute.String("order.id", id))
	defer func() { endSpan(span, err) }()

	var cancelled *order.Order
	err = s.retry(ctx, func() error {
		return s.uow.Run(ctx, func(ctx context.Context, tx storage.Tx) error {
			o, err := tx.Orders().GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := o.Cancel(s.clock()); err != nil {
				return err
			}
			qty := o.Quantities()
			ids := make([]string, 0, len(qty))
			for pid := range qty {
				ids = append(ids, pid)
			}
			if err := tx.Products().LockByIDs(ctx, ids); err != nil {
				return err
			}
			store := product.NewStore(tx.Products())
			for _, it := range o.Items {
				p, err := store.GetProduct(ctx, it.ProductID)
				if err != nil {
					return err
				}
				if _, err := store.IncreaseStock(ctx, p, it.Quantity); err != nil {
					return err
				}
			}
			if err := tx.Orders().UpdateStatus(ctx, o); err != nil {
				return err
			}
			cancelled = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled",
		zap.String("order_id", cancelled.ID),
		zap.String("order_number", cancelled.Number))
	s.publish(ctx, order.EventCancelled, cancelled)
	return cancelled, nil
}

// UpdateStatus is the administrative override. It accepts any known status
// from any current status and never touches stock.
func (s *Service) UpdateStatus(ctx context.Context, id string, status order.Status) (_ *order.Order, err error) {
	ctx, span := s.startSpan(ctx, "order.update_status",
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", order.ErrUnknownStatus, status)
	}

	var updated *order.Order
	err = s.retry(ctx, func() error {
		return s.uow.Run(ctx, func(ctx context.Context, tx storage.Tx) error {
			o, err := tx.Orders().GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := o.SetStatus(status, s.clock()); err != nil {
				return err
			}
			if err := tx.Orders().UpdateStatus(ctx, o); err != nil {
				return err
			}
			updated = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status updated",
		zap.String("order_number", updated.Number),
		zap.String("status", string(updated.Status)))
	s.publish(ctx, order.EventStatusChanged, updated)
	return updated, nil
}

func (s *Service) GetOrderByID(ctx context.Context, id string) (*order.Order, error) {
	var o *order.Order
	err := s.uow.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		o, err = tx.Orders().GetByID(ctx, id)
		return err
	})
	return o, err
}

func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	var o *order.Order
	err := s.uow.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		o, err = tx.Orders().GetByNumber(ctx, number)
		return err
	})
	return o, err
}

func (s *Service) GetOrdersByCustomer(ctx context.Context, email string, p order.PageRequest) (*order.Page, error) {
	var page *order.Page
	err := s.uow.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		page, err = tx.Orders().ListByCustomer(ctx, email, p)
		return err
	})
	return page, err
}

// SweepUnpaidOrders cancels PENDING orders older than threshold through the
// same guarded path as CancelOrder. threshold must be positive. A failure on
// one order is logged and the sweep moves on; the result counts successful
// cancellations only.
func (s *Service) SweepUnpaidOrders(ctx context.Context, threshold time.Duration) (_ int, err error) {
	if threshold <= 0 {
		return 0, fmt.Errorf("%w: sweep threshold must be positive, got %s", order.ErrInvalidRequest, threshold)
	}
	cutoff := s.clock().Add(-threshold)
	ctx, span := s.startSpan(ctx, "order.sweep_unpaid", attribute.String("cutoff", cutoff.Format(time.RFC3339)))
	defer func() { endSpan(span, err) }()

	var ids []string
	err = s.uow.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		ids, err = tx.Orders().ListStalePending(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("sweeping unpaid orders", zap.Time("cutoff", cutoff), zap.Int("candidates", len(ids)))
	cancelled := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.CancelOrder(ctx, id); err != nil {
			s.logger.Error("failed to cancel unpaid order", zap.String("order_id", id), zap.Error(err))
			continue
		}
		cancelled++
	}
	span.SetAttributes(attribute.Int("orders.cancelled", cancelled))
	s.logger.Info("unpaid order sweep finished", zap.Int("cancelled", cancelled), zap.Int("candidates", len(ids)))
	return cancelled, nil
}
