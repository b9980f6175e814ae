// Package memory is an in-process storage.UnitOfWork.
//
// Every product and order row carries its own mutex. A transaction locks the
// rows it writes and keeps them until it ends; callers lock products in
// ascending id order so concurrent transactions cannot deadlock. Writes go to
// a per-transaction write set that is applied atomically on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MikeMC777/ordenes-stock/internal/order"
	"github.com/MikeMC777/ordenes-stock/internal/product"
	"github.com/MikeMC777/ordenes-stock/internal/storage"
)

type productRow struct {
	lock sync.Mutex
	val  product.Product
}

type orderRow struct {
	lock sync.Mutex
	val  *order.Order
}

type Store struct {
	// mu guards the maps and the committed row values; row locks are separate.
	mu       sync.RWMutex
	products map[string]*productRow
	orders   map[string]*orderRow
	numbers  map[string]string
}

var _ storage.UnitOfWork = (*Store)(nil)

func New() *Store {
	return &Store{
		products: make(map[string]*productRow),
		orders:   make(map[string]*orderRow),
		numbers:  make(map[string]string),
	}
}

// SeedProducts stores ps as committed rows, replacing any with the same id.
func (s *Store) SeedProducts(ps ...product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		if row, ok := s.products[p.ID]; ok {
			row.val = p
			continue
		}
		s.products[p.ID] = &productRow{val: p}
	}
}

// Product returns the committed value of a product.
func (s *Store) Product(id string) (product.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.products[id]
	if !ok {
		return product.Product{}, false
	}
	return row.val, true
}

// OrderCount returns the number of committed orders.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) Run(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		s:         s,
		readOnly:  readOnly,
		heldProds: make(map[string]bool),
		heldOrds:  make(map[string]bool),
		prodWrite: make(map[string]product.Product),
		ordWrite:  make(map[string]*order.Order),
	}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

type tx struct {
	s        *Store
	readOnly bool

	held      []*sync.Mutex
	heldProds map[string]bool
	heldOrds  map[string]bool

	prodWrite map[string]product.Product
	ordNew    []*order.Order
	ordWrite  map[string]*order.Order
}

func (t *tx) Products() product.Repository { return productRepo{t} }
func (t *tx) Orders() order.Repository     { return orderRepo{t} }

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func (t *tx) lockProduct(id string) {
	if t.heldProds[id] {
		return
	}
	t.s.mu.RLock()
	row := t.s.products[id]
	t.s.mu.RUnlock()
	if row == nil {
		return
	}
	row.lock.Lock()
	t.heldProds[id] = true
	t.held = append(t.held, &row.lock)
}

func (t *tx) lockOrder(id string) {
	if t.heldOrds[id] {
		return
	}
	t.s.mu.RLock()
	row := t.s.orders[id]
	t.s.mu.RUnlock()
	if row == nil {
		return
	}
	row.lock.Lock()
	t.heldOrds[id] = true
	t.held = append(t.held, &row.lock)
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(t.ordNew))
	for _, o := range t.ordNew {
		if _, dup := s.numbers[o.Number]; dup || seen[o.Number] {
			return fmt.Errorf("%w: %s", order.ErrDuplicateNumber, o.Number)
		}
		seen[o.Number] = true
	}

	for id, p := range t.prodWrite {
		if row, ok := s.products[id]; ok {
			row.val = p
			continue
		}
		s.products[id] = &productRow{val: p}
	}
	for _, o := range t.ordNew {
		s.orders[o.ID] = &orderRow{val: o}
		s.numbers[o.Number] = o.ID
	}
	for id, o := range t.ordWrite {
		if row, ok := s.orders[id]; ok {
			row.val = o
		}
	}
	return nil
}

// product repository

type productRepo struct{ t *tx }

func (r productRepo) Create(_ context.Context, p *product.Product) error {
	t := r.t
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if _, err := r.get(p.ID); err == nil {
		return fmt.Errorf("%w: duplicate product id %s", product.ErrInvalid, p.ID)
	}
	t.prodWrite[p.ID] = *p
	return nil
}

func (r productRepo) get(id string) (product.Product, error) {
	if p, ok := r.t.prodWrite[id]; ok {
		return p, nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	row, ok := r.t.s.products[id]
	if !ok {
		return product.Product{}, &product.NotFoundError{ID: id}
	}
	return row.val, nil
}

func (r productRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r productRepo) LockByIDs(_ context.Context, ids []string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		r.t.lockProduct(id)
	}
	return nil
}

func (r productRepo) all() []product.Product {
	r.t.s.mu.RLock()
	out := make([]product.Product, 0, len(r.t.s.products)+len(r.t.prodWrite))
	for id, row := range r.t.s.products {
		if _, overlaid := r.t.prodWrite[id]; !overlaid {
			out = append(out, row.val)
		}
	}
	r.t.s.mu.RUnlock()
	for _, p := range r.t.prodWrite {
		out = append(out, p)
	}
	return out
}

func (r productRepo) List(_ context.Context, q product.Query) ([]product.Product, error) {
	q = q.Normalize()
	needle := strings.ToLower(q.Q)

	matched := []product.Product{}
	for _, p := range r.all() {
		if !q.IncludeInactive && !p.Active {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return paginate(matched, q.Offset, q.Limit), nil
}

func (r productRepo) LowStock(_ context.Context, threshold int) ([]product.Product, error) {
	out := []product.Product{}
	for _, p := range r.all() {
		if p.Active && p.Stock < threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r productRepo) Update(_ context.Context, p *product.Product) error {
	if r.t.readOnly {
		return storage.ErrReadOnly
	}
	r.t.lockProduct(p.ID)
	if _, err := r.get(p.ID); err != nil {
		return err
	}
	r.t.prodWrite[p.ID] = *p
	return nil
}

func (r productRepo) AddStock(_ context.Context, id string, delta int) (int, error) {
	if r.t.readOnly {
		return 0, storage.ErrReadOnly
	}
	r.t.lockProduct(id)
	p, err := r.get(id)
	if err != nil {
		return 0, err
	}
	if p.Stock+delta < 0 {
		return 0, &product.StockExhaustedError{ProductID: id, Requested: -delta, Available: p.Stock}
	}
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	r.t.prodWrite[id] = p
	return p.Stock, nil
}

// order repository

type orderRepo struct{ t *tx }

func (r orderRepo) Create(_ context.Context, o *order.Order) error {
	t := r.t
	if t.readOnly {
		return storage.ErrReadOnly
	}
	t.s.mu.RLock()
	_, dup := t.s.numbers[o.Number]
	_, exists := t.s.orders[o.ID]
	t.s.mu.RUnlock()
	for _, n := range t.ordNew {
		dup = dup || n.Number == o.Number
		exists = exists || n.ID == o.ID
	}
	if dup {
		return fmt.Errorf("%w: %s", order.ErrDuplicateNumber, o.Number)
	}
	if exists {
		return fmt.Errorf("%w: duplicate order id %s", order.ErrInvalidRequest, o.ID)
	}
	c := o.Clone()
	c.Seal()
	t.ordNew = append(t.ordNew, c)
	return nil
}

func (r orderRepo) get(field, value string, match func(*order.Order) bool, committed func() *order.Order) (*order.Order, error) {
	for _, o := range r.t.ordNew {
		if match(o) {
			return o.Clone(), nil
		}
	}
	for _, o := range r.t.ordWrite {
		if match(o) {
			return o.Clone(), nil
		}
	}
	r.t.s.mu.RLock()
	o := committed()
	var c *order.Order
	if o != nil {
		c = o.Clone()
	}
	r.t.s.mu.RUnlock()
	if c == nil {
		return nil, &order.NotFoundError{Field: field, Value: value}
	}
	return c, nil
}

func (r orderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	return r.get("id", id,
		func(o *order.Order) bool { return o.ID == id },
		func() *order.Order {
			if row, ok := r.t.s.orders[id]; ok {
				return row.val
			}
			return nil
		})
}

func (r orderRepo) GetByIDForUpdate(ctx context.Context, id string) (*order.Order, error) {
	if r.t.readOnly {
		return nil, storage.ErrReadOnly
	}
	r.t.lockOrder(id)
	return r.GetByID(ctx, id)
}

func (r orderRepo) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	return r.get("number", number,
		func(o *order.Order) bool { return o.Number == number },
		func() *order.Order {
			if row, ok := r.t.s.orders[r.t.s.numbers[number]]; ok {
				return row.val
			}
			return nil
		})
}

func (r orderRepo) all() []*order.Order {
	r.t.s.mu.RLock()
	out := make([]*order.Order, 0, len(r.t.s.orders)+len(r.t.ordNew))
	for id, row := range r.t.s.orders {
		if w, ok := r.t.ordWrite[id]; ok {
			out = append(out, w.Clone())
			continue
		}
		out = append(out, row.val.Clone())
	}
	r.t.s.mu.RUnlock()
	for _, o := range r.t.ordNew {
		out = append(out, o.Clone())
	}
	return out
}

func (r orderRepo) ListByCustomer(_ context.Context, email string, p order.PageRequest) (*order.Page, error) {
	p = p.Normalize()
	matched := []*order.Order{}
	for _, o := range r.all() {
		if o.CustomerEmail == email {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return &order.Page{
		Orders: paginate(matched, p.Offset(), p.Size),
		Page:   p.Page,
		Size:   p.Size,
		Total:  len(matched),
	}, nil
}

func (r orderRepo) UpdateStatus(_ context.Context, o *order.Order) error {
	t := r.t
	if t.readOnly {
		return storage.ErrReadOnly
	}
	for _, n := range t.ordNew {
		if n.ID == o.ID {
			n.Status, n.UpdatedAt = o.Status, o.UpdatedAt
			return nil
		}
	}
	t.lockOrder(o.ID)
	cur, err := r.GetByID(context.Background(), o.ID)
	if err != nil {
		return err
	}
	cur.Status, cur.UpdatedAt = o.Status, o.UpdatedAt
	t.ordWrite[o.ID] = cur
	return nil
}

func (r orderRepo) ListStalePending(_ context.Context, cutoff time.Time) ([]string, error) {
	stale := []*order.Order{}
	for _, o := range r.all() {
		if o.Status == order.StatusPending && o.CreatedAt.Before(cutoff) {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].CreatedAt.Equal(stale[j].CreatedAt) {
			return stale[i].CreatedAt.Before(stale[j].CreatedAt)
		}
		return stale[i].ID < stale[j].ID
	})
	ids := make([]string, len(stale))
	for i, o := range stale {
		ids[i] = o.ID
	}
	return ids, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
