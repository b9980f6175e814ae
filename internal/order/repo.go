package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const numberConstraint = "orders_order_number_key"

// Repository is scoped to one unit of work.
type Repository interface {
	// Create inserts o with its items. A clash on the order number yields ErrDuplicateNumber.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetByIDForUpdate loads o and holds its row lock until the unit of work ends.
	GetByIDForUpdate(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByCustomer(ctx context.Context, email string, p PageRequest) (*Page, error)
	// UpdateStatus persists o.Status and o.UpdatedAt.
	UpdateStatus(ctx context.Context, o *Order) error
	// ListStalePending returns ids of PENDING orders created strictly before cutoff, oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]string, error)
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGRepo struct{ db DBTX }

func NewPGRepo(db DBTX) *PGRepo { return &PGRepo{db: db} }

const orderColumns = `id, order_number, customer_name, customer_email, shipping_address, status, total_amount::text, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.db.Exec(ctx, `
		INSERT INTO orders (id, order_number, customer_name, customer_email, shipping_address, status, total_amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9)
	`, o.ID, o.Number, o.CustomerName, o.CustomerEmail, o.ShippingAddress, o.Status, o.Total.String(), o.CreatedAt, o.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == numberConstraint {
			return fmt.Errorf("%w: %s", ErrDuplicateNumber, o.Number)
		}
		return err
	}

	for i, it := range o.Items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO order_items (id, order_id, line_no, product_id, product_name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7::numeric)
		`, it.ID, o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice.String()); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, "id", id)
}

func (r *PGRepo) GetByIDForUpdate(ctx context.Context, id string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, "id", id)
}

func (r *PGRepo) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=$1`, "number", number)
}

func (r *PGRepo) getOne(ctx context.Context, sql, field, value string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, sql, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Field: field, Value: value}
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}
	o.Seal()
	return o, nil
}

func (r *PGRepo) ListByCustomer(ctx context.Context, email string, p PageRequest) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p = p.Normalize()
	page := &Page{Page: p.Page, Size: p.Size, Orders: []*Order{}}
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE customer_email=$1`, email).Scan(&page.Total); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE customer_email=$1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, email, p.Size, p.Offset())
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		page.Orders = append(page.Orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Items are loaded after the cursor is closed; a tx runs one query at a time.
	for _, o := range page.Orders {
		if o.Items, err = r.items(ctx, o.ID); err != nil {
			return nil, err
		}
		o.Seal()
	}
	return page, nil
}

func (r *PGRepo) UpdateStatus(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, o.ID, o.Status, o.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &NotFoundError{Field: "id", Value: o.ID}
	}
	return nil
}

func (r *PGRepo) ListStalePending(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id FROM orders
		WHERE status=$1 AND created_at < $2
		ORDER BY created_at, id
	`, StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PGRepo) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price::text
		FROM order_items WHERE order_id=$1
		ORDER BY line_no
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order item %s: bad unit price %q: %w", it.ID, price, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o     Order
		total string
	)
	if err := row.Scan(&o.ID, &o.Number, &o.CustomerName, &o.CustomerEmail, &o.ShippingAddress,
		&o.Status, &total, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("order %s: bad total %q: %w", o.ID, total, err)
	}
	o.Total = d
	return &o, nil
}
