// File: internal/product/repo.go
// Package product provides the product model, the stock operations used by order placement,
// and the PostgreSQL repository behind them.
package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Query struct {
	Q               string
	Limit           int
	Offset          int
	IncludeInactive bool
}

// Normalize clamps paging values to the accepted range.
func (q Query) Normalize() Query {
	if q.Limit <= 0 || q.Limit > MaxLimit {
		q.Limit = DefaultLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Q = strings.TrimSpace(q.Q)
	return q
}

// Repository is scoped to one unit of work; every call runs inside the
// transaction that produced it.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	// LockByIDs takes exclusive row locks in ascending id order. Unknown ids are ignored.
	LockByIDs(ctx context.Context, ids []string) error
	List(ctx context.Context, q Query) ([]Product, error)
	LowStock(ctx context.Context, threshold int) ([]Product, error)
	// Update writes name, description, price, stock and active as given.
	Update(ctx context.Context, p *Product) error
	// AddStock applies delta atomically and returns the resulting stock.
	// The stock never goes below zero.
	AddStock(ctx context.Context, id string, delta int) (int, error)
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGRepo struct{ db DBTX }

func NewPGRepo(db DBTX) *PGRepo { return &PGRepo{db: db} }

const selectColumns = `id, name, description, price::text, stock, active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s: bad price %q: %w", p.ID, price, err)
	}
	p.Price = d
	return &p, nil
}

func (r *PGRepo) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, name, description, price, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$7)
	`, p.ID, p.Name, p.Description, p.Price.String(), p.Stock, p.Active, p.CreatedAt)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	return p, err
}

func (r *PGRepo) LockByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (r *PGRepo) List(ctx context.Context, q Query) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q = q.Normalize()
	rows, err := r.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM products
		WHERE ($1 OR active)
		  AND ($2 = '' OR name ILIKE '%'||$2||'%' OR description ILIKE '%'||$2||'%')
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, q.IncludeInactive, q.Q, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PGRepo) LowStock(ctx context.Context, threshold int) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM products
		WHERE active AND stock < $1
		ORDER BY stock, id
	`, threshold)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PGRepo) Update(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `
		UPDATE products
		SET name = $2,
		    description = $3,
		    price = $4::numeric,
		    stock = $5,
		    active = $6,
		    updated_at = $7
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price.String(), p.Stock, p.Active, p.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &NotFoundError{ID: p.ID}
	}
	return nil
}

func (r *PGRepo) AddStock(ctx context.Context, id string, delta int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stock int
	err := r.db.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock
	`, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// Either the row is missing or the guard rejected the change.
	err = r.db.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &NotFoundError{ID: id}
	}
	if err != nil {
		return 0, err
	}
	return 0, &StockExhaustedError{ProductID: id, Requested: -delta, Available: stock}
}
