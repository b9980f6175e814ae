// Package postgres implements storage.UnitOfWork on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeMC777/ordenes-stock/internal/order"
	"github.com/MikeMC777/ordenes-stock/internal/product"
	"github.com/MikeMC777/ordenes-stock/internal/storage"
)

// Open creates a pool and checks the database is reachable.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		name        VARCHAR(200) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		stock       INTEGER NOT NULL CHECK (stock >= 0),
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_active_stock ON products(active, stock)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id               TEXT PRIMARY KEY,
		order_number     VARCHAR(50) NOT NULL,
		customer_name    VARCHAR(100) NOT NULL,
		customer_email   VARCHAR(200) NOT NULL,
		shipping_address VARCHAR(500) NOT NULL,
		status           VARCHAR(20) NOT NULL,
		total_amount     NUMERIC(14,2) NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		CONSTRAINT orders_order_number_key UNIQUE (order_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_email ON orders(customer_email, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status_created_at ON orders(status, created_at)`,

	`CREATE TABLE IF NOT EXISTS order_items (
		id           TEXT PRIMARY KEY,
		order_id     TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		line_no      INTEGER NOT NULL,
		product_id   TEXT NOT NULL REFERENCES products(id),
		product_name VARCHAR(200) NOT NULL,
		quantity     INTEGER NOT NULL CHECK (quantity > 0),
		unit_price   NUMERIC(12,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id, line_no)`,
}

// Migrate creates the tables when they do not exist.
func Migrate(ctx context.Context, db product.DBTX) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// UnitOfWork runs each unit in its own pgx transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

var _ storage.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork { return &UnitOfWork{pool: pool} }

type tx struct {
	products *product.PGRepo
	orders   *order.PGRepo
}

func (t tx) Products() product.Repository { return t.products }
func (t tx) Orders() order.Repository     { return t.orders }

func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return u.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (u *UnitOfWork) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return u.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, fn)
}

func (u *UnitOfWork) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx storage.Tx) error) error {
	pgtx, err := u.pool.BeginTx(ctx, opts)
	if err != nil {
		return translate(err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(ctx, tx{products: product.NewPGRepo(pgtx), orders: order.NewPGRepo(pgtx)}); err != nil {
		return translate(err)
	}
	return translate(pgtx.Commit(ctx))
}

// Retryable SQLSTATEs: serialization_failure, deadlock_detected, lock_not_available.
var conflictCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.Message)
	}
	return err
}
