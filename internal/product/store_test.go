package product_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/ordenes-stock/internal/product"
	"github.com/MikeMC777/ordenes-stock/internal/storage"
	"github.com/MikeMC777/ordenes-stock/internal/storage/memory"
)

func newStore(stock int) *memory.Store {
	s := memory.New()
	s.SeedProducts(product.Product{ID: "p1", Name: "Laptop", Price: decimal.RequireFromString("35900.00"), Stock: stock, Active: true})
	return s
}

func TestHasSufficientStock(t *testing.T) {
	st := product.NewStore(nil)
	p := &product.Product{ID: "p1", Stock: 5}
	assert.True(t, st.HasSufficientStock(p, 5))
	assert.True(t, st.HasSufficientStock(p, 1))
	assert.False(t, st.HasSufficientStock(p, 6))
	assert.False(t, st.HasSufficientStock(p, 0))
}

func TestDecreaseAndIncreaseStock(t *testing.T) {
	s := newStore(50)
	err := s.Run(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		st := product.NewStore(tx.Products())
		p, err := st.GetProduct(ctx, "p1")
		require.NoError(t, err)

		p, err = st.DecreaseStock(ctx, p, 2)
		require.NoError(t, err)
		assert.Equal(t, 48, p.Stock)

		p, err = st.IncreaseStock(ctx, p, 2)
		require.NoError(t, err)
		assert.Equal(t, 50, p.Stock)

		p, err = st.DecreaseStock(ctx, p, 50)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Stock)
		return nil
	})
	require.NoError(t, err)

	p, _ := s.Product("p1")
	assert.Equal(t, 0, p.Stock)
}

func TestDecreaseStockExhausted(t *testing.T) {
	s := newStore(3)
	err := s.Run(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		st := product.NewStore(tx.Products())
		p, err := st.GetProduct(ctx, "p1")
		if err != nil {
			return err
		}
		_, err = st.DecreaseStock(ctx, p, 4)
		return err
	})

	var se *product.StockExhaustedError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, product.ErrStockExhausted)
	assert.Equal(t, "p1", se.ProductID)
	assert.Equal(t, 4, se.Requested)
	assert.Equal(t, 3, se.Available)

	p, _ := s.Product("p1")
	assert.Equal(t, 3, p.Stock)
}

func TestNonPositiveQuantityRejected(t *testing.T) {
	s := newStore(3)
	err := s.Run(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		st := product.NewStore(tx.Products())
		p, _ := st.GetProduct(ctx, "p1")
		_, err := st.IncreaseStock(ctx, p, 0)
		return err
	})
	assert.ErrorIs(t, err, product.ErrInvalid)
}

func TestGetProductNotFound(t *testing.T) {
	s := newStore(3)
	err := s.View(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := product.NewStore(tx.Products()).GetProduct(ctx, "missing")
		return err
	})
	var nf *product.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestQueryNormalize(t *testing.T) {
	q := product.Query{Q: "  mouse ", Limit: 1000, Offset: -4}.Normalize()
	assert.Equal(t, product.Query{Q: "mouse", Limit: product.DefaultLimit, Offset: 0}, q)
}
