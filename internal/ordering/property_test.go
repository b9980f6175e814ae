package ordering

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/MikeMC777/ordenes-stock/internal/order"
	"github.com/MikeMC777/ordenes-stock/internal/product"
)

// Random catalogs and requests: a placement either reserves exactly the
// requested quantities or changes nothing, and cancelling it restores every
// touched product to its pre-placement stock.
func TestPlacementAtomicityAndConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nProducts := rapid.IntRange(1, 5).Draw(t, "products")
		var catalog []product.Product
		for i := 0; i < nProducts; i++ {
			catalog = append(catalog, product.Product{
				ID:     fmt.Sprintf("p%d", i),
				Name:   fmt.Sprintf("product %d", i),
				Price:  decimal.New(rapid.Int64Range(0, 5_000_000).Draw(t, "cents"), -2),
				Stock:  rapid.IntRange(0, 20).Draw(t, "stock"),
				Active: true,
			})
		}
		f := newFixture(t, catalog...)

		before := map[string]int{}
		for _, p := range catalog {
			before[p.ID] = p.Stock
		}

		nLines := rapid.IntRange(1, 6).Draw(t, "lines")
		var lines []order.LineRequest
		wantQty := map[string]int{}
		wantTotal := decimal.Zero
		for i := 0; i < nLines; i++ {
			idx := rapid.IntRange(0, nProducts).Draw(t, "product") // nProducts means unknown id
			qty := rapid.IntRange(1, 10).Draw(t, "qty")
			id := fmt.Sprintf("p%d", idx)
			lines = append(lines, line(id, qty))
			wantQty[id] += qty
			if idx < nProducts {
				wantTotal = wantTotal.Add(catalog[idx].Price.Mul(decimal.NewFromInt(int64(qty))))
			}
		}

		ctx := context.Background()
		o, err := f.svc.PlaceOrder(ctx, placeReq(lines...))
		if err != nil {
			if !errors.Is(err, product.ErrStockExhausted) && !errors.Is(err, product.ErrNotFound) {
				t.Fatalf("unexpected error: %v", err)
			}
			for id, n := range before {
				if got := f.stock(t, id); got != n {
					t.Fatalf("failed placement changed %s stock: %d -> %d", id, n, got)
				}
			}
			if f.store.OrderCount() != 0 {
				t.Fatalf("failed placement created an order")
			}
			return
		}

		if !o.Total.Equal(wantTotal) {
			t.Fatalf("total %s, want %s", o.Total, wantTotal)
		}
		for id, n := range before {
			if got, want := f.stock(t, id), n-wantQty[id]; got != want {
				t.Fatalf("%s stock after placement %d, want %d", id, got, want)
			}
		}

		if _, err := f.svc.CancelOrder(ctx, o.ID); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		for id, n := range before {
			if got := f.stock(t, id); got != n {
				t.Fatalf("%s stock after cancel %d, want %d", id, got, n)
			}
		}
	})
}
