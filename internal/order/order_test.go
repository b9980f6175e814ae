package order

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/MikeMC777/ordenes-stock/internal/product"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func newOrder() *Order {
	return New("o-1", "ORD-20240115-AAAAAAAA", Customer{
		Name: "Ana", Email: "ana@example.com", ShippingAddress: "Calle 1",
	}, t0)
}

func TestNewOrderIsPending(t *testing.T) {
	o := newOrder()
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, o.Total.IsZero())
	assert.Empty(t, o.Items)
	assert.False(t, o.Sealed())
}

func TestAddItemKeepsOrderAndBackReference(t *testing.T) {
	o := newOrder()
	laptop := &product.Product{ID: "p-laptop", Name: "Laptop", Price: mustDec(t, "35900.00")}
	mouse := &product.Product{ID: "p-mouse", Name: "Mouse", Price: mustDec(t, "7990.00")}

	require.NoError(t, o.AddItem(NewItem("i-1", laptop, 2)))
	require.NoError(t, o.AddItem(NewItem("i-2", mouse, 2)))

	require.Len(t, o.Items, 2)
	assert.Equal(t, "p-laptop", o.Items[0].ProductID)
	assert.Equal(t, "p-mouse", o.Items[1].ProductID)
	for _, it := range o.Items {
		assert.Equal(t, o.ID, it.OrderID)
	}
}

func TestItemSnapshotsProduct(t *testing.T) {
	p := &product.Product{ID: "p1", Name: "Laptop", Price: mustDec(t, "100.00")}
	it := NewItem("i1", p, 3)
	p.Name = "Renamed"
	p.Price = mustDec(t, "1.00")

	assert.Equal(t, "Laptop", it.ProductName)
	assert.True(t, it.UnitPrice.Equal(mustDec(t, "100.00")))
	assert.Equal(t, "300.00", it.Subtotal().StringFixed(2))
}

func TestCalculateTotalIsExact(t *testing.T) {
	o := newOrder()
	require.NoError(t, o.AddItem(Item{ID: "i1", ProductID: "a", Quantity: 2, UnitPrice: mustDec(t, "35900.00")}))
	require.NoError(t, o.AddItem(Item{ID: "i2", ProductID: "b", Quantity: 2, UnitPrice: mustDec(t, "7990.00")}))

	total := o.CalculateTotal()
	assert.Equal(t, "87780.00", total.StringFixed(2))
	assert.True(t, o.Total.Equal(total))
}

func TestCalculateTotalSealsOrder(t *testing.T) {
	o := newOrder()
	require.NoError(t, o.AddItem(Item{ID: "i1", ProductID: "a", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}))
	o.CalculateTotal()

	err := o.AddItem(Item{ID: "i2", ProductID: "b", Quantity: 1, UnitPrice: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrSealed)
	assert.Len(t, o.Items, 1)
}

func TestTotalMatchesSumOfSubtotals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		o := newOrder()
		n := rapid.IntRange(1, 20).Draw(t, "items")
		want := decimal.Zero
		for i := 0; i < n; i++ {
			cents := rapid.Int64Range(0, 10_000_000).Draw(t, "cents")
			qty := rapid.IntRange(1, MaxQuantity).Draw(t, "qty")
			price := decimal.New(cents, -2)
			if err := o.AddItem(Item{ID: "i", ProductID: "p", Quantity: qty, UnitPrice: price}); err != nil {
				t.Fatalf("add item: %v", err)
			}
			want = want.Add(price.Mul(decimal.NewFromInt(int64(qty))))
		}
		if got := o.CalculateTotal(); !got.Equal(want) {
			t.Fatalf("total %s, want %s", got, want)
		}
	})
}

func TestCancelGuard(t *testing.T) {
	later := t0.Add(time.Hour)
	for _, s := range Statuses() {
		o := newOrder()
		o.Status = s
		err := o.Cancel(later)
		if s.Cancellable() {
			require.NoError(t, err, s)
			assert.Equal(t, StatusCancelled, o.Status)
			assert.Equal(t, later, o.UpdatedAt)
			continue
		}
		var te *TransitionError
		require.True(t, errors.As(err, &te), s)
		assert.Equal(t, s, te.From)
		assert.Equal(t, "cancel", te.Op)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, s, o.Status, "status must be unchanged")
	}
}

func TestCancellableStatuses(t *testing.T) {
	assert.True(t, StatusPending.Cancellable())
	assert.True(t, StatusPaid.Cancellable())
	assert.True(t, StatusProcessing.Cancellable())
	assert.False(t, StatusShipped.Cancellable())
	assert.False(t, StatusDelivered.Cancellable())
	assert.False(t, StatusCompleted.Cancellable())
	assert.False(t, StatusCancelled.Cancellable())
}

func TestSetStatusIsPermissive(t *testing.T) {
	o := newOrder()
	o.Status = StatusCancelled
	require.NoError(t, o.SetStatus(StatusPaid, t0))
	assert.Equal(t, StatusPaid, o.Status)

	o.Status = StatusCompleted
	require.NoError(t, o.SetStatus(StatusPending, t0))
	assert.Equal(t, StatusPending, o.Status)

	assert.ErrorIs(t, o.SetStatus(Status("LOST"), t0), ErrUnknownStatus)
	assert.Equal(t, StatusPending, o.Status)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" paid ")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, s)

	_, err = ParseStatus("refunded")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestQuantitiesMergesRepeatedProducts(t *testing.T) {
	o := newOrder()
	require.NoError(t, o.AddItem(Item{ProductID: "a", Quantity: 2}))
	require.NoError(t, o.AddItem(Item{ProductID: "b", Quantity: 1}))
	require.NoError(t, o.AddItem(Item{ProductID: "a", Quantity: 3}))
	assert.Equal(t, map[string]int{"a": 5, "b": 1}, o.Quantities())
}

func TestCloneDoesNotShareItems(t *testing.T) {
	o := newOrder()
	require.NoError(t, o.AddItem(Item{ProductID: "a", Quantity: 2}))
	c := o.Clone()
	c.Items[0].Quantity = 99
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func TestRandomNumbersFormat(t *testing.T) {
	gen := RandomNumbers(nil)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n, err := gen(t0)
		require.NoError(t, err)
		assert.True(t, ValidNumber(n), n)
		assert.True(t, strings.HasPrefix(n, "ORD-20240115-"), n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestRandomNumbersUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	late := time.Date(2024, 1, 15, 22, 0, 0, 0, loc) // 2024-01-16 03:00 UTC
	n, err := RandomNumbers(bytes.NewReader(make([]byte, 8)))(late)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240116-AAAAAAAA", n)
}

func TestRandomNumbersReaderFailure(t *testing.T) {
	_, err := RandomNumbers(bytes.NewReader(nil))(t0)
	assert.Error(t, err)
}

func TestPlaceRequestValidate(t *testing.T) {
	ok := PlaceRequest{
		Customer: Customer{Name: "Ana", Email: "ana@example.com", ShippingAddress: "x"},
		Items:    []LineRequest{{ProductID: "p1", Quantity: 1}},
	}
	require.NoError(t, ok.Validate())

	empty := ok
	empty.Items = nil
	assert.ErrorIs(t, empty.Validate(), ErrInvalidRequest)

	zero := ok
	zero.Items = []LineRequest{{ProductID: "p1", Quantity: 0}}
	assert.ErrorIs(t, zero.Validate(), ErrInvalidRequest)

	noID := ok
	noID.Items = []LineRequest{{Quantity: 1}}
	assert.ErrorIs(t, noID.Validate(), ErrInvalidRequest)

	tooMany := ok
	tooMany.Items = make([]LineRequest, MaxItemsPerOrder+1)
	for i := range tooMany.Items {
		tooMany.Items[i] = LineRequest{ProductID: "p", Quantity: 1}
	}
	assert.ErrorIs(t, tooMany.Validate(), ErrInvalidRequest)

	noName := ok
	noName.Name = "   "
	assert.ErrorIs(t, noName.Validate(), ErrInvalidRequest)

	noAddress := ok
	noAddress.ShippingAddress = ""
	assert.ErrorIs(t, noAddress.Validate(), ErrInvalidRequest)
}

func TestProductIDsDistinctInRequestOrder(t *testing.T) {
	r := PlaceRequest{Items: []LineRequest{{ProductID: "b"}, {ProductID: "a"}, {ProductID: "b"}}}
	assert.Equal(t, []string{"b", "a"}, r.ProductIDs())
}

func TestToView(t *testing.T) {
	o := newOrder()
	require.NoError(t, o.AddItem(Item{ID: "i1", ProductID: "p", ProductName: "Laptop", Quantity: 2, UnitPrice: mustDec(t, "35900")}))
	o.CalculateTotal()

	v := ToView(o)
	assert.Equal(t, "71800.00", v.Total)
	assert.Equal(t, "ORD-20240115-AAAAAAAA", v.OrderNumber)
	assert.Equal(t, "awaiting payment", v.StatusDescription)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "35900.00", v.Items[0].UnitPrice)
	assert.Equal(t, "71800.00", v.Items[0].Subtotal)
	assert.Equal(t, t0, v.CreatedAt)
}

func TestPageRequestNormalize(t *testing.T) {
	p := PageRequest{Page: -1, Size: 0}.Normalize()
	assert.Equal(t, PageRequest{Page: 0, Size: DefaultPageSize}, p)
	p = PageRequest{Page: 2, Size: 500}.Normalize()
	assert.Equal(t, DefaultPageSize, p.Size)
	assert.Equal(t, 20, p.Offset())
}
