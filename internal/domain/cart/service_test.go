package cart

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/domain/product"
)

// --- Mock implementations ---

type memStore struct {
	carts   map[int64]*Cart
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{carts: make(map[int64]*Cart)}
}

func (m *memStore) Load(_ context.Context, userID int64) (*Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		return New(userID), nil
	}
	cp := *c
	cp.Lines = append([]Line(nil), c.Lines...)
	if c.Coupon != nil {
		cc := *c.Coupon
		cp.Coupon = &cc
	}
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, c *Cart) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.carts[c.UserID] = c
	return nil
}

func (m *memStore) Delete(_ context.Context, userID int64) error {
	delete(m.carts, userID)
	return nil
}

type mockCatalog struct {
	byID map[int64]*product.Product
}

func (m *mockCatalog) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type mockValidator struct {
	validation coupon.Validation
	err        error
}

func (m *mockValidator) Validate(_ context.Context, _ string, _ int64) (coupon.Validation, error) {
	return m.validation, m.err
}

type mockNotifier struct {
	calls int
	err   error
}

func (m *mockNotifier) CouponApplied(_ context.Context, _ int64, _ string, _ decimal.Decimal) error {
	m.calls++
	return m.err
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	svc      *Service
	store    *memStore
	catalog  *mockCatalog
	coupons  *mockValidator
	notifier *mockNotifier
}

func newFixture() *fixture {
	f := &fixture{
		store: newMemStore(),
		catalog: &mockCatalog{byID: map[int64]*product.Product{
			1: {ID: 1, Name: "Camiseta", Price: d("10.00"), Stock: 5},
			2: {ID: 2, Name: "Caneca", Price: d("24.90"), Stock: 1},
			3: {ID: 3, Name: "Esgotado", Price: d("5.00"), Stock: 0},
		}},
		coupons:  &mockValidator{},
		notifier: &mockNotifier{},
	}
	f.svc = NewService(f.store, f.catalog, f.coupons, f.notifier)
	f.svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return f
}

// --- Tests ---

func TestAddLine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	totals, err := f.svc.AddLine(ctx, 10, 1, 2)
	require.NoError(t, err)
	require.Len(t, totals.Lines, 1)
	assert.Equal(t, 2, totals.ItemCount)
	assert.True(t, d("20.00").Equal(totals.Subtotal))
	assert.True(t, d("20.00").Equal(totals.Total))
	assert.Equal(t, "Camiseta", totals.Lines[0].Name)
}

func TestAddLine_MergesAndRechecksStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddLine(ctx, 10, 1, 3)
	require.NoError(t, err)

	totals, err := f.svc.AddLine(ctx, 10, 1, 2)
	require.NoError(t, err)
	require.Len(t, totals.Lines, 1)
	assert.Equal(t, 5, totals.Lines[0].Quantity)

	_, err = f.svc.AddLine(ctx, 10, 1, 1)
	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)

	c, _ := f.store.Load(ctx, 10)
	line, ok := c.Line(1)
	require.True(t, ok)
	assert.Equal(t, 5, line.Quantity, "rejected merge must not change the cart")
}

func TestAddLine_Errors(t *testing.T) {
	tests := []struct {
		name      string
		productID int64
		qty       int
		check     func(t *testing.T, err error)
	}{
		{
			name: "zero quantity", productID: 1, qty: 0,
			check: func(t *testing.T, err error) {
				var qErr *QuantityError
				require.ErrorAs(t, err, &qErr)
			},
		},
		{
			name: "above cap", productID: 1, qty: MaxLineQuantity + 1,
			check: func(t *testing.T, err error) {
				var qErr *QuantityError
				require.ErrorAs(t, err, &qErr)
				assert.Equal(t, MaxLineQuantity, qErr.Max)
			},
		},
		{
			name: "unknown product", productID: 99, qty: 1,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, product.ErrNotFound)
				var nf *product.NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, int64(99), nf.ProductID)
			},
		},
		{
			name: "out of stock", productID: 3, qty: 1,
			check: func(t *testing.T, err error) {
				var stockErr *product.InsufficientStockError
				require.ErrorAs(t, err, &stockErr)
				assert.Equal(t, 0, stockErr.Available)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.AddLine(context.Background(), 10, tt.productID, tt.qty)
			tt.check(t, err)
			assert.Zero(t, f.store.saves)
		})
	}
}

func TestSetQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddLine(ctx, 10, 1, 1)
	require.NoError(t, err)
	_, err = f.svc.AddLine(ctx, 10, 2, 1)
	require.NoError(t, err)

	totals, err := f.svc.SetQuantity(ctx, 10, 1, 4)
	require.NoError(t, err)
	assert.True(t, d("64.90").Equal(totals.Subtotal))

	totals, err = f.svc.SetQuantity(ctx, 10, 2, 0)
	require.NoError(t, err)
	require.Len(t, totals.Lines, 1)
	assert.Equal(t, int64(1), totals.Lines[0].ProductID)

	_, err = f.svc.SetQuantity(ctx, 10, 2, 1)
	require.ErrorIs(t, err, ErrLineNotFound)

	_, err = f.svc.SetQuantity(ctx, 10, 1, 6)
	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
}

func TestRemoveLineAndClear(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.AddLine(ctx, 10, 1, 1)
	require.NoError(t, err)

	_, err = f.svc.RemoveLine(ctx, 10, 2)
	require.ErrorIs(t, err, ErrLineNotFound)

	totals, err := f.svc.RemoveLine(ctx, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, totals.Lines)

	_, err = f.svc.AddLine(ctx, 10, 1, 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.Clear(ctx, 10))

	lines, err := f.svc.ReadLines(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestApplyCoupon(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.coupons.validation = coupon.Validation{
		Valid: true,
		Coupon: &coupon.Coupon{
			ID:    7,
			Code:  "SAVE10",
			Type:  coupon.TypePercentage,
			Value: d("10"),
		},
	}

	_, err := f.svc.AddLine(ctx, 10, 1, 2)
	require.NoError(t, err)

	totals, err := f.svc.ApplyCoupon(ctx, 10, "save10")
	require.NoError(t, err)
	assert.True(t, d("2.00").Equal(totals.Discount))
	assert.True(t, d("18.00").Equal(totals.Total))
	assert.Equal(t, 1, f.notifier.calls)

	// Discount follows cart changes.
	totals, err = f.svc.AddLine(ctx, 10, 1, 1)
	require.NoError(t, err)
	assert.True(t, d("3.00").Equal(totals.Discount))

	cc, err := f.svc.ReadCoupon(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, cc)
	assert.Equal(t, "SAVE10", cc.Code)

	totals, err = f.svc.RemoveCoupon(ctx, 10)
	require.NoError(t, err)
	assert.True(t, totals.Discount.IsZero())
	assert.Nil(t, totals.Coupon)
}

func TestApplyCoupon_Invalid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.coupons.validation = coupon.Validation{Reason: coupon.ReasonExpired}

	_, err := f.svc.ApplyCoupon(ctx, 10, "OLD")
	require.ErrorIs(t, err, ErrEmpty)

	_, err = f.svc.AddLine(ctx, 10, 1, 1)
	require.NoError(t, err)

	_, err = f.svc.ApplyCoupon(ctx, 10, "old")
	var invalid *coupon.InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, coupon.ReasonExpired, invalid.Reason)
	assert.Equal(t, "OLD", invalid.Code)
	assert.Zero(t, f.notifier.calls)
}

func TestApplyCoupon_NotificationFailureIgnored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.notifier.err = errors.New("notifications down")
	f.coupons.validation = coupon.Validation{
		Valid:  true,
		Coupon: &coupon.Coupon{ID: 1, Code: "FIVE", Type: coupon.TypeFixedAmount, Value: d("5")},
	}

	_, err := f.svc.AddLine(ctx, 10, 1, 1)
	require.NoError(t, err)

	totals, err := f.svc.ApplyCoupon(ctx, 10, "FIVE")
	require.NoError(t, err)
	assert.True(t, d("5.00").Equal(totals.Total))
}

func TestTotals_Idempotent(t *testing.T) {
	c := &Cart{
		UserID: 1,
		Lines: []Line{
			{ProductID: 1, UnitPrice: d("19.99"), Quantity: 3},
			{ProductID: 2, UnitPrice: d("0.35"), Quantity: 7},
		},
		Coupon: &Coupon{Code: "P15", Type: coupon.TypePercentage, Value: d("15")},
	}

	first := c.Totals()
	second := c.Totals()

	assert.True(t, first.Subtotal.Equal(second.Subtotal))
	assert.True(t, first.Discount.Equal(second.Discount))
	assert.True(t, first.Total.Equal(second.Total))
	assert.Equal(t, "62.42", first.Subtotal.StringFixed(2))
	assert.Equal(t, "9.36", first.Discount.StringFixed(2))
	assert.Equal(t, "53.06", first.Total.StringFixed(2))
	assert.Equal(t, 10, first.ItemCount)
}

func TestSave_EmptyCartDropsCoupon(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.coupons.validation = coupon.Validation{
		Valid:  true,
		Coupon: &coupon.Coupon{ID: 1, Code: "FIVE", Type: coupon.TypeFixedAmount, Value: d("5")},
	}

	_, err := f.svc.AddLine(ctx, 10, 1, 1)
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(ctx, 10, "FIVE")
	require.NoError(t, err)

	totals, err := f.svc.RemoveLine(ctx, 10, 1)
	require.NoError(t, err)
	assert.Nil(t, totals.Coupon)
}
