package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loja-api/internal/domain/cart"
	"github.com/xenking/loja-api/internal/domain/coupon"
)

func setupStore(t *testing.T) (*CartStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCartStore(client, time.Hour), mr
}

func TestCartStore_LoadMissing(t *testing.T) {
	store, _ := setupStore(t)

	c, err := store.Load(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.UserID)
	assert.True(t, c.Empty())
	assert.Nil(t, c.Coupon)
}

func TestCartStore_RoundTrip(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	c := cart.New(7)
	c.Lines = []cart.Line{
		{ProductID: 1, Name: "Camiseta", UnitPrice: decimal.RequireFromString("49.90"), Quantity: 2},
		{ProductID: 3, Name: "Caneca", UnitPrice: decimal.RequireFromString("25.00"), Quantity: 1},
	}
	c.Coupon = &cart.Coupon{ID: 9, Code: "SAVE10", Type: coupon.TypePercentage, Value: decimal.NewFromInt(10)}
	require.NoError(t, store.Save(ctx, c))

	assert.True(t, mr.Exists("cart:7"))
	assert.Equal(t, time.Hour, mr.TTL("cart:7"))

	got, err := store.Load(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[0].UnitPrice.Equal(decimal.RequireFromString("49.90")))
	require.NotNil(t, got.Coupon)
	assert.Equal(t, "SAVE10", got.Coupon.Code)
	assert.Equal(t, "124.80", got.Totals().Subtotal.StringFixed(2))
	assert.Equal(t, "12.48", got.Totals().Discount.StringFixed(2))
}

func TestCartStore_Expires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	c := cart.New(1)
	c.Lines = []cart.Line{{ProductID: 1, UnitPrice: decimal.NewFromInt(5), Quantity: 1}}
	require.NoError(t, store.Save(ctx, c))

	mr.FastForward(2 * time.Hour)

	got, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestCartStore_Delete(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	c := cart.New(5)
	c.Lines = []cart.Line{{ProductID: 2, UnitPrice: decimal.NewFromInt(1), Quantity: 3}}
	require.NoError(t, store.Save(ctx, c))
	require.NoError(t, store.Delete(ctx, 5))
	assert.False(t, mr.Exists("cart:5"))

	require.NoError(t, store.Delete(ctx, 5))
}

func TestCartStore_CorruptValue(t *testing.T) {
	store, mr := setupStore(t)
	require.NoError(t, mr.Set("cart:3", "{not json"))

	_, err := store.Load(context.Background(), 3)
	require.Error(t, err)
}

func TestCartStore_Unavailable(t *testing.T) {
	store, mr := setupStore(t)
	mr.Close()

	_, err := store.Load(context.Background(), 1)
	require.Error(t, err)
	require.Error(t, store.Ping(context.Background()))
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, NewCartStore(client, 0).Ping(context.Background()))

	_, err = NewClient(context.Background(), "mysql://nope")
	require.Error(t, err)
}
