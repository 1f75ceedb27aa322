package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/domain/order"
	"github.com/xenking/loja-api/internal/events"
)

var _ order.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs order writes in a read-committed transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork that uses the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	err := pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, orderTx{q: tx})
	})
	if err != nil {
		return errors.Wrap(err, "order transaction")
	}
	return nil
}

// orderTx implements order.Tx on an open transaction.
type orderTx struct {
	q querier
}

func (t orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	return createOrder(ctx, t.q, o)
}

func (t orderTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	return decrementStock(ctx, t.q, productID, qty)
}

func (t orderTx) Redemptions() coupon.RedemptionStore {
	return redemptionStore{q: t.q}
}

func (t orderTx) LockOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return getOrder(ctx, t.q, lockOrderSQL, id)
}

func (t orderTx) UpdateStatus(ctx context.Context, id uuid.UUID, status order.Status, adminNotes *string, at time.Time) error {
	return updateOrderStatus(ctx, t.q, id, status, adminNotes, at)
}

func (t orderTx) Enqueue(ctx context.Context, e order.Event) error {
	return insertOutbox(ctx, t.q, events.NewRecord(e))
}
