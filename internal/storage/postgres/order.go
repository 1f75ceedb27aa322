package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loja-api/internal/domain/order"
)

const (
	orderColumns = `id, user_id, subtotal, discount_amount, shipping_amount, total, status,
		address_postal_code, address_street, address_number, COALESCE(address_complement, ''),
		address_neighborhood, address_city, address_state, payment_method,
		COALESCE(coupon_code, ''), COALESCE(notes, ''), COALESCE(admin_notes, ''),
		created_at, updated_at`

	getOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	orderLinesSQL = `SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	createOrderSQL = `INSERT INTO orders (
			id, user_id, subtotal, discount_amount, shipping_amount, total, status,
			address_postal_code, address_street, address_number, address_complement,
			address_neighborhood, address_city, address_state, payment_method,
			coupon_code, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, $15,
			NULLIF($16, ''), NULLIF($17, ''), $18, $18)`

	createOrderLineSQL = `INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, admin_notes = COALESCE($3, admin_notes), updated_at = $4
		WHERE id = $1`

	hasReceivedSQL = `SELECT EXISTS (
		SELECT 1 FROM orders o JOIN order_items i ON i.order_id = o.id
		WHERE o.user_id = $1 AND i.product_id = $2 AND o.status IN ('shipped', 'delivered'))`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get returns order id with its lines.
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderSQL, id)
}

// List returns orders matching f, newest first, with their lines.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	sql, args := listOrdersQuery(f)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := attachLines(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// HasReceived reports whether userID holds a shipped or delivered order
// containing productID.
func (r *OrderRepository) HasReceived(ctx context.Context, userID, productID int64) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, hasReceivedSQL, userID, productID).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "check purchase")
	}
	return ok, nil
}

func listOrdersQuery(f order.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.UserID != 0 {
		add("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < ?", f.To)
	}

	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	return sql + ` ORDER BY created_at DESC, id`, args
}

func getOrder(ctx context.Context, q querier, sql string, id uuid.UUID) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}

	orders := []order.Order{o}
	if err := attachLines(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func attachLines(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID.String()
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, orderLinesSQL, ids)
	if err != nil {
		return errors.Wrap(err, "get order lines")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID uuid.UUID
			l       order.Line
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return errors.Wrap(err, "scan order line")
		}
		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "get order lines")
	}
	return nil
}

func createOrder(ctx context.Context, q querier, o *order.Order) error {
	a := o.Address
	_, err := q.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.Subtotal, o.Discount, o.Shipping, o.Total, string(o.Status),
		a.PostalCode, a.Street, a.Number, a.Complement, a.Neighborhood, a.City, a.State,
		string(o.PaymentMethod), o.CouponCode, o.Notes, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %s", o.ID)
	}

	batch := &pgx.Batch{}
	for _, l := range o.Lines {
		batch.Queue(createOrderLineSQL, o.ID, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice)
	}
	if err := sendBatch(ctx, q, batch); err != nil {
		return errors.Wrapf(err, "insert lines of order %s", o.ID)
	}
	return nil
}

// sendBatch runs batch when q supports batching and falls back to one
// statement at a time otherwise.
func sendBatch(ctx context.Context, q querier, batch *pgx.Batch) error {
	if b, ok := q.(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	}); ok {
		return b.SendBatch(ctx, batch).Close()
	}
	for _, qq := range batch.QueuedQueries {
		if _, err := q.Exec(ctx, qq.SQL, qq.Arguments...); err != nil {
			return err
		}
	}
	return nil
}

func updateOrderStatus(ctx context.Context, q querier, id uuid.UUID, status order.Status, adminNotes *string, at time.Time) error {
	tag, err := q.Exec(ctx, updateOrderStatusSQL, id, string(status), adminNotes, at)
	if err != nil {
		return errors.Wrapf(err, "update order %s", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentMethod string
	)
	a := &o.Address
	err := row.Scan(
		&o.ID, &o.UserID, &o.Subtotal, &o.Discount, &o.Shipping, &o.Total, &status,
		&a.PostalCode, &a.Street, &a.Number, &a.Complement,
		&a.Neighborhood, &a.City, &a.State, &paymentMethod,
		&o.CouponCode, &o.Notes, &o.AdminNotes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	return o, err
}
