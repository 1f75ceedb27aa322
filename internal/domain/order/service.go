package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/loja-api/internal/domain/cart"
	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/domain/product"
)

// ProductReader batch-loads catalog products.
type ProductReader interface {
	GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error)
}

// CouponLedger validates and redeems coupons.
type CouponLedger interface {
	Validate(ctx context.Context, code string, userID int64) (coupon.Validation, error)
	Apply(ctx context.Context, store coupon.RedemptionStore, couponID, userID int64, orderID uuid.UUID) error
}

// CartSource supplies and clears the cart being checked out.
type CartSource interface {
	ReadLines(ctx context.Context, userID int64) ([]cart.Line, error)
	ReadCoupon(ctx context.Context, userID int64) (*cart.Coupon, error)
	Clear(ctx context.Context, userID int64) error
}

// Notifier receives order notifications after commit. Failures are logged
// and never affect the order.
type Notifier interface {
	OrderPlaced(ctx context.Context, userID int64, orderID uuid.UUID, total decimal.Decimal) error
	OrderStatusChanged(ctx context.Context, userID int64, orderID uuid.UUID, from, to Status) error
}

// Recorder observes checkout outcomes.
type Recorder interface {
	ObserveCheckout(outcome string, d time.Duration)
	ObserveCoupon(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheckout(string, time.Duration) {}
func (nopRecorder) ObserveCoupon(string)                  {}

// Config holds checkout pricing rules.
type Config struct {
	ShippingFee decimal.Decimal
	// RejectInvalidCoupon fails checkout when the requested coupon does not
	// validate instead of placing the order without a discount.
	RejectInvalidCoupon bool
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the checkout metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithTracerProvider sets the tracer provider used for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("github.com/xenking/loja-api/internal/domain/order") }
}

// Service is the order engine.
type Service struct {
	uow      UnitOfWork
	orders   Repository
	products ProductReader
	coupons  CouponLedger
	carts    CartSource
	notifier Notifier
	cfg      Config

	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	uow UnitOfWork,
	orders Repository,
	products ProductReader,
	coupons CouponLedger,
	carts CartSource,
	notifier Notifier,
	cfg Config,
	opts ...Option,
) *Service {
	s := &Service{
		uow:      uow,
		orders:   orders,
		products: products,
		coupons:  coupons,
		carts:    carts,
		notifier: notifier,
		cfg:      cfg,
		recorder: nopRecorder{},
		now:      time.Now,
		newID:    uuid.New,
	}
	WithTracerProvider(noop.NewTracerProvider())(s)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Checkout places an order from the cart of userID and clears the cart.
// When data carries no coupon code the coupon attached to the cart is used.
func (s *Service) Checkout(ctx context.Context, userID int64, data CheckoutData) (*Result, error) {
	lines, err := s.carts.ReadLines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	if data.CouponCode == "" {
		c, err := s.carts.ReadCoupon(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "read cart coupon")
		}
		if c != nil {
			data.CouponCode = c.Code
		}
	}

	items := make([]Item, len(lines))
	for i, l := range lines {
		items[i] = Item{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	res, err := s.PlaceOrder(ctx, userID, items, data)
	if err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		zctx.From(ctx).Warn("Failed to clear cart after checkout",
			zap.Int64("user_id", userID),
			zap.Stringer("order_id", res.Order.ID),
			zap.Error(err),
		)
	}
	return res, nil
}

// PlaceOrder prices items against the catalog, applies at most one coupon
// and commits the order, its lines, the stock decrements, the coupon
// redemption and an order.placed event in one transaction. Any failure
// inside the transaction rolls everything back and is returned as
// *CheckoutFailedError wrapping the cause.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, items []Item, data CheckoutData) (_ *Result, rerr error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
		}
		span.End()
		s.recorder.ObserveCheckout(checkoutOutcome(rerr), s.now().Sub(start))
	}()

	items, err := mergeItems(items)
	if err != nil {
		return nil, err
	}
	if !data.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	lines, subtotal, err := s.price(ctx, items)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	applied, discount, err := s.resolveCoupon(ctx, userID, data.CouponCode, subtotal, res)
	if err != nil {
		return nil, err
	}

	shipping := s.cfg.ShippingFee.Round(2)
	total := subtotal.Add(shipping).Sub(discount).Round(2)
	if total.IsNegative() || discount.GreaterThan(subtotal) {
		return nil, &PricingInvariantError{Subtotal: subtotal, Discount: discount, Shipping: shipping, Total: total}
	}

	now := s.now()
	o := &Order{
		ID:            s.newID(),
		UserID:        userID,
		Lines:         lines,
		Subtotal:      subtotal,
		Discount:      discount,
		Shipping:      shipping,
		Total:         total,
		Status:        StatusPending,
		Address:       data.Address.Normalize(),
		PaymentMethod: data.PaymentMethod,
		Notes:         data.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if applied != nil {
		o.CouponCode = applied.Code
	}

	if err := s.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return s.commit(ctx, tx, o, applied)
	}); err != nil {
		return nil, &CheckoutFailedError{Err: err}
	}

	lg := zctx.From(ctx)
	lg.Info("Order placed",
		zap.Stringer("order_id", o.ID),
		zap.Int64("user_id", userID),
		zap.String("total", o.Total.StringFixed(2)),
		zap.String("coupon", o.CouponCode),
	)
	if applied != nil {
		s.recorder.ObserveCoupon("redeemed")
	}

	if err := s.notifier.OrderPlaced(ctx, userID, o.ID, o.Total); err != nil {
		lg.Warn("Order placed notification failed", zap.Stringer("order_id", o.ID), zap.Error(err))
	}

	res.Order = o
	return res, nil
}

// mergeItems folds duplicate products together and sorts by product id so
// that row locks are always taken in the same order.
func mergeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	qty := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %d", it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	merged := make([]Item, 0, len(qty))
	for id, q := range qty {
		merged = append(merged, Item{ProductID: id, Quantity: q})
	}
	slices.SortFunc(merged, func(a, b Item) int {
		switch {
		case a.ProductID < b.ProductID:
			return -1
		case a.ProductID > b.ProductID:
			return 1
		default:
			return 0
		}
	})
	return merged, nil
}

// price freezes current catalog prices and checks stock ahead of the
// transaction.
func (s *Service) price(ctx context.Context, items []Item) ([]Line, decimal.Decimal, error) {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, len(items))
	subtotal := decimal.Zero
	for i, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, decimal.Zero, &product.NotFoundError{ProductID: it.ProductID}
		}
		if !p.Covers(it.Quantity) {
			return nil, decimal.Zero, &product.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: it.Quantity,
				Available: p.Stock,
			}
		}
		lines[i] = Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
		}
		subtotal = subtotal.Add(lines[i].Subtotal())
	}
	return lines, subtotal.Round(2), nil
}

// resolveCoupon validates code and returns the coupon to redeem with its
// discount. A coupon that does not validate is skipped and its reason stored
// in res, unless the service is configured to reject it.
func (s *Service) resolveCoupon(
	ctx context.Context,
	userID int64,
	code string,
	subtotal decimal.Decimal,
	res *Result,
) (*coupon.Coupon, decimal.Decimal, error) {
	code = coupon.NormalizeCode(code)
	if code == "" {
		return nil, decimal.Zero, nil
	}

	v, err := s.coupons.Validate(ctx, code, userID)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "validate coupon")
	}
	if !v.Valid {
		s.recorder.ObserveCoupon(string(v.Reason))
		if s.cfg.RejectInvalidCoupon {
			return nil, decimal.Zero, v.Err(code)
		}
		zctx.From(ctx).Info("Skipping invalid coupon at checkout",
			zap.Int64("user_id", userID),
			zap.String("coupon", code),
			zap.String("reason", string(v.Reason)),
		)
		res.CouponReason = v.Reason
		return nil, decimal.Zero, nil
	}

	return v.Coupon, v.Coupon.Discount(subtotal), nil
}

func (s *Service) commit(ctx context.Context, tx Tx, o *Order, applied *coupon.Coupon) error {
	if err := tx.CreateOrder(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}

	for _, l := range o.Lines {
		if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			return errors.Wrapf(err, "decrement stock of product %d", l.ProductID)
		}
	}

	if applied != nil {
		if err := s.coupons.Apply(ctx, tx.Redemptions(), applied.ID, o.UserID, o.ID); err != nil {
			return &CouponRaceError{Code: applied.Code, Err: err}
		}
	}

	if err := tx.Enqueue(ctx, Event{
		ID:         s.newID(),
		Type:       EventPlaced,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Total:      o.Total,
		CouponCode: o.CouponCode,
		OccurredAt: o.CreatedAt,
	}); err != nil {
		return errors.Wrap(err, "enqueue order event")
	}
	return nil
}

func checkoutOutcome(err error) string {
	var (
		stockErr *product.InsufficientStockError
		raceErr  *CouponRaceError
		invalid  *coupon.InvalidError
	)
	switch {
	case err == nil:
		return "placed"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.As(err, &raceErr):
		return "coupon_race"
	case errors.As(err, &invalid):
		return "invalid_coupon"
	case errors.Is(err, product.ErrNotFound):
		return "product_not_found"
	default:
		return "error"
	}
}

// UpdateStatus moves order id to status to. Setting the current status again
// only updates adminNotes when given. A change is recorded as an
// order.status_changed event and the owner is notified after commit.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, adminNotes *string) (*Order, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	var (
		updated *Order
		from    Status
	)
	if err := s.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		updated = o

		if from == to {
			if adminNotes == nil {
				return nil
			}
		} else if !CanTransition(from, to) {
			return &InvalidTransitionError{From: from, To: to}
		}

		now := s.now()
		if err := tx.UpdateStatus(ctx, id, to, adminNotes, now); err != nil {
			return errors.Wrap(err, "update status")
		}
		o.Status = to
		o.UpdatedAt = now
		if adminNotes != nil {
			o.AdminNotes = *adminNotes
		}

		if from == to {
			return nil
		}
		if err := tx.Enqueue(ctx, Event{
			ID:             s.newID(),
			Type:           EventStatusChanged,
			OrderID:        o.ID,
			UserID:         o.UserID,
			Status:         to,
			PreviousStatus: from,
			Total:          o.Total,
			CouponCode:     o.CouponCode,
			OccurredAt:     now,
		}); err != nil {
			return errors.Wrap(err, "enqueue order event")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if from != to {
		lg := zctx.From(ctx)
		lg.Info("Order status changed",
			zap.Stringer("order_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		if err := s.notifier.OrderStatusChanged(ctx, updated.UserID, id, from, to); err != nil {
			lg.Warn("Order status notification failed", zap.Stringer("order_id", id), zap.Error(err))
		}
	}
	return updated, nil
}

// Get returns order id if it belongs to userID. Orders of other users are
// reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, userID int64, id uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForUser returns the orders of userID matching f, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64, f Filter) ([]Order, error) {
	f.UserID = userID
	return s.ListAll(ctx, f)
}

// GetAny returns order id regardless of owner.
func (s *Service) GetAny(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// ListAll returns orders matching f, newest first.
func (s *Service) ListAll(ctx context.Context, f Filter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}
