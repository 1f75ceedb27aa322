package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/domain/product"
)

// Catalog resolves products for cart mutations.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*product.Product, error)
}

// CouponValidator checks coupon codes for a user.
type CouponValidator interface {
	Validate(ctx context.Context, code string, userID int64) (coupon.Validation, error)
}

// Notifier is told when a coupon is attached to a cart.
type Notifier interface {
	CouponApplied(ctx context.Context, userID int64, code string, discount decimal.Decimal) error
}

// Service implements cart mutations. Every quantity change re-checks stock
// against the catalog; that check is advisory, checkout re-checks.
type Service struct {
	store    Store
	catalog  Catalog
	coupons  CouponValidator
	notifier Notifier
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(store Store, catalog Catalog, coupons CouponValidator, notifier Notifier) *Service {
	return &Service{
		store:    store,
		catalog:  catalog,
		coupons:  coupons,
		notifier: notifier,
		now:      time.Now,
	}
}

// View returns the priced cart of userID.
func (s *Service) View(ctx context.Context, userID int64) (Totals, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return Totals{}, err
	}
	return c.Totals(), nil
}

// AddLine adds qty units of productID, merging into an existing line.
func (s *Service) AddLine(ctx context.Context, userID, productID int64, qty int) (Totals, error) {
	if qty < 1 || qty > MaxLineQuantity {
		return Totals{}, &QuantityError{Quantity: qty, Min: 1, Max: MaxLineQuantity}
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return Totals{}, err
	}

	newQty := qty
	if existing, ok := c.Line(productID); ok {
		newQty += existing.Quantity
	}
	if newQty > MaxLineQuantity {
		return Totals{}, &QuantityError{Quantity: newQty, Min: 1, Max: MaxLineQuantity}
	}

	p, err := s.stocked(ctx, productID, newQty)
	if err != nil {
		return Totals{}, err
	}

	c.upsert(lineFor(p, newQty))
	return s.save(ctx, c)
}

// SetQuantity sets the quantity of an existing line; zero removes it.
func (s *Service) SetQuantity(ctx context.Context, userID, productID int64, qty int) (Totals, error) {
	if qty < 0 || qty > MaxLineQuantity {
		return Totals{}, &QuantityError{Quantity: qty, Min: 0, Max: MaxLineQuantity}
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return Totals{}, err
	}
	if _, ok := c.Line(productID); !ok {
		return Totals{}, ErrLineNotFound
	}

	if qty == 0 {
		c.remove(productID)
		return s.save(ctx, c)
	}

	p, err := s.stocked(ctx, productID, qty)
	if err != nil {
		return Totals{}, err
	}

	c.upsert(lineFor(p, qty))
	return s.save(ctx, c)
}

// RemoveLine drops the line for productID.
func (s *Service) RemoveLine(ctx context.Context, userID, productID int64) (Totals, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return Totals{}, err
	}
	if !c.remove(productID) {
		return Totals{}, ErrLineNotFound
	}
	return s.save(ctx, c)
}

// ApplyCoupon validates code for userID and attaches it to the cart.
func (s *Service) ApplyCoupon(ctx context.Context, userID int64, code string) (Totals, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return Totals{}, err
	}
	if c.Empty() {
		return Totals{}, ErrEmpty
	}

	v, err := s.coupons.Validate(ctx, code, userID)
	if err != nil {
		return Totals{}, errors.Wrap(err, "validate coupon")
	}
	if err := v.Err(code); err != nil {
		return Totals{}, err
	}

	c.Coupon = &Coupon{
		ID:    v.Coupon.ID,
		Code:  v.Coupon.Code,
		Type:  v.Coupon.Type,
		Value: v.Coupon.Value,
	}
	totals, err := s.save(ctx, c)
	if err != nil {
		return Totals{}, err
	}

	if err := s.notifier.CouponApplied(ctx, userID, c.Coupon.Code, totals.Discount); err != nil {
		zctx.From(ctx).Warn("Coupon applied notification failed",
			zap.Int64("user_id", userID),
			zap.String("coupon", c.Coupon.Code),
			zap.Error(err),
		)
	}
	return totals, nil
}

// RemoveCoupon detaches the coupon from the cart, if any.
func (s *Service) RemoveCoupon(ctx context.Context, userID int64) (Totals, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return Totals{}, err
	}
	c.Coupon = nil
	return s.save(ctx, c)
}

// ReadLines returns the cart lines of userID.
func (s *Service) ReadLines(ctx context.Context, userID int64) ([]Line, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.Lines, nil
}

// ReadCoupon returns the coupon attached to the cart of userID, or nil.
func (s *Service) ReadCoupon(ctx context.Context, userID int64) (*Coupon, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.Coupon, nil
}

// Clear discards the cart of userID.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID int64) (*Cart, error) {
	c, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *Cart) (Totals, error) {
	if c.Empty() {
		c.Coupon = nil
	}
	totals := c.Totals()
	c.UpdatedAt = s.now()
	if err := s.store.Save(ctx, c); err != nil {
		return Totals{}, errors.Wrap(err, "save cart")
	}
	return totals, nil
}

// stocked fetches productID and checks that it covers qty units.
func (s *Service) stocked(ctx context.Context, productID int64, qty int) (*product.Product, error) {
	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &product.NotFoundError{ProductID: productID}
		}
		return nil, errors.Wrap(err, "get product")
	}
	if !p.Covers(qty) {
		return nil, &product.InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Requested: qty,
			Available: p.Stock,
		}
	}
	return p, nil
}

func lineFor(p *product.Product, qty int) Line {
	return Line{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Image:     p.Image,
		Quantity:  qty,
	}
}
