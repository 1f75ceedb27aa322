// Package cart holds the per-user shopping cart that feeds checkout.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/loja-api/internal/domain/coupon"
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 99

var (
	// ErrLineNotFound is returned when the cart has no line for a product.
	ErrLineNotFound = errors.New("product not in cart")
	// ErrEmpty is returned when an operation needs a non-empty cart.
	ErrEmpty = errors.New("cart is empty")
)

// QuantityError reports a quantity outside the allowed range.
type QuantityError struct {
	Quantity int
	Min, Max int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("quantity %d out of range [%d, %d]", e.Quantity, e.Min, e.Max)
}

// Line is a product selection with a price snapshot taken when it was last
// changed. Checkout never trusts UnitPrice.
type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Coupon is the snapshot of a coupon attached to a cart.
type Coupon struct {
	ID       int64           `json:"id"`
	Code     string          `json:"code"`
	Type     coupon.Type     `json:"type"`
	Value    decimal.Decimal `json:"value"`
	Discount decimal.Decimal `json:"discount"`
}

// Cart is the ephemeral selection of a single user.
type Cart struct {
	UserID    int64     `json:"user_id"`
	Lines     []Line    `json:"lines"`
	Coupon    *Coupon   `json:"coupon,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty cart for userID.
func New(userID int64) *Cart {
	return &Cart{UserID: userID}
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Line returns the line for productID.
func (c *Cart) Line(productID int64) (Line, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

func (c *Cart) index(productID int64) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// upsert replaces the line for l.ProductID or appends it.
func (c *Cart) upsert(l Line) {
	if i := c.index(l.ProductID); i >= 0 {
		c.Lines[i] = l
		return
	}
	c.Lines = append(c.Lines, l)
}

// remove drops the line for productID and reports whether it existed.
func (c *Cart) remove(productID int64) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return true
}

// Totals is the priced view of a cart.
type Totals struct {
	Lines     []Line
	ItemCount int
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	Coupon    *Coupon
}

// Totals prices the cart and refreshes the attached coupon's discount.
// Calling it repeatedly on an unchanged cart yields identical results.
func (c *Cart) Totals() Totals {
	t := Totals{Lines: c.Lines, Subtotal: decimal.Zero, Discount: decimal.Zero}
	for _, l := range c.Lines {
		t.ItemCount += l.Quantity
		t.Subtotal = t.Subtotal.Add(l.Subtotal())
	}
	t.Subtotal = t.Subtotal.Round(2)

	if c.Coupon != nil {
		c.Coupon.Discount = coupon.CalculateDiscount(c.Coupon.Type, c.Coupon.Value, t.Subtotal)
		t.Discount = c.Coupon.Discount
		t.Coupon = c.Coupon
	}
	t.Total = t.Subtotal.Sub(t.Discount).Round(2)
	return t
}

// Store persists carts for the lifetime of a user session.
type Store interface {
	// Load returns an empty cart when none is stored.
	Load(ctx context.Context, userID int64) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, userID int64) error
}
