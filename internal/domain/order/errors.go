package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order placement and queries.
var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrNotFound             = errors.New("order not found")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidQuantity      = errors.New("quantity must be greater than 0")
)

// PricingInvariantError reports totals that violate
// total = subtotal + shipping - discount with a non-negative result.
type PricingInvariantError struct {
	Subtotal, Discount, Shipping, Total decimal.Decimal
}

func (e *PricingInvariantError) Error() string {
	return fmt.Sprintf("pricing invariant violated: subtotal %s + shipping %s - discount %s = %s",
		e.Subtotal.StringFixed(2), e.Shipping.StringFixed(2), e.Discount.StringFixed(2), e.Total.StringFixed(2))
}

// CouponRaceError reports a coupon that passed validation but could not be
// redeemed inside the order transaction.
type CouponRaceError struct {
	Code string
	Err  error
}

func (e *CouponRaceError) Error() string {
	return fmt.Sprintf("redeem coupon %s: %v", e.Code, e.Err)
}

func (e *CouponRaceError) Unwrap() error { return e.Err }

// CheckoutFailedError wraps the cause of a rolled-back order transaction.
type CheckoutFailedError struct {
	Err error
}

func (e *CheckoutFailedError) Error() string {
	return "checkout failed: " + e.Err.Error()
}

func (e *CheckoutFailedError) Unwrap() error { return e.Err }

// InvalidTransitionError reports a forbidden status change.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}
