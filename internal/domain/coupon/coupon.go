package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage takes a percentage of the subtotal.
	TypePercentage Type = "percentage"
	// TypeFixedAmount takes a fixed amount capped at the subtotal.
	TypeFixedAmount Type = "fixed_amount"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypePercentage || t == TypeFixedAmount
}

var (
	// ErrNotFound is returned when no coupon matches the lookup.
	ErrNotFound = errors.New("coupon not found")
	// ErrExhausted is returned by Apply when the usage cap was reached
	// between validation and redemption.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrAlreadyUsed is returned by Apply when the user already redeemed
	// the coupon.
	ErrAlreadyUsed = errors.New("coupon already used by this user")
	// ErrUnavailable is returned by Apply when the coupon was deactivated
	// or expired after validation.
	ErrUnavailable = errors.New("coupon no longer available")
	// ErrDuplicateCode is returned when creating a coupon whose code exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// Reason explains why a coupon failed validation.
type Reason string

// Validation failure reasons, in evaluation order.
const (
	ReasonNotFound    Reason = "not_found"
	ReasonInactive    Reason = "inactive"
	ReasonExpired     Reason = "expired"
	ReasonExhausted   Reason = "exhausted"
	ReasonAlreadyUsed Reason = "already_used"
)

// Message returns a human-readable description of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNotFound:
		return "coupon not found"
	case ReasonInactive:
		return "coupon is inactive"
	case ReasonExpired:
		return "coupon has expired"
	case ReasonExhausted:
		return "coupon usage limit reached"
	case ReasonAlreadyUsed:
		return "coupon already used by this user"
	default:
		return "coupon is invalid"
	}
}

// InvalidError reports a coupon that failed validation.
type InvalidError struct {
	Code   string
	Reason Reason
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("coupon %s: %s", e.Code, e.Reason.Message())
}

// Coupon is a discount instrument with a usage cap and a
// one-redemption-per-user rule.
type Coupon struct {
	ID          int64
	Code        string
	Description string
	Type        Type
	Value       decimal.Decimal
	ExpiresAt   time.Time
	MaxUses     int
	UsedCount   int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Discount returns the amount this coupon takes off subtotal.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	return CalculateDiscount(c.Type, c.Value, subtotal)
}

// Expired reports whether the coupon is past its expiry at now.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// Exhausted reports whether every allowed redemption was used.
func (c *Coupon) Exhausted() bool {
	return c.UsedCount >= c.MaxUses
}

// Validation is the outcome of checking a coupon code.
type Validation struct {
	Valid  bool
	Reason Reason
	Coupon *Coupon
}

// Err returns an *InvalidError for a failed validation, nil otherwise.
func (v Validation) Err(code string) error {
	if v.Valid {
		return nil
	}
	return &InvalidError{Code: NormalizeCode(code), Reason: v.Reason}
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides coupon lookups.
type Repository interface {
	// FindByCode returns ErrNotFound when no coupon has the given code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	HasUsage(ctx context.Context, couponID, userID int64) (bool, error)
	ListActive(ctx context.Context, now time.Time) ([]Coupon, error)
}

// RedemptionStore records coupon usage. Implementations are bound to the
// caller's transaction.
type RedemptionStore interface {
	// LockCoupon reads the coupon row holding a write lock until the
	// transaction ends.
	LockCoupon(ctx context.Context, id int64) (*Coupon, error)
	// InsertUsage returns ErrAlreadyUsed when (couponID, userID) exists.
	InsertUsage(ctx context.Context, couponID, userID int64, orderID uuid.UUID, at time.Time) error
	IncrementUsage(ctx context.Context, id int64) error
}

// AdminRepository provides coupon management for administrators.
type AdminRepository interface {
	// Create returns ErrDuplicateCode when the code is taken.
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Coupon, error)
	List(ctx context.Context, active *bool) ([]Coupon, error)
}
