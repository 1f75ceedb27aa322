// Package order turns carts into persisted orders and drives their status.
package order

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/loja-api/internal/domain/coupon"
)

// PaymentMethod is the payment instrument chosen at checkout.
type PaymentMethod string

// Supported payment methods.
const (
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPix        PaymentMethod = "pix"
	PaymentBoleto     PaymentMethod = "boleto"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCreditCard, PaymentDebitCard, PaymentPix, PaymentBoleto:
		return true
	default:
		return false
	}
}

// Address is the shipping destination of an order.
type Address struct {
	PostalCode   string
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
}

// Normalize returns a copy with surrounding spaces trimmed, the postal code
// reduced to digits and the state upper-cased.
func (a Address) Normalize() Address {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, a.PostalCode)

	return Address{
		PostalCode:   digits,
		Street:       strings.TrimSpace(a.Street),
		Number:       strings.TrimSpace(a.Number),
		Complement:   strings.TrimSpace(a.Complement),
		Neighborhood: strings.TrimSpace(a.Neighborhood),
		City:         strings.TrimSpace(a.City),
		State:        strings.ToUpper(strings.TrimSpace(a.State)),
	}
}

// Item is a requested product and quantity.
type Item struct {
	ProductID int64
	Quantity  int
}

// Line is an order line with the unit price frozen at placement.
type Line struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a committed purchase. Only Status and AdminNotes change after
// creation.
type Order struct {
	ID            uuid.UUID
	UserID        int64
	Lines         []Line
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Shipping      decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	Address       Address
	PaymentMethod PaymentMethod
	CouponCode    string
	Notes         string
	AdminNotes    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Filter narrows order listings. Zero values match everything.
type Filter struct {
	UserID int64
	Status Status
	From   time.Time
	To     time.Time
}

// CheckoutData is the buyer-supplied part of a checkout.
type CheckoutData struct {
	Address       Address
	PaymentMethod PaymentMethod
	// CouponCode overrides the coupon attached to the cart when set.
	CouponCode string
	Notes      string
}

// Result is the outcome of a successful placement.
type Result struct {
	Order *Order
	// CouponReason is set when a coupon was requested but skipped.
	CouponReason coupon.Reason
}

// EventType names an order lifecycle event.
type EventType string

// Order lifecycle events written to the outbox.
const (
	EventPlaced        EventType = "order.placed"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is an order lifecycle fact recorded in the same transaction as the
// change it describes.
type Event struct {
	ID             uuid.UUID
	Type           EventType
	OrderID        uuid.UUID
	UserID         int64
	Status         Status
	PreviousStatus Status
	Total          decimal.Decimal
	CouponCode     string
	OccurredAt     time.Time
}

// Repository reads committed orders.
type Repository interface {
	// Get returns ErrNotFound when no order has the given id.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
}

// Tx is the set of writes performed atomically by the engine.
type Tx interface {
	CreateOrder(ctx context.Context, o *Order) error
	// DecrementStock returns *product.InsufficientStockError when the
	// product cannot cover qty at the time of the update.
	DecrementStock(ctx context.Context, productID int64, qty int) error
	Redemptions() coupon.RedemptionStore
	// LockOrder returns ErrNotFound when no order has the given id.
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, adminNotes *string, at time.Time) error
	Enqueue(ctx context.Context, e Event) error
}

// UnitOfWork runs fn in a transaction, committing when fn returns nil.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
