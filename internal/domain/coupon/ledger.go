package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Ledger validates coupons and records their redemption.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger backed by the given Repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Validate checks code for userID. Checks run in order and the first failing
// one determines the reason: existence, active flag, expiry, usage cap and,
// when userID is non-zero, a previous redemption by the same user.
// Lookup failures other than ErrNotFound are returned as errors.
func (l *Ledger) Validate(ctx context.Context, code string, userID int64) (Validation, error) {
	c, err := l.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Validation{Reason: ReasonNotFound}, nil
		}
		return Validation{}, errors.Wrap(err, "lookup coupon")
	}

	if reason, ok := l.check(c); !ok {
		return Validation{Reason: reason, Coupon: c}, nil
	}

	if userID != 0 {
		used, err := l.repo.HasUsage(ctx, c.ID, userID)
		if err != nil {
			return Validation{}, errors.Wrap(err, "check coupon usage")
		}
		if used {
			return Validation{Reason: ReasonAlreadyUsed, Coupon: c}, nil
		}
	}

	return Validation{Valid: true, Coupon: c}, nil
}

func (l *Ledger) check(c *Coupon) (Reason, bool) {
	switch {
	case !c.Active:
		return ReasonInactive, false
	case c.Expired(l.now()):
		return ReasonExpired, false
	case c.Exhausted():
		return ReasonExhausted, false
	default:
		return "", true
	}
}

// Apply redeems couponID for userID on orderID inside the transaction that
// store is bound to. The coupon row is re-read under a write lock and
// re-checked, so concurrent redemptions of the same coupon serialise here.
// The usage row is inserted before the counter moves; a duplicate usage
// surfaces as ErrAlreadyUsed and leaves the counter untouched.
func (l *Ledger) Apply(ctx context.Context, store RedemptionStore, couponID, userID int64, orderID uuid.UUID) error {
	c, err := store.LockCoupon(ctx, couponID)
	if err != nil {
		return errors.Wrap(err, "lock coupon")
	}

	switch reason, ok := l.check(c); {
	case ok:
	case reason == ReasonExhausted:
		return ErrExhausted
	default:
		return errors.Wrap(ErrUnavailable, reason.Message())
	}

	if err := store.InsertUsage(ctx, c.ID, userID, orderID, l.now()); err != nil {
		if errors.Is(err, ErrAlreadyUsed) {
			return ErrAlreadyUsed
		}
		return errors.Wrap(err, "insert coupon usage")
	}

	if err := store.IncrementUsage(ctx, c.ID); err != nil {
		return errors.Wrap(err, "increment coupon usage")
	}

	return nil
}

// ListActive returns coupons that are active, unexpired and not exhausted.
func (l *Ledger) ListActive(ctx context.Context) ([]Coupon, error) {
	coupons, err := l.repo.ListActive(ctx, l.now())
	if err != nil {
		return nil, errors.Wrap(err, "list active coupons")
	}
	return coupons, nil
}
