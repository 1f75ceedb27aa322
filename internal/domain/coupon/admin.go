package coupon

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const (
	minCodeLen = 3
	maxCodeLen = 50
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// DefinitionError reports an invalid field in a coupon definition.
type DefinitionError struct {
	Field  string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid coupon %s: %s", e.Field, e.Reason)
}

// Definition holds the administrator-controlled fields of a coupon.
type Definition struct {
	Code        string
	Description string
	Type        Type
	Value       decimal.Decimal
	ExpiresAt   time.Time
	MaxUses     int
	Active      *bool
}

// Admin manages coupon definitions.
type Admin struct {
	repo AdminRepository
	now  func() time.Time
}

// NewAdmin creates an Admin backed by the given repository.
func NewAdmin(repo AdminRepository) *Admin {
	return &Admin{repo: repo, now: time.Now}
}

// Create validates d and stores a new coupon. The expiry must lie in the
// future and MaxUses defaults to 1.
func (a *Admin) Create(ctx context.Context, d Definition) (*Coupon, error) {
	d.Code = NormalizeCode(d.Code)
	if d.MaxUses == 0 {
		d.MaxUses = 1
	}
	if err := validateDefinition(d); err != nil {
		return nil, err
	}
	now := a.now()
	if !d.ExpiresAt.After(now) {
		return nil, &DefinitionError{Field: "expires_at", Reason: "must be in the future"}
	}

	c := &Coupon{
		Code:        d.Code,
		Description: d.Description,
		Type:        d.Type,
		Value:       d.Value.Round(2),
		ExpiresAt:   d.ExpiresAt,
		MaxUses:     d.MaxUses,
		Active:      d.Active == nil || *d.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Update replaces the definition of coupon id. The usage counter is kept and
// MaxUses may not drop below it.
func (a *Admin) Update(ctx context.Context, id int64, d Definition) (*Coupon, error) {
	c, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}

	d.Code = NormalizeCode(d.Code)
	if d.MaxUses == 0 {
		d.MaxUses = c.MaxUses
	}
	if err := validateDefinition(d); err != nil {
		return nil, err
	}
	if d.MaxUses < c.UsedCount {
		return nil, &DefinitionError{
			Field:  "max_uses",
			Reason: fmt.Sprintf("must be at least the current usage count %d", c.UsedCount),
		}
	}

	c.Code = d.Code
	c.Description = d.Description
	c.Type = d.Type
	c.Value = d.Value.Round(2)
	c.ExpiresAt = d.ExpiresAt
	c.MaxUses = d.MaxUses
	if d.Active != nil {
		c.Active = *d.Active
	}
	c.UpdatedAt = a.now()
	if err := a.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

// Delete removes coupon id together with its usage records.
func (a *Admin) Delete(ctx context.Context, id int64) error {
	if err := a.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	return nil
}

// Get returns coupon id.
func (a *Admin) Get(ctx context.Context, id int64) (*Coupon, error) {
	c, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	return c, nil
}

// List returns all coupons, optionally filtered by the active flag.
func (a *Admin) List(ctx context.Context, active *bool) ([]Coupon, error) {
	coupons, err := a.repo.List(ctx, active)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

func validateDefinition(d Definition) error {
	switch {
	case len(d.Code) < minCodeLen || len(d.Code) > maxCodeLen:
		return &DefinitionError{Field: "code", Reason: fmt.Sprintf("must be %d-%d characters", minCodeLen, maxCodeLen)}
	case !codePattern.MatchString(d.Code):
		return &DefinitionError{Field: "code", Reason: "only letters, digits, '_' and '-' are allowed"}
	case !d.Type.Valid():
		return &DefinitionError{Field: "type", Reason: "must be percentage or fixed_amount"}
	case !d.Value.IsPositive():
		return &DefinitionError{Field: "value", Reason: "must be positive"}
	case d.Type == TypePercentage && d.Value.GreaterThan(hundred):
		return &DefinitionError{Field: "value", Reason: "percentage cannot exceed 100"}
	case d.ExpiresAt.IsZero():
		return &DefinitionError{Field: "expires_at", Reason: "is required"}
	case d.MaxUses < 1:
		return &DefinitionError{Field: "max_uses", Reason: "must be at least 1"}
	}
	return nil
}
